package kafka

import (
	"PPChat/logger"
	"PPChat/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// Producer 同步生产者；按 key 选 Topic，再按 key 哈希分区，同 key 有序
type Producer struct {
	client sarama.Client
	prod   sarama.SyncProducer
	topics []string
}

func NewProducer(c Config) (*Producer, error) {
	c.norm()
	cfg, err := BuildConfig(c)
	if err != nil {
		return nil, err
	}
	client, err := sarama.NewClient(c.Brokers, cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka client", "brokers", c.Brokers)
	}
	topics := GenTopics(c)
	if c.EnsureTopics {
		admin, err := sarama.NewClusterAdminFromClient(client)
		if err != nil {
			_ = client.Close()
			return nil, errs.WrapMsg(err, "kafka admin")
		}
		// admin 与 client 共用连接，这里不关闭 admin
		if err := EnsureTopics(admin, topics, c); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	prod, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errs.WrapMsg(err, "kafka producer")
	}
	logger.Info("[Kafka] producer ready", zap.Strings("brokers", c.Brokers), zap.Strings("topics", topics))
	return &Producer{client: client, prod: prod, topics: topics}, nil
}

// Send 同步发送，返回前已被 broker 确认
func (p *Producer) Send(key string, value []byte, headers map[string]string) error {
	msg := &sarama.ProducerMessage{
		Topic: SelectTopic(key, p.topics),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	partition, offset, err := p.prod.SendMessage(msg)
	if err != nil {
		return errs.WrapMsg(err, "kafka send", "topic", msg.Topic, "key", key)
	}
	logger.Debug("[Kafka] sent", zap.String("topic", msg.Topic), zap.Int32("partition", partition), zap.Int64("offset", offset))
	return nil
}

func (p *Producer) Topics() []string { return append([]string(nil), p.topics...) }

func (p *Producer) Close() error {
	err := p.prod.Close()
	if cerr := p.client.Close(); err == nil {
		err = cerr
	}
	return err
}
