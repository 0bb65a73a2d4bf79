package kafka

import (
	"PPChat/logger"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// GenTopics 生成 N 个大 Topic：ppchat.events-00, ppchat.events-01, ...
func GenTopics(c Config) []string {
	c.norm()
	out := make([]string, 0, c.TopicCount)
	for i := 0; i < c.TopicCount; i++ {
		out = append(out, fmt.Sprintf(c.TopicPattern, i))
	}
	return out
}

// SelectTopic 同一 key 永远命中同一个 Topic
func SelectTopic(key string, topics []string) string {
	if len(topics) == 0 {
		return ""
	}
	h := crc32.ChecksumIEEE([]byte(key))
	return topics[int(h%uint32(len(topics)))]
}

// EnsureTopics 不存在则创建；分区数不足则扩容（Kafka 只能增加分区）
func EnsureTopics(admin sarama.ClusterAdmin, topics []string, c Config) error {
	c.norm()
	minISR := "1"
	if c.ReplicationFactor >= 3 {
		minISR = "2"
	}
	for _, t := range topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return fmt.Errorf("describe topic %s: %w", t, err)
		}
		exists := len(descs) == 1 && descs[0].Err == sarama.ErrNoError

		if !exists {
			td := &sarama.TopicDetail{
				NumPartitions:     c.PartitionsPerTopic,
				ReplicationFactor: c.ReplicationFactor,
				ConfigEntries: map[string]*string{
					"cleanup.policy":                 strPtr("delete"),
					"min.insync.replicas":            strPtr(minISR),
					"unclean.leader.election.enable": strPtr("false"),
					"compression.type":               strPtr("producer"),
				},
			}
			if err := admin.CreateTopic(t, td, false); err != nil {
				var te *sarama.TopicError
				if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
					logger.Debug("[Kafka] topic exists (race)", zap.String("topic", t))
					continue
				}
				return fmt.Errorf("create topic %s: %w", t, err)
			}
			logger.Info("[Kafka] topic created", zap.String("topic", t),
				zap.Int32("partitions", c.PartitionsPerTopic), zap.Int16("rf", c.ReplicationFactor))
			continue
		}

		cur := int32(len(descs[0].Partitions))
		if c.PartitionsPerTopic > cur {
			if err := admin.CreatePartitions(t, c.PartitionsPerTopic, nil, false); err != nil {
				return fmt.Errorf("expand partitions %s from %d to %d: %w", t, cur, c.PartitionsPerTopic, err)
			}
			logger.Info("[Kafka] partitions expanded", zap.String("topic", t), zap.Int32("from", cur), zap.Int32("to", c.PartitionsPerTopic))
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
