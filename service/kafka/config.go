package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

// Config 事件投递到 Kafka 的配置
type Config struct {
	Brokers            []string
	ClientID           string
	TopicPattern       string // 例如 "ppchat.events-%02d"
	TopicCount         int    // 大 Topic 数量，按 key 哈希选择
	PartitionsPerTopic int32
	ReplicationFactor  int16
	Retries            int
	Compression        string // none/snappy/lz4/zstd
	Version            string // 例如 "2.1.0"
	EnsureTopics       bool   // 启动时创建/扩容 topic
}

func (c *Config) norm() {
	if c.ClientID == "" {
		c.ClientID = "ppchat"
	}
	if c.TopicPattern == "" {
		c.TopicPattern = "ppchat.events-%02d"
	}
	if c.TopicCount <= 0 {
		c.TopicCount = 1
	}
	if c.PartitionsPerTopic <= 0 {
		c.PartitionsPerTopic = 8
	}
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = 1
	}
	if c.Retries <= 0 {
		c.Retries = 1
	}
	if c.Version == "" {
		c.Version = "2.1.0"
	}
}

// BuildConfig 同步生产者配置；Key 决定分区
func BuildConfig(c Config) (*sarama.Config, error) {
	c.norm()
	version, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, fmt.Errorf("kafka version %q: %w", c.Version, err)
	}
	cfg := sarama.NewConfig()
	cfg.Version = version
	cfg.ClientID = c.ClientID

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = c.Retries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	switch strings.ToLower(c.Compression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	case "", "none":
		cfg.Producer.Compression = sarama.CompressionNone
	default:
		return nil, fmt.Errorf("unknown compression: %s", c.Compression)
	}

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg, nil
}
