package kafka

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenTopics(t *testing.T) {
	topics := GenTopics(Config{TopicPattern: "im.shard-%02d", TopicCount: 3})
	assert.Equal(t, []string{"im.shard-00", "im.shard-01", "im.shard-02"}, topics)

	assert.Equal(t, []string{"ppchat.events-00"}, GenTopics(Config{}))
}

func TestSelectTopicStable(t *testing.T) {
	topics := GenTopics(Config{TopicCount: 16})
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("room-%d", i)
		first := SelectTopic(key, topics)
		assert.Contains(t, topics, first)
		assert.Equal(t, first, SelectTopic(key, topics))
	}
	assert.Empty(t, SelectTopic("x", nil))
}

func TestBuildConfig(t *testing.T) {
	cfg, err := BuildConfig(Config{Compression: "snappy", Version: "2.6.0", Retries: 4})
	require.NoError(t, err)
	assert.Equal(t, sarama.CompressionSnappy, cfg.Producer.Compression)
	assert.Equal(t, sarama.V2_6_0_0, cfg.Version)
	assert.Equal(t, 4, cfg.Producer.Retry.Max)
	assert.True(t, cfg.Producer.Return.Successes)
	assert.NoError(t, cfg.Validate())

	_, err = BuildConfig(Config{Compression: "brotli"})
	assert.Error(t, err)
	_, err = BuildConfig(Config{Version: "not-a-version"})
	assert.Error(t, err)
}

func TestProducerSend(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"a":1}` {
			return fmt.Errorf("unexpected value %s", val)
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := &Producer{prod: sp, topics: GenTopics(Config{TopicCount: 4})}
	require.NoError(t, p.Send("room-1", []byte(`{"a":1}`), map[string]string{"biz": "chat.message.created"}))
	assert.Error(t, p.Send("room-1", []byte(`{}`), nil))
	require.NoError(t, sp.Close())
}

// 需要本地 Kafka：PPCHAT_TEST_KAFKA_BROKERS=127.0.0.1:9092
func TestProducerIntegration(t *testing.T) {
	brokers := os.Getenv("PPCHAT_TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("PPCHAT_TEST_KAFKA_BROKERS not set")
	}
	p, err := NewProducer(Config{
		Brokers:      strings.Split(brokers, ","),
		TopicPattern: "ppchat.test-%02d",
		TopicCount:   2,
		EnsureTopics: true,
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Len(t, p.Topics(), 2)
	require.NoError(t, p.Send("room-1", []byte(`{"event":"test"}`), map[string]string{"biz": "test"}))
}
