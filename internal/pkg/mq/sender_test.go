package mq

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "test-topic"

// fakeProducer 按 mode 回调 deliveryChan，不依赖真实 broker
type fakeProducer struct {
	mu       sync.Mutex
	mode     string // "ok" / "fail" / "reject" / "silent"
	messages []*kafka.Message
}

func (p *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()

	switch p.mode {
	case "reject":
		return errors.New("queue full")
	case "silent":
		return nil
	case "fail":
		msg.TopicPartition.Error = errors.New("broker down")
	}
	deliveryChan <- msg
	return nil
}

func TestSendKafkaJobs_Fake(t *testing.T) {
	jobs := []*KafkaJob{
		{Topic: testTopic, Partition: 1, Key: []byte("k1"), Value: []byte("v1")},
		{Topic: testTopic, Partition: 0, Key: []byte("k2"), Value: []byte("v2")},
	}

	t.Run("ok", func(t *testing.T) {
		p := &fakeProducer{mode: "ok"}
		ok, failed := SendKafkaJobs(context.Background(), p, jobs, time.Second)
		assert.Len(t, ok, 2)
		assert.Empty(t, failed)

		require.Len(t, p.messages, 2)
		keys := map[string]int32{}
		for _, m := range p.messages {
			assert.Equal(t, testTopic, *m.TopicPartition.Topic)
			keys[string(m.Key)] = m.TopicPartition.Partition
		}
		assert.Equal(t, map[string]int32{"k1": 1, "k2": 0}, keys)
	})

	t.Run("delivery error", func(t *testing.T) {
		ok, failed := SendKafkaJobs(context.Background(), &fakeProducer{mode: "fail"}, jobs, time.Second)
		assert.Empty(t, ok)
		require.Len(t, failed, 2)
		assert.EqualError(t, failed[0].Err, "broker down")
	})

	t.Run("produce error", func(t *testing.T) {
		_, failed := SendKafkaJobs(context.Background(), &fakeProducer{mode: "reject"}, jobs, time.Second)
		require.Len(t, failed, 2)
		assert.Contains(t, failed[0].Err.Error(), "produce error")
	})

	t.Run("timeout", func(t *testing.T) {
		_, failed := SendKafkaJobs(context.Background(), &fakeProducer{mode: "silent"}, jobs[:1], 10*time.Millisecond)
		require.Len(t, failed, 1)
		assert.Contains(t, failed[0].Err.Error(), "delivery timeout")
	})

	t.Run("ctx cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, failed := SendKafkaJobs(ctx, &fakeProducer{mode: "silent"}, jobs[:1], time.Minute)
		require.Len(t, failed, 1)
		assert.ErrorIs(t, failed[0].Err, context.Canceled)
	})

	t.Run("empty", func(t *testing.T) {
		ok, failed := SendKafkaJobs(context.Background(), &fakeProducer{mode: "ok"}, nil, time.Second)
		assert.Empty(t, ok)
		assert.Empty(t, failed)
	})
}

func TestNewKeyedJob(t *testing.T) {
	job := NewKeyedJob(testTopic, []byte("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"), 8, []byte("{}"))
	assert.Equal(t, testTopic, job.Topic)
	assert.Equal(t, job.Partition, PartitionFor(job.Key, 8), "同一个 key 的分区必须稳定")
	assert.Equal(t, []byte("{}"), job.Value)

	assert.Zero(t, PartitionFor([]byte("any"), 1))
	assert.Zero(t, PartitionFor([]byte("any"), 0))

	seen := map[int32]bool{}
	for i := 0; i < 256; i++ {
		p := PartitionFor([]byte{byte(i), 'k'}, 4)
		require.GreaterOrEqual(t, p, int32(0))
		require.Less(t, p, int32(4))
		seen[p] = true
	}
	assert.Len(t, seen, 4, "256 个 key 应覆盖全部分区")
}

func TestSendKafkaJobsKeepsOrder(t *testing.T) {
	jobs := make([]*KafkaJob, 20)
	for i := range jobs {
		jobs[i] = NewKeyedJob(testTopic, []byte{byte(i)}, 3, []byte{byte(i)})
	}
	ok, failed := SendKafkaJobs(context.Background(), &fakeProducer{mode: "ok"}, jobs, time.Second)
	assert.Empty(t, failed)
	assert.Equal(t, jobs, ok)
}

// 需要本地 Kafka：KAFKA_TEST_BROKERS=127.0.0.1:9092 go test ./internal/pkg/mq/
func TestSendKafkaJobs_RealKafka(t *testing.T) {
	brokers := os.Getenv("KAFKA_TEST_BROKERS")
	if brokers == "" {
		t.Skip("KAFKA_TEST_BROKERS not set")
	}

	producer, err := NewKafkaProducer(KafkaProducerOption{
		Brokers: brokers,
		Topics:  []TopicOption{{Topic: testTopic, Partitions: 2}},
	})
	require.NoError(t, err)
	defer producer.Close()

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          "test-group-" + time.Now().Format("20060102150405"), // 动态生成消费者组
		"auto.offset.reset": "earliest",
	})
	require.NoError(t, err)
	defer consumer.Close()
	require.NoError(t, consumer.Subscribe(testTopic, nil))

	jobs := []*KafkaJob{
		{Topic: testTopic, Key: []byte("a"), Value: []byte("test message 1")},
		{Topic: testTopic, Partition: 1, Key: []byte("b"), Value: []byte("test message 2")},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, failed := SendKafkaJobs(ctx, producer, jobs, 2*time.Second)
	assert.Equal(t, 2, len(ok), "应该成功发送 2 条消息")
	assert.Equal(t, 0, len(failed), "不应该有失败的消息")
	producer.Flush(1000)

	received := make(map[string]bool)
	for i := 0; i < 2; i++ {
		msg, err := consumer.ReadMessage(5 * time.Second)
		require.NoError(t, err)
		received[string(msg.Value)] = true
	}
	assert.True(t, received["test message 1"], "未收到第一条消息")
	assert.True(t, received["test message 2"], "未收到第二条消息")
}
