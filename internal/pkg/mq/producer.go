package mq

import (
	"context"
	"fmt"
	"os"
	"time"

	"anchor-snapshot-sol/internal/pkg/logger"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	defaultBatchSize = 32 * 1024
	defaultLingerMs  = 5
	adminTimeout     = 10 * time.Second
)

type KafkaProducerOption struct {
	Brokers   string // 多个 broker 用英文逗号分隔
	BatchSize int    // 批处理大小（字节）
	LingerMs  int    // 批处理最大延迟（毫秒）

	Topics []TopicOption // 不存在时自动创建
}

type TopicOption struct {
	Topic      string
	Partitions int
}

// NewKafkaProducer 确认 topic 存在后创建幂等生产者
func NewKafkaProducer(opt KafkaProducerOption) (*kafka.Producer, error) {
	if err := ensureTopics(opt.Brokers, opt.Topics); err != nil {
		return nil, err
	}
	producer, err := kafka.NewProducer(producerConfig(opt))
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return producer, nil
}

// ensureTopics 创建缺失的 topic；多 broker 集群使用 2 副本
func ensureTopics(brokers string, topics []TopicOption) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{"bootstrap.servers": brokers})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	meta, err := admin.GetMetadata(nil, true, int(adminTimeout.Milliseconds()))
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}
	replicas := 1
	if len(meta.Brokers) > 1 {
		replicas = 2
	}

	var missing []kafka.TopicSpecification
	for _, t := range topics {
		if _, exists := meta.Topics[t.Topic]; t.Topic == "" || exists {
			continue
		}
		missing = append(missing, kafka.TopicSpecification{
			Topic:             t.Topic,
			NumPartitions:     max(t.Partitions, 1),
			ReplicationFactor: replicas,
		})
	}
	if len(missing) == 0 {
		return nil
	}

	logger.Infof("[mq] creating %d topics, brokers=%d, replication=%d", len(missing), len(meta.Brokers), replicas)
	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()
	results, err := admin.CreateTopics(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}
	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %w", r.Topic, r.Error)
		}
	}
	return nil
}

func producerConfig(opt KafkaProducerOption) *kafka.ConfigMap {
	batchSize := opt.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	lingerMs := opt.LingerMs
	if lingerMs < 0 {
		lingerMs = defaultLingerMs
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}

	return &kafka.ConfigMap{
		"bootstrap.servers": opt.Brokers,
		"client.id":         "anchor-snapshot-" + host,

		// 幂等要求 acks=all 且 in-flight <= 5
		"acks":                                  "all",
		"enable.idempotence":                    true,
		"max.in.flight.requests.per.connection": 5,

		"delivery.timeout.ms": 30000,
		"request.timeout.ms":  30000,
		"retries":             5,
		"retry.backoff.ms":    100,

		"batch.size":        batchSize,
		"linger.ms":         lingerMs,
		"compression.type":  "none",
		"message.max.bytes": 2 * 1024 * 1024,
	}
}
