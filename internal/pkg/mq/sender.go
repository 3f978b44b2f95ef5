package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// KafkaJob 一条待发送的 Kafka 消息
type KafkaJob struct {
	Topic     string
	Partition int32
	Key       []byte
	Value     []byte
}

// NewKeyedJob 按 key 选择分区，同一个 key 总是落在同一分区
func NewKeyedJob(topic string, key []byte, partitions int, value []byte) *KafkaJob {
	return &KafkaJob{
		Topic:     topic,
		Partition: PartitionFor(key, partitions),
		Key:       key,
		Value:     value,
	}
}

// PartitionFor xxhash(key) 对分区数取模；partitions <= 1 时固定为 0
func PartitionFor(key []byte, partitions int) int32 {
	if partitions <= 1 {
		return 0
	}
	return int32(xxhash.Sum64(key) % uint64(partitions))
}

func (j *KafkaJob) message() *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &j.Topic, Partition: j.Partition},
		Key:            j.Key,
		Value:          j.Value,
	}
}

// Producer 只取发送所需的方法，*kafka.Producer 满足该接口
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

// KafkaSendResult 单条消息的发送结果
type KafkaSendResult struct {
	Job *KafkaJob
	Err error
}

// SendKafkaJobs 并发发送，每条消息各自等待 ack。
// ok / failed 均保持 jobs 的原始顺序；ctx 取消或等待超时的消息计入 failed
func SendKafkaJobs(
	ctx context.Context,
	producer Producer,
	jobs []*KafkaJob,
	perMessageTimeout time.Duration,
) (ok []*KafkaJob, failed []KafkaSendResult) {
	errs := make([]error, len(jobs))

	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for i, job := range jobs {
		go func(i int, job *KafkaJob) {
			defer wg.Done()
			errs[i] = deliver(ctx, producer, job, perMessageTimeout)
		}(i, job)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			failed = append(failed, KafkaSendResult{Job: jobs[i], Err: err})
			continue
		}
		ok = append(ok, jobs[i])
	}
	return ok, failed
}

// deliver 发送一条消息并等待投递报告。
// events 带 1 个缓冲，放弃等待后 librdkafka 的回调也不会阻塞
func deliver(ctx context.Context, producer Producer, job *KafkaJob, timeout time.Duration) error {
	events := make(chan kafka.Event, 1)
	if err := producer.Produce(job.message(), events); err != nil {
		return fmt.Errorf("produce error: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e, open := <-events:
		if !open {
			return errors.New("delivery channel closed unexpectedly")
		}
		msg, isMsg := e.(*kafka.Message)
		if !isMsg {
			return fmt.Errorf("unexpected delivery event %T", e)
		}
		return msg.TopicPartition.Error
	case <-timer.C:
		return fmt.Errorf("delivery timeout (>%v)", timeout)
	case <-ctx.Done():
		return fmt.Errorf("ctx cancelled: %w", ctx.Err())
	}
}
