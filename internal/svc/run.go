package svc

import (
	"context"
	"fmt"
	"time"

	"anchor-snapshot-sol/internal/logic/persist"
	"anchor-snapshot-sol/internal/mq"
	"anchor-snapshot-sol/internal/pkg/logger"
)

// Summary 一次快照任务的统计
type Summary struct {
	Fetched       int
	Entries       int
	Failures      int
	Skipped       int
	Fallbacks     int
	PublishFailed int
	Elapsed       time.Duration
}

// Run 拉取 → 解码汇总 → 输出。
// 拉取失败或任一输出目标写入失败时返回错误（此时仍返回 Summary，并照常尝试发送 Kafka）；
// 单个账户解码失败与 Kafka 发送失败只记录在 Summary 与日志中
func (ctx *ServiceContext) Run(c context.Context) (*Summary, error) {
	start := time.Now()

	items, err := ctx.Source.Fetch(c)
	if err != nil {
		return nil, fmt.Errorf("fetch accounts: %w", err)
	}

	res := ctx.Aggregator.Aggregate(items)
	sum := &Summary{
		Fetched:   len(items),
		Entries:   res.Snapshot.Len(),
		Failures:  len(res.Failures),
		Skipped:   res.Skipped,
		Fallbacks: res.Fallbacks,
	}

	persistErr := persist.SaveAll(c, ctx.Stores, res.Snapshot)
	if persistErr != nil {
		logger.Errorf("[svc] persist snapshot: %v", persistErr)
	}

	if ctx.Producer != nil {
		kc := ctx.Config.KafkaProducerConf
		timeout := time.Duration(kc.SendTimeoutMs) * time.Millisecond
		failed, err := mq.PublishSnapshot(c, ctx.Producer, kc.Topic, kc.Partitions, res.Snapshot, timeout)
		if err != nil {
			logger.Errorf("[svc] publish snapshot: %v", err)
		}
		sum.PublishFailed = failed
	}

	sum.Elapsed = time.Since(start)
	logger.Infof("[svc] snapshot done: fetched=%d, entries=%d, failures=%d, skipped=%d, fallbacks=%d, publish_failed=%d, elapsed=%s",
		sum.Fetched, sum.Entries, sum.Failures, sum.Skipped, sum.Fallbacks, sum.PublishFailed, sum.Elapsed)
	if persistErr != nil {
		return sum, fmt.Errorf("persist snapshot: %w", persistErr)
	}
	return sum, nil
}
