package mq

import (
	"context"
	"fmt"
	"time"

	"anchor-snapshot-sol/internal/logic/snapshot"
	"anchor-snapshot-sol/internal/pkg/logger"
	"anchor-snapshot-sol/internal/pkg/mq"
	"anchor-snapshot-sol/internal/pkg/types"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BuildSnapshotJobs 每个快照条目生成一条 KafkaJob：key 为 base58 pubkey，value 为条目 JSON。
// 分区由 key 决定，同一账户总是落在同一分区。
func BuildSnapshotJobs(topic string, partitions int, snap *snapshot.Snapshot) ([]*mq.KafkaJob, error) {
	entries := snap.Entries()
	jobs := make([]*mq.KafkaJob, 0, len(entries))
	for _, acc := range entries {
		if _, err := types.TryPubkeyFromBase58(acc.Pubkey); err != nil {
			return nil, fmt.Errorf("snapshot entry %s: %w", acc.Pubkey, err)
		}
		value, err := json.Marshal(acc)
		if err != nil {
			return nil, fmt.Errorf("marshal snapshot entry %s: %w", acc.Pubkey, err)
		}
		jobs = append(jobs, mq.NewKeyedJob(topic, []byte(acc.Pubkey), partitions, value))
	}
	return jobs, nil
}

// PublishSnapshot 发送快照中的全部条目，返回失败的条数
func PublishSnapshot(
	ctx context.Context,
	producer mq.Producer,
	topic string,
	partitions int,
	snap *snapshot.Snapshot,
	perMessageTimeout time.Duration,
) (int, error) {
	jobs, err := BuildSnapshotJobs(topic, partitions, snap)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	start := time.Now()
	ok, failed := mq.SendKafkaJobs(ctx, producer, jobs, perMessageTimeout)
	for i, f := range failed {
		if i >= 10 {
			logger.Errorf("[mq] ... %d more failed snapshot messages", len(failed)-i)
			break
		}
		logger.Errorf("[mq] send snapshot entry %s failed: %v", f.Job.Key, f.Err)
	}
	logger.Infof("[mq] published snapshot to %s, ok=%d, failed=%d, elapsed=%s",
		topic, len(ok), len(failed), time.Since(start))

	if len(failed) > 0 {
		return len(failed), fmt.Errorf("%d of %d snapshot messages failed: %w", len(failed), len(jobs), failed[0].Err)
	}
	return 0, nil
}
