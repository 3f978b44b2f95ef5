package mq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"anchor-snapshot-sol/internal/logic/accountparser"
	"anchor-snapshot-sol/internal/logic/snapshot"
	"anchor-snapshot-sol/internal/pkg/mq"
	"anchor-snapshot-sol/internal/pkg/types"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() (*snapshot.Snapshot, []types.Pubkey) {
	keys := []types.Pubkey{{0: 1, 27: 3}, {0: 2, 27: 6}, {0: 3, 7: 9, 27: 1}}
	snap := snapshot.NewSnapshot()
	for _, k := range keys {
		snap.Put(&accountparser.DecodedAccount{
			Pubkey:      k.String(),
			AccountType: "Widget",
			Data:        map[string]interface{}{"enabled": true},
		})
	}
	return snap, keys
}

func TestBuildSnapshotJobs(t *testing.T) {
	snap, keys := testSnapshot()

	jobs, err := BuildSnapshotJobs("anchor-snapshot", 4, snap)
	require.NoError(t, err)
	require.Len(t, jobs, len(keys))

	byKey := map[string]int32{}
	for _, job := range jobs {
		assert.Equal(t, "anchor-snapshot", job.Topic)
		byKey[string(job.Key)] = job.Partition

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(job.Value, &decoded))
		assert.Equal(t, string(job.Key), decoded["pubkey"])
		assert.Equal(t, "Widget", decoded["account_type"])
		assert.Equal(t, map[string]interface{}{"enabled": true}, decoded["data"])
	}
	for _, k := range keys {
		assert.Equal(t, mq.PartitionFor([]byte(k.String()), 4), byKey[k.String()])
	}

	// 单分区
	jobs, err = BuildSnapshotJobs("t", 0, snap)
	require.NoError(t, err)
	for _, job := range jobs {
		assert.Zero(t, job.Partition)
	}
}

func TestBuildSnapshotJobsRejectsBadPubkey(t *testing.T) {
	snap := snapshot.NewSnapshot()
	snap.Put(&accountparser.DecodedAccount{Pubkey: "not-a-key", AccountType: "Widget"})
	_, err := BuildSnapshotJobs("t", 1, snap)
	assert.Error(t, err)
}

type stubProducer struct {
	fail bool
	sent atomic.Int32
}

func (p *stubProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	p.sent.Add(1)
	if p.fail {
		msg.TopicPartition.Error = errors.New("broker down")
	}
	deliveryChan <- msg
	return nil
}

func TestPublishSnapshot(t *testing.T) {
	snap, keys := testSnapshot()

	p := &stubProducer{}
	failed, err := PublishSnapshot(context.Background(), p, "t", 2, snap, time.Second)
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Equal(t, int32(len(keys)), p.sent.Load())

	failed, err = PublishSnapshot(context.Background(), &stubProducer{fail: true}, "t", 2, snap, time.Second)
	require.Error(t, err)
	assert.Equal(t, len(keys), failed)

	failed, err = PublishSnapshot(context.Background(), p, "t", 2, snapshot.NewSnapshot(), time.Second)
	assert.NoError(t, err)
	assert.Zero(t, failed)
}
