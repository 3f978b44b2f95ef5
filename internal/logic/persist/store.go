package persist

import (
	"context"
	"fmt"

	"anchor-snapshot-sol/internal/logic/snapshot"
	"anchor-snapshot-sol/internal/pkg/logger"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SnapshotStore 快照输出目标。每次 Save 都以新快照整体替换旧内容
type SnapshotStore interface {
	Name() string
	Save(ctx context.Context, snap *snapshot.Snapshot) error
	Close() error
}

// SaveAll 依次写入所有目标，某个目标失败不影响其它目标，返回第一个错误（带目标名）
func SaveAll(ctx context.Context, stores []SnapshotStore, snap *snapshot.Snapshot) error {
	var first error
	for _, s := range stores {
		if err := s.Save(ctx, snap); err != nil {
			logger.Errorf("[persist] save snapshot to %s failed: %v", s.Name(), err)
			if first == nil {
				first = fmt.Errorf("%s: %w", s.Name(), err)
			}
		}
	}
	return first
}

// chunkLimit 单条 SQL / 单个 HSET 最多携带的条目数
const chunkLimit = 500
