package persist

import (
	"context"
	"fmt"

	"anchor-snapshot-sol/internal/logic/accountparser"
	"anchor-snapshot-sol/internal/logic/snapshot"
	"anchor-snapshot-sol/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotStore 快照存放在单个 hash 中：field 为 pubkey，value 为条目 JSON
type RedisSnapshotStore struct {
	rdb *redis.Client
	key string
}

func NewRedisSnapshotStore(rdb *redis.Client, key string) *RedisSnapshotStore {
	return &RedisSnapshotStore{rdb: rdb, key: key}
}

func (r *RedisSnapshotStore) Name() string { return "redis" }

func (r *RedisSnapshotStore) Close() error { return r.rdb.Close() }

// Save DEL + HSET 放在同一个 MULTI 中，读者看不到新旧混合的 hash
func (r *RedisSnapshotStore) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	entries := snap.Entries()

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, r.key)
	for i := 0; i < len(entries); i += chunkLimit {
		end := min(i+chunkLimit, len(entries))
		values := make([]interface{}, 0, (end-i)*2)
		for _, acc := range entries[i:end] {
			raw, err := json.Marshal(acc)
			if err != nil {
				return fmt.Errorf("marshal snapshot entry %s: %w", acc.Pubkey, err)
			}
			values = append(values, acc.Pubkey, raw)
		}
		pipe.HSet(ctx, r.key, values...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save snapshot: %w", err)
	}
	logger.Infof("[persist] snapshot saved to redis hash %s, entries=%d", r.key, len(entries))
	return nil
}

// Get 读取单个账户，不存在时返回 (nil, false, nil)
func (r *RedisSnapshotStore) Get(ctx context.Context, pubkey string) (*accountparser.DecodedAccount, bool, error) {
	raw, err := r.rdb.HGet(ctx, r.key, pubkey).Bytes()
	switch {
	case err == redis.Nil:
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("redis hget error: %w", err)
	}

	var acc accountparser.DecodedAccount
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, false, fmt.Errorf("unmarshal snapshot entry %s: %w", pubkey, err)
	}
	return &acc, true, nil
}

// Len 当前 hash 中的条目数
func (r *RedisSnapshotStore) Len(ctx context.Context) (int64, error) {
	return r.rdb.HLen(ctx, r.key).Result()
}
