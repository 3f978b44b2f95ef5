package snapshot

import (
	"sort"
	"sync"

	"anchor-snapshot-sol/internal/logic/accountparser"
	"anchor-snapshot-sol/internal/pkg/types"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RawAccount 从链上取回的原始账户
type RawAccount struct {
	Pubkey types.Pubkey
	Data   []byte
}

// Snapshot pubkey(base58) → 解码结果。单个 map + 互斥锁，允许多个 worker 并发写入
type Snapshot struct {
	mu      sync.RWMutex
	entries map[string]*accountparser.DecodedAccount
}

func NewSnapshot() *Snapshot {
	return &Snapshot{entries: make(map[string]*accountparser.DecodedAccount)}
}

// Put 写入一条记录，同一 pubkey 后写覆盖先写
func (s *Snapshot) Put(acc *accountparser.DecodedAccount) {
	s.mu.Lock()
	s.entries[acc.Pubkey] = acc
	s.mu.Unlock()
}

func (s *Snapshot) Get(pubkey string) (*accountparser.DecodedAccount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.entries[pubkey]
	return acc, ok
}

func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Keys 排序后的 pubkey 列表
func (s *Snapshot) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Entries 按 pubkey 排序的记录
func (s *Snapshot) Entries() []*accountparser.DecodedAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accountparser.DecodedAccount, 0, len(s.entries))
	for _, acc := range s.entries {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pubkey < out[j].Pubkey })
	return out
}

// MarshalJSON 输出以 pubkey 为 key 的对象，key 有序
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.entries)
}
