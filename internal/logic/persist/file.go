package persist

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"anchor-snapshot-sol/internal/logic/snapshot"
	"anchor-snapshot-sol/internal/pkg/logger"
)

// FileSnapshotStore 将快照写为 2 空格缩进的 JSON 文件
type FileSnapshotStore struct {
	path string
}

func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

func (f *FileSnapshotStore) Name() string { return "file" }

func (f *FileSnapshotStore) Close() error { return nil }

// Save 先写临时文件再 rename，避免读到写了一半的快照
func (f *FileSnapshotStore) Save(_ context.Context, snap *snapshot.Snapshot) error {
	compact, err := snap.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	var buf bytes.Buffer
	if err := stdjson.Indent(&buf, compact, "", "  "); err != nil {
		return fmt.Errorf("indent snapshot: %w", err)
	}
	buf.WriteByte('\n')
	raw := buf.Bytes()

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	logger.Infof("[persist] snapshot saved to %s, entries=%d, bytes=%d", f.path, snap.Len(), len(raw))
	return nil
}
