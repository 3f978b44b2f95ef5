package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"anchor-snapshot-sol/internal/logic/accountparser"
	"anchor-snapshot-sol/internal/logic/snapshot"
	"anchor-snapshot-sol/internal/pkg/logger"

	_ "modernc.org/sqlite"
)

// SQLiteSnapshotStore 快照存放在 snapshot_accounts 表中，每个账户一行
type SQLiteSnapshotStore struct {
	db *sql.DB
}

// OpenSQLite 打开（或创建）数据库并建表
func OpenSQLite(path string) (*SQLiteSnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteSnapshotStore{db: db}, nil
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS snapshot_accounts (
  pubkey        TEXT PRIMARY KEY,
  account_type  TEXT NOT NULL,
  data_json     TEXT NOT NULL,
  updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_snapshot_accounts_type ON snapshot_accounts(account_type);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteSnapshotStore) Name() string { return "sqlite" }

func (s *SQLiteSnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save 在一个事务内清空旧快照并分批写入新快照
func (s *SQLiteSnapshotStore) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	entries := snap.Entries()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_accounts;`); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	for i := 0; i < len(entries); i += chunkLimit {
		end := min(i+chunkLimit, len(entries))
		if err := insertChunk(ctx, tx, entries[i:end]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	logger.Infof("[persist] snapshot saved to sqlite, entries=%d", len(entries))
	return nil
}

// insertChunk 插入一批条目；pubkey 冲突时覆盖
func insertChunk(ctx context.Context, tx *sql.Tx, entries []*accountparser.DecodedAccount) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO snapshot_accounts (pubkey, account_type, data_json, updated_at) VALUES `)
	args := make([]interface{}, 0, len(entries)*3)
	for i, acc := range entries {
		raw, err := json.Marshal(acc.Data)
		if err != nil {
			return fmt.Errorf("marshal snapshot entry %s: %w", acc.Pubkey, err)
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?, ?, ?, CURRENT_TIMESTAMP)")
		args = append(args, acc.Pubkey, acc.AccountType, string(raw))
	}
	sb.WriteString(`
ON CONFLICT(pubkey) DO UPDATE SET
  account_type=excluded.account_type,
  data_json=excluded.data_json,
  updated_at=CURRENT_TIMESTAMP;`)

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert snapshot chunk: %w", err)
	}
	return nil
}

// Get 读取单个账户
func (s *SQLiteSnapshotStore) Get(ctx context.Context, pubkey string) (*accountparser.DecodedAccount, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT account_type, data_json FROM snapshot_accounts WHERE pubkey = ?;
`, pubkey)

	var accountType, dataJSON string
	switch err := row.Scan(&accountType, &dataJSON); err {
	case nil:
	case sql.ErrNoRows:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("get snapshot entry: %w", err)
	}

	acc := &accountparser.DecodedAccount{Pubkey: pubkey, AccountType: accountType}
	if err := json.Unmarshal([]byte(dataJSON), &acc.Data); err != nil {
		return nil, false, fmt.Errorf("unmarshal snapshot entry %s: %w", pubkey, err)
	}
	return acc, true, nil
}

// CountByType 按账户类型统计条目数
func (s *SQLiteSnapshotStore) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT account_type, COUNT(*) FROM snapshot_accounts GROUP BY account_type;
`)
	if err != nil {
		return nil, fmt.Errorf("count snapshot entries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[t] = n
	}
	return out, rows.Err()
}
