package postgres

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// LockManager はトランザクションスコープのアドバイザリロックを取得する
type LockManager struct {
	db DBTX
}

// NewLockManager はトランザクション上のLockManagerを返す
func NewLockManager(db DBTX) *LockManager {
	return &LockManager{db: db}
}

// GenerateLockID は文字列からロックIDを生成します
func GenerateLockID(parts ...string) int64 {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	hash := h.Sum(nil)

	// ハッシュの最初の8バイトをint64として使用
	var id int64
	for i := range 8 {
		id = (id << 8) | int64(hash[i])
	}

	return id
}

// Acquire はpg_advisory_xact_lockを取得する
// ロックはトランザクション終了時に自動で解放される
func (m *LockManager) Acquire(ctx context.Context, lockID int64) error {
	if _, err := m.db.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockID); err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	return nil
}
