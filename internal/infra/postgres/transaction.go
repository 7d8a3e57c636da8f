package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionProvider はpgxのトランザクションをコールバックの背後に隠す
type TransactionProvider struct {
	pool *pgxpool.Pool
}

// NewTransactionProvider は新しいTransactionProviderを作成します
func NewTransactionProvider(pool *pgxpool.Pool) *TransactionProvider {
	return &TransactionProvider{pool: pool}
}

// Adapter は1つのトランザクション上で動作するリポジトリ群
type Adapter struct {
	Jobs  *JobRepository
	Locks *LockManager
}

func newAdapter(tx pgx.Tx) *Adapter {
	return &Adapter{
		Jobs:  &JobRepository{db: tx},
		Locks: NewLockManager(tx),
	}
}

// Transact はトランザクションを開始し、アダプタを fn に渡す
// fn がエラーを返した場合はロールバックする
func Transact[T any](ctx context.Context, p *TransactionProvider, fn func(*Adapter) (T, error)) (T, error) {
	var zero T
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}

	result, err := fn(newAdapter(tx))
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return zero, fmt.Errorf("tx rollback failed: %v (original err: %w)", rbErr, err)
		}
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}
