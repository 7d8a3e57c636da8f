package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrQueueFull はキューが満杯で投入できなかったことを示す
	ErrQueueFull = errors.New("worker pool queue is full")
	// ErrPoolClosed はClose後に投入されたことを示す
	ErrPoolClosed = errors.New("worker pool is closed")
)

// Task はワーカー上で実行される処理
type Task func(ctx context.Context)

// Pool は固定数のワーカーと有界キューを持つ非同期実行器
type Pool struct {
	name   string
	queue  chan Task
	group  *errgroup.Group
	ctx    context.Context
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Option はPoolの設定オプション
type Option func(*Pool)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// New はワーカーを起動したPoolを返す。
// ctx はすべてのタスクに渡される。
func New(ctx context.Context, name string, workers, queueSize int, opts ...Option) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be positive: %d", workers)
	}
	if queueSize <= 0 {
		return nil, fmt.Errorf("queueSize must be positive: %d", queueSize)
	}

	p := &Pool{
		name:   name,
		queue:  make(chan Task, queueSize),
		ctx:    ctx,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	p.group = &errgroup.Group{}
	for i := 0; i < workers; i++ {
		p.group.Go(func() error {
			for task := range p.queue {
				p.run(task)
			}
			return nil
		})
	}

	p.logger.Debug("worker pool started", "pool", name, "workers", workers, "queue_size", queueSize)
	return p, nil
}

// TrySubmit はタスクをブロックせずにキューへ投入する
func (p *Pool) TrySubmit(task func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending はキューに滞留しているタスク数を返す
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Close は新規投入を止め、キュー内のタスクを実行し終えるまで待つ
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	_ = p.group.Wait()
	p.logger.Debug("worker pool stopped", "pool", p.name)
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked",
				"pool", p.name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	task(p.ctx)
}
