package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/study-rag/internal/core/artifact"
	"github.com/jinford/study-rag/internal/core/ask"
	"github.com/jinford/study-rag/internal/core/chunk"
	"github.com/jinford/study-rag/internal/core/indexing"
	"github.com/jinford/study-rag/internal/core/job"
	"github.com/jinford/study-rag/internal/core/llm"
	"github.com/jinford/study-rag/internal/core/notebook"
	"github.com/jinford/study-rag/internal/core/retrieval"
	"github.com/jinford/study-rag/internal/infra/memory"
	"github.com/jinford/study-rag/internal/infra/openai"
	"github.com/jinford/study-rag/internal/infra/postgres"
	"github.com/jinford/study-rag/internal/infra/web"
	"github.com/jinford/study-rag/internal/platform/config"
	"github.com/jinford/study-rag/internal/platform/workerpool"
)

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ServiceContainer はアプリケーションの依存関係を保持する。
type ServiceContainer struct {
	NotebookService *notebook.Service
	JobScheduler    *job.Scheduler
	AskService      *ask.AskService
	Indexer         *indexing.Indexer
	Retriever       *retrieval.Retriever

	indexPool *workerpool.Pool
	jobPool   *workerpool.Pool
	logger    *slog.Logger
	database  *postgres.DB
}

type containerOptions struct {
	logger    *slog.Logger
	llmClient llm.Client
	embedder  Embedder
	inMemory  bool
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerLLMClient は生成モデルのクライアントを差し替える
func WithContainerLLMClient(client llm.Client) ContainerOption {
	return func(opts *containerOptions) {
		opts.llmClient = client
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerInMemoryStores はデータベースを使わずプロセス内のストアで構築する
// Embedder を指定しない場合、チャンク検索は語彙ベースになる
func WithContainerInMemoryStores() ContainerOption {
	return func(opts *containerOptions) {
		opts.inMemory = true
	}
}

// NewContainer は設定からコンテナを生成する。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := applyOptions(opts)
	if options.inMemory {
		return build(ctx, cfg, options, nil)
	}

	db, err := postgres.New(ctx, postgres.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	c, err := build(ctx, cfg, options, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDB は既存の DB を受け取りコンテナを生成する。
func NewContainerWithDB(ctx context.Context, cfg *config.Config, db *postgres.DB, opts ...ContainerOption) (*ServiceContainer, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	options := applyOptions(opts)
	options.inMemory = false
	return build(ctx, cfg, options, db)
}

func applyOptions(opts []ContainerOption) containerOptions {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	return options
}

func build(ctx context.Context, cfg *config.Config, options containerOptions, db *postgres.DB) (*ServiceContainer, error) {
	logger := options.logger

	// LLM (OpenAI)
	llmClient := options.llmClient
	if llmClient == nil {
		client, err := openai.NewClient(cfg.OpenAI.APIKey,
			openai.WithModel(cfg.OpenAI.LLMModel),
			openai.WithDefaultTemperature(cfg.OpenAI.LLMTemperature),
			openai.WithTimeout(time.Duration(cfg.OpenAI.LLMTimeoutSeconds)*time.Second),
			openai.WithBaseURL(cfg.OpenAI.BaseURL),
			openai.WithClientLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("LLMクライアント初期化に失敗しました: %w", err)
		}
		llmClient = client
	}

	// Embedder (OpenAI)。インメモリ構成では必須ではない
	embedder := options.embedder
	if embedder == nil && !options.inMemory {
		e, err := openai.NewEmbedder(cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
			openai.WithEmbeddingBaseURL(cfg.OpenAI.BaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("Embedder 初期化に失敗しました: %w", err)
		}
		embedder = e
	}

	// Repository / ChunkIndex
	var (
		notebookRepo notebook.Repository
		jobStore     job.Store
		chunkIndex   indexing.ChunkIndex
	)
	if options.inMemory {
		var indexOpts []memory.ChunkIndexOption
		if embedder != nil {
			indexOpts = append(indexOpts, memory.WithEmbedder(embedder))
		}
		notebookRepo = memory.NewNotebookStore()
		jobStore = memory.NewJobStore()
		chunkIndex = memory.NewChunkIndex(indexOpts...)
	} else {
		notebookRepo = postgres.NewNotebookRepository(db.Pool)
		jobStore = postgres.NewJobRepository(db.Pool)
		chunkIndex = postgres.NewChunkStore(db.Pool, embedder,
			postgres.WithEfSearch(cfg.Vector.EfSearch),
			postgres.WithChunkStoreLogger(logger),
		)
	}

	splitter, err := chunk.NewSplitter(chunk.Config{
		TargetTokens:   cfg.Chunking.TargetTokens,
		OverlapTokens:  cfg.Chunking.OverlapTokens,
		MinTokens:      cfg.Chunking.MinTokens,
		MaxInputTokens: cfg.Chunking.MaxInputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("Splitter 初期化に失敗しました: %w", err)
	}

	// WorkerPool
	indexPool, err := workerpool.New(ctx, "indexer", cfg.Workers.IndexWorkers, cfg.Workers.IndexQueueSize, workerpool.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("インデックス用ワーカープール初期化に失敗しました: %w", err)
	}
	jobPool, err := workerpool.New(ctx, "generation", cfg.Workers.JobWorkers, cfg.Workers.JobQueueSize, workerpool.WithLogger(logger))
	if err != nil {
		indexPool.Close()
		return nil, fmt.Errorf("生成ジョブ用ワーカープール初期化に失敗しました: %w", err)
	}

	indexer := indexing.NewIndexer(chunkIndex, splitter, indexPool, indexing.WithIndexerLogger(logger))
	retriever := retrieval.NewRetriever(chunkIndex, retrieval.WithRetrieverLogger(logger))
	fetcher := web.NewFetcher(
		web.WithFetchTimeout(time.Duration(cfg.Web.FetchTimeoutSeconds)*time.Second),
		web.WithUserAgent(cfg.Web.UserAgent),
		web.WithMaxBodyBytes(cfg.Web.MaxBodyBytes),
		web.WithFetcherLogger(logger),
	)
	notebookService := notebook.NewService(notebookRepo, indexer,
		notebook.WithServiceLogger(logger),
		notebook.WithWebFetcher(fetcher),
	)
	generator := artifact.NewGenerator(llmClient,
		artifact.WithGeneratorLogger(logger),
		artifact.WithTemperature(cfg.OpenAI.LLMTemperature),
	)
	scheduler := job.NewScheduler(jobStore, notebookRepo, retriever, generator, jobPool, job.WithSchedulerLogger(logger))
	askService := ask.NewAskService(notebookService, retriever, llmClient, ask.WithAskLogger(logger))

	return &ServiceContainer{
		NotebookService: notebookService,
		JobScheduler:    scheduler,
		AskService:      askService,
		Indexer:         indexer,
		Retriever:       retriever,
		indexPool:       indexPool,
		jobPool:         jobPool,
		logger:          logger,
		database:        db,
	}, nil
}

// Close はキューに残った処理を終えてから内部リソースを解放する。
func (c *ServiceContainer) Close() {
	if c == nil {
		return
	}
	if c.indexPool != nil {
		c.indexPool.Close()
	}
	if c.jobPool != nil {
		c.jobPool.Close()
	}
	if c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Database はデータベースを返す（インメモリ構成では nil）。
func (c *ServiceContainer) Database() *postgres.DB {
	if c == nil {
		return nil
	}
	return c.database
}
