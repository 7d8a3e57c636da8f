package notebook

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/study-rag/internal/core/apperr"
	"github.com/jinford/study-rag/internal/core/indexing"
)

// DefaultTitle はタイトル未指定のノートブック・ソースに付与するタイトル
const DefaultTitle = indexing.DefaultTitle

// SourceIndexer はソースのチャンクインデックスを管理する
type SourceIndexer interface {
	IndexSource(src indexing.SourceContent)
	DeleteIndexedSource(ctx context.Context, sourceID uuid.UUID)
}

// WebFetcher はURLからソースの本文を取得する
type WebFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*WebPage, error)
}

// Service はノートブックとソースとノートの操作を提供する
// すべての操作は要求者のユーザーIDで所有権を確認する
type Service struct {
	repo    Repository
	indexer SourceIndexer
	fetcher WebFetcher
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceOption は Service のオプション
type ServiceOption func(*Service)

// WithServiceLogger はロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithWebFetcher はURLソースの取得に使う WebFetcher を設定する
func WithWebFetcher(fetcher WebFetcher) ServiceOption {
	return func(s *Service) {
		s.fetcher = fetcher
	}
}

// NewService は新しい Service を作成する
func NewService(repo Repository, indexer SourceIndexer, opts ...ServiceOption) *Service {
	s := &Service{
		repo:    repo,
		indexer: indexer,
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateNotebook はノートブックを作成する
func (s *Service) CreateNotebook(ctx context.Context, userID uuid.UUID, title string) (*Notebook, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("userID is required")
	}

	now := s.now()
	nb := &Notebook{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     titleOrDefault(title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateNotebook(ctx, nb); err != nil {
		return nil, fmt.Errorf("failed to create notebook: %w", err)
	}

	s.logger.Info("notebook created", "notebookID", nb.ID.String(), "userID", userID.String())
	return nb, nil
}

// GetNotebook はユーザーが所有するノートブックを返す
// 他人のノートブックは存在しないものとして扱う
func (s *Service) GetNotebook(ctx context.Context, notebookID, userID uuid.UUID) (*Notebook, error) {
	nb, err := s.repo.GetNotebook(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	if nb.UserID != userID {
		return nil, apperr.NotFound("notebook not found")
	}
	return nb, nil
}

// ListNotebooks はユーザーのノートブックを新しい順に返す
func (s *Service) ListNotebooks(ctx context.Context, userID uuid.UUID) ([]*Notebook, error) {
	notebooks, err := s.repo.ListNotebooksByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notebooks: %w", err)
	}
	return notebooks, nil
}

// UpdateNotebook はノートブックのタイトルを変更する
func (s *Service) UpdateNotebook(ctx context.Context, notebookID, userID uuid.UUID, title string) (*Notebook, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	nb, err := s.GetNotebook(ctx, notebookID, userID)
	if err != nil {
		return nil, err
	}

	nb.Title = title
	nb.UpdatedAt = s.now()
	if err := s.repo.UpdateNotebook(ctx, nb); err != nil {
		return nil, fmt.Errorf("failed to update notebook: %w", err)
	}
	return nb, nil
}

// DeleteNotebook はノートブックを削除する
// ソースのチャンクを先に削除し、ソースとノートはノートブックと一緒に消える
func (s *Service) DeleteNotebook(ctx context.Context, notebookID, userID uuid.UUID) error {
	if _, err := s.GetNotebook(ctx, notebookID, userID); err != nil {
		return err
	}
	sources, err := s.repo.ListSources(ctx, notebookID)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}
	for _, src := range sources {
		s.indexer.DeleteIndexedSource(ctx, src.ID)
	}

	if err := s.repo.DeleteNotebook(ctx, notebookID); err != nil {
		return fmt.Errorf("failed to delete notebook: %w", err)
	}
	s.logger.Info("notebook deleted", "notebookID", notebookID.String(), "sources", len(sources))
	return nil
}

// AddSourceParams はソース追加のパラメータ
type AddSourceParams struct {
	NotebookID uuid.UUID
	UserID     uuid.UUID
	Title      string
	Link       string
	Content    string
}

// AddSource はソースを保存し、インデックス処理を非同期で開始する
// インデックスの成否は戻り値に影響しない
func (s *Service) AddSource(ctx context.Context, params AddSourceParams) (*Source, error) {
	if strings.TrimSpace(params.Content) == "" {
		return nil, apperr.Validation("source content is empty")
	}
	if _, err := s.GetNotebook(ctx, params.NotebookID, params.UserID); err != nil {
		return nil, err
	}

	now := s.now()
	src := &Source{
		ID:         uuid.New(),
		NotebookID: params.NotebookID,
		Title:      titleOrDefault(params.Title),
		Content:    params.Content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if link := strings.TrimSpace(params.Link); link != "" {
		src.Link = &link
	}

	if err := s.repo.CreateSource(ctx, src); err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	s.indexer.IndexSource(indexing.SourceContent{
		NotebookID: src.NotebookID,
		SourceID:   src.ID,
		Title:      src.Title,
		Link:       src.LinkOrEmpty(),
		Content:    src.Content,
	})

	s.logger.Info("source added",
		"sourceID", src.ID.String(),
		"notebookID", src.NotebookID.String(),
		"contentLength", len(src.Content),
	)
	return src, nil
}

// AddURLSourceParams はURLからのソース追加のパラメータ
type AddURLSourceParams struct {
	NotebookID uuid.UUID
	UserID     uuid.UUID
	Title      string // 空の場合はページのタイトル
	URL        string
}

// AddSourceFromURL はページを取得してMarkdownに変換し、ソースとして追加する
func (s *Service) AddSourceFromURL(ctx context.Context, params AddURLSourceParams) (*Source, error) {
	link, err := parseSourceURL(params.URL)
	if err != nil {
		return nil, err
	}
	if s.fetcher == nil {
		return nil, apperr.IllegalState("url ingestion is not configured")
	}
	if _, err := s.GetNotebook(ctx, params.NotebookID, params.UserID); err != nil {
		return nil, err
	}

	page, err := s.fetcher.Fetch(ctx, link)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(page.Content) == "" {
		return nil, apperr.Validation("no text content could be extracted from %s", link)
	}

	title := params.Title
	if strings.TrimSpace(title) == "" {
		title = page.Title
	}
	return s.AddSource(ctx, AddSourceParams{
		NotebookID: params.NotebookID,
		UserID:     params.UserID,
		Title:      title,
		Link:       link,
		Content:    page.Content,
	})
}

func parseSourceURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", apperr.Validation("invalid source url: %q", raw)
	}
	return u.String(), nil
}

// ListSources はノートブックのソースを追加順に返す
func (s *Service) ListSources(ctx context.Context, notebookID, userID uuid.UUID) ([]*Source, error) {
	if _, err := s.GetNotebook(ctx, notebookID, userID); err != nil {
		return nil, err
	}
	sources, err := s.repo.ListSources(ctx, notebookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

// DeleteSource はソースとそのチャンクを削除する
func (s *Service) DeleteSource(ctx context.Context, notebookID, userID, sourceID uuid.UUID) error {
	if _, err := s.GetSource(ctx, notebookID, userID, sourceID); err != nil {
		return err
	}

	s.indexer.DeleteIndexedSource(ctx, sourceID)

	if err := s.repo.DeleteSource(ctx, sourceID); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	s.logger.Info("source deleted", "sourceID", sourceID.String(), "notebookID", notebookID.String())
	return nil
}

// GetSource はノートブックに属するソースを本文付きで返す
// 別のノートブックのソースは存在しないものとして扱う
func (s *Service) GetSource(ctx context.Context, notebookID, userID, sourceID uuid.UUID) (*Source, error) {
	if _, err := s.GetNotebook(ctx, notebookID, userID); err != nil {
		return nil, err
	}
	src, err := s.repo.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if src.NotebookID != notebookID {
		return nil, apperr.NotFound("source not found")
	}
	return src, nil
}

// UpdateSourceParams はソース更新のパラメータ
// nil のフィールドは変更しない
type UpdateSourceParams struct {
	NotebookID uuid.UUID
	UserID     uuid.UUID
	SourceID   uuid.UUID
	Title      *string
	Link       *string // 空文字列でリンクを外す
}

// UpdateSource はソースのタイトルとリンクを変更する
// 既存のチャンクは作り直さない
func (s *Service) UpdateSource(ctx context.Context, params UpdateSourceParams) (*Source, error) {
	src, err := s.GetSource(ctx, params.NotebookID, params.UserID, params.SourceID)
	if err != nil {
		return nil, err
	}

	if params.Title != nil {
		src.Title = titleOrDefault(*params.Title)
	}
	if params.Link != nil {
		if link := strings.TrimSpace(*params.Link); link != "" {
			src.Link = &link
		} else {
			src.Link = nil
		}
	}
	src.UpdatedAt = s.now()

	if err := s.repo.UpdateSource(ctx, src); err != nil {
		return nil, fmt.Errorf("failed to update source: %w", err)
	}
	return src, nil
}

// SourceSummary はソースの要約を返す（未生成なら空文字列）
func (s *Service) SourceSummary(ctx context.Context, notebookID, userID, sourceID uuid.UUID) (string, error) {
	src, err := s.GetSource(ctx, notebookID, userID, sourceID)
	if err != nil {
		return "", err
	}
	if src.Summary == nil {
		return "", nil
	}
	return *src.Summary, nil
}

// SaveSourceSummary はソースの要約を保存する
func (s *Service) SaveSourceSummary(ctx context.Context, src *Source, summary string) error {
	src.Summary = &summary
	src.UpdatedAt = s.now()
	if err := s.repo.UpdateSource(ctx, src); err != nil {
		return fmt.Errorf("failed to save source summary: %w", err)
	}
	return nil
}

// DeleteSourceSummary はソースの要約を削除する
func (s *Service) DeleteSourceSummary(ctx context.Context, notebookID, userID, sourceID uuid.UUID) error {
	src, err := s.GetSource(ctx, notebookID, userID, sourceID)
	if err != nil {
		return err
	}
	src.Summary = nil
	src.UpdatedAt = s.now()
	if err := s.repo.UpdateSource(ctx, src); err != nil {
		return fmt.Errorf("failed to delete source summary: %w", err)
	}
	return nil
}

// HasSources はノートブックにソースがあるかを返す
func (s *Service) HasSources(ctx context.Context, notebookID uuid.UUID) (bool, error) {
	return s.repo.HasSources(ctx, notebookID)
}

// SaveSummary はノートブックの要約を保存する
func (s *Service) SaveSummary(ctx context.Context, notebookID uuid.UUID, summary string) error {
	if err := s.repo.UpdateSummary(ctx, notebookID, summary); err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	return nil
}

func titleOrDefault(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return DefaultTitle
}
