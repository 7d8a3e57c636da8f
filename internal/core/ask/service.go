package ask

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jinford/study-rag/internal/core/apperr"
	"github.com/jinford/study-rag/internal/core/indexing"
	"github.com/jinford/study-rag/internal/core/llm"
	"github.com/jinford/study-rag/internal/core/notebook"
)

const msgNoContext = "No sources available or content not yet indexed."

// NotebookService はノートブックの参照と要約の保存を行う
type NotebookService interface {
	GetNotebook(ctx context.Context, notebookID, userID uuid.UUID) (*notebook.Notebook, error)
	HasSources(ctx context.Context, notebookID uuid.UUID) (bool, error)
	SaveSummary(ctx context.Context, notebookID uuid.UUID, summary string) error
	GetSource(ctx context.Context, notebookID, userID, sourceID uuid.UUID) (*notebook.Source, error)
	SaveSourceSummary(ctx context.Context, src *notebook.Source, summary string) error
}

// Retriever はノートブックのチャンクを検索する
type Retriever interface {
	Advisory(ctx context.Context, notebookID uuid.UUID, query string) []*indexing.SearchHit
	AssembleContext(ctx context.Context, notebookID uuid.UUID, topK int) string
}

// AskService はノートブックに対する質問応答・要約・質問例生成を提供する
type AskService struct {
	notebooks NotebookService
	retriever Retriever
	llm       llm.Client
	logger    *slog.Logger
}

type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(
	notebooks NotebookService,
	retriever Retriever,
	client llm.Client,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		notebooks: notebooks,
		retriever: retriever,
		llm:       client,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Chat は質問に近いチャンクを根拠に回答を生成する
func (s *AskService) Chat(ctx context.Context, params ChatParams) (*ChatResult, error) {
	// 1. バリデーション
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return nil, apperr.Validation("query is required")
	}
	if _, err := s.notebooks.GetNotebook(ctx, params.NotebookID, params.UserID); err != nil {
		return nil, err
	}

	// 2. 関連チャンクの検索（失敗時は空）
	hits := s.retriever.Advisory(ctx, params.NotebookID, query)
	s.logger.Info("advisory retrieval completed",
		"notebookID", params.NotebookID.String(),
		"hits", len(hits),
	)

	// 3. LLMで回答生成
	resp, err := s.llm.Generate(ctx, llm.Request{
		System: chatSystemPrompt,
		User:   BuildChatPrompt(query, hits),
	})
	if err != nil {
		return nil, apperr.Generation("failed to generate answer", err)
	}

	// 4. 参照ソースを重複なしで整形して返却
	return &ChatResult{
		Answer:  strings.TrimSpace(resp.Content),
		Sources: citedSources(hits),
	}, nil
}

// Summary はノートブックの要約を生成して保存する
func (s *AskService) Summary(ctx context.Context, notebookID, userID uuid.UUID) (*SummaryResult, error) {
	content, err := s.notebookContext(ctx, notebookID, userID, SummaryTopK)
	if err != nil {
		return nil, err
	}

	resp, err := s.llm.Generate(ctx, llm.Request{
		System: summarySystemPrompt,
		User:   "Write a summary paragraph about this:\n\n" + content,
		Shape:  summaryShape,
	})
	if err != nil {
		return nil, apperr.Generation("failed to generate summary", err)
	}

	var result SummaryResult
	if err := llm.DecodeJSON(resp.Content, &result); err != nil {
		return nil, apperr.Generation("malformed summary response", err)
	}
	result.Summary = strings.TrimSpace(result.Summary)
	if result.Summary == "" {
		return nil, apperr.Generation("malformed summary response", llm.ErrEmptyResponse)
	}

	if err := s.notebooks.SaveSummary(ctx, notebookID, result.Summary); err != nil {
		return nil, err
	}

	s.logger.Info("notebook summary generated", "notebookID", notebookID.String(), "length", len(result.Summary))
	return &result, nil
}

// SummarizeSource はソース1件の本文から2〜3文の要約を生成して保存する
// 本文は先頭 MaxSourceSummaryInputRunes 文字までを使う
func (s *AskService) SummarizeSource(ctx context.Context, notebookID, userID, sourceID uuid.UUID) (string, error) {
	src, err := s.notebooks.GetSource(ctx, notebookID, userID, sourceID)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(src.Content)
	if content == "" {
		return "", apperr.IllegalState("source has no content")
	}
	if runes := []rune(content); len(runes) > MaxSourceSummaryInputRunes {
		content = string(runes[:MaxSourceSummaryInputRunes])
	}

	resp, err := s.llm.Generate(ctx, llm.Request{
		System: sourceSummarySystemPrompt,
		User:   content,
	})
	if err != nil {
		return "", apperr.Generation("failed to generate source summary", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", apperr.Generation("malformed source summary response", llm.ErrEmptyResponse)
	}

	if err := s.notebooks.SaveSourceSummary(ctx, src, summary); err != nil {
		return "", err
	}
	s.logger.Info("source summary generated", "sourceID", sourceID.String(), "length", len(summary))
	return summary, nil
}

// ExampleQuestions はノートブックの内容に関する質問例を最大 MaxExampleQuestions 件生成する
func (s *AskService) ExampleQuestions(ctx context.Context, notebookID, userID uuid.UUID) (*ExampleQuestionsResult, error) {
	content, err := s.notebookContext(ctx, notebookID, userID, ExampleQuestionsTopK)
	if err != nil {
		return nil, err
	}

	resp, err := s.llm.Generate(ctx, llm.Request{
		System: exampleQuestionsSystemPrompt,
		User:   content,
		Shape:  exampleQuestionsShape,
	})
	if err != nil {
		return nil, apperr.Generation("failed to generate example questions", err)
	}

	var raw ExampleQuestionsResult
	if err := llm.DecodeJSON(resp.Content, &raw); err != nil {
		return nil, apperr.Generation("malformed example questions response", err)
	}

	questions := make([]string, 0, MaxExampleQuestions)
	for _, q := range raw.Questions {
		if q = strings.TrimSpace(q); q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == MaxExampleQuestions {
			break
		}
	}

	return &ExampleQuestionsResult{Questions: questions}, nil
}

// notebookContext は所有権を確認してからコンテキストを組み立てる
// ソースがない場合とコンテキストが空の場合は同じエラーを返す
func (s *AskService) notebookContext(ctx context.Context, notebookID, userID uuid.UUID, topK int) (string, error) {
	if _, err := s.notebooks.GetNotebook(ctx, notebookID, userID); err != nil {
		return "", err
	}

	hasSources, err := s.notebooks.HasSources(ctx, notebookID)
	if err != nil {
		return "", err
	}
	if !hasSources {
		return "", apperr.IllegalState(msgNoContext)
	}

	content := s.retriever.AssembleContext(ctx, notebookID, topK)
	if content == "" {
		return "", apperr.IllegalState(msgNoContext)
	}
	return content, nil
}

func citedSources(hits []*indexing.SearchHit) []CitedSource {
	seen := make(map[CitedSource]struct{}, len(hits))
	sources := make([]CitedSource, 0, len(hits))
	for _, hit := range hits {
		if hit == nil || hit.Record == nil {
			continue
		}
		cs := CitedSource{SourceID: hit.Record.Metadata.SourceID, Title: hit.Record.Metadata.Title}
		if _, ok := seen[cs]; ok {
			continue
		}
		seen[cs] = struct{}{}
		sources = append(sources, cs)
	}
	return sources
}
