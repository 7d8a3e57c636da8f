package llmtest

import (
	"context"
	"sync"

	"github.com/jinford/study-rag/internal/core/llm"
)

// MockClient はテスト用のモック llm.Client です
// 受け取ったリクエストは Requests に記録されます
type MockClient struct {
	GenerateFunc func(ctx context.Context, req llm.Request) (llm.Response, error)

	mu       sync.Mutex
	requests []llm.Request
}

// Generate は Generate のモック実装です
func (m *MockClient) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return llm.Response{}, nil
}

// Requests は記録済みリクエストのコピーを返します
func (m *MockClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// RespondByShape は Shape 名に応じて固定の本文を返す GenerateFunc を作成します
// Shape がない場合は freeText を返します
func RespondByShape(byShape map[string]string, freeText string) func(ctx context.Context, req llm.Request) (llm.Response, error) {
	return func(ctx context.Context, req llm.Request) (llm.Response, error) {
		content := freeText
		if req.Shape != nil {
			content = byShape[req.Shape.Name]
		}
		return llm.Response{Content: content, TokensUsed: 42, Model: "mock"}, nil
	}
}

var _ llm.Client = (*MockClient)(nil)
