package llm

import "context"

// Client は生成モデルとのやり取りを抽象化する共通インターフェース
type Client interface {
	// Generate はシステム指示とユーザー入力から応答を生成する
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request は生成リクエスト
type Request struct {
	// System はシステム指示
	System string

	// User はユーザー入力（組み立て済みコンテキストなど）
	User string

	// Shape は期待する構造化出力の形（nil の場合は自由テキスト）
	Shape *Shape

	// Temperature は生成の多様性を制御する (0.0-2.0)。0 の場合はクライアントの既定値を使う
	Temperature float64

	// MaxTokens は生成する最大トークン数。0 の場合は無制限
	MaxTokens int
}

// Shape は構造化出力の JSON Schema
type Shape struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Response は生成結果
type Response struct {
	// Content は生成されたテキスト（Shape 指定時は JSON）
	Content string

	// TokensUsed は使用されたトークン数
	TokensUsed int

	// Model は実際に使用されたモデル名
	Model string
}
