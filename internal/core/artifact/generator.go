package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jinford/study-rag/internal/core/apperr"
	"github.com/jinford/study-rag/internal/core/llm"
)

// DefaultTemperature は成果物生成時の既定の temperature
const DefaultTemperature = 0.3

// Generator は組み立て済みコンテキストから学習成果物を生成する
type Generator struct {
	client      llm.Client
	temperature float64
	logger      *slog.Logger
}

// GeneratorOption は Generator のオプション
type GeneratorOption func(*Generator)

// WithGeneratorLogger はロガーを設定する
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithTemperature は生成時の temperature を設定する
func WithTemperature(temperature float64) GeneratorOption {
	return func(g *Generator) {
		g.temperature = temperature
	}
}

// NewGenerator は新しい Generator を作成する
func NewGenerator(client llm.Client, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client:      client,
		temperature: DefaultTemperature,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Generate は種別に応じた成果物を生成し、正規化済みの JSON 文字列を返す
// 生成呼び出しの失敗や形式不正は apperr.ErrGeneration に分類される
func (g *Generator) Generate(ctx context.Context, t Type, content string) (string, error) {
	tmpl, err := templateFor(t)
	if err != nil {
		return "", apperr.Validation("unknown artifact type: %q", t)
	}

	g.logger.Info("generating artifact", "type", t.String(), "contextLength", len(content))

	resp, err := g.client.Generate(ctx, llm.Request{
		System:      tmpl.system,
		User:        tmpl.userPrefix + content,
		Shape:       tmpl.shape,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", apperr.Generation(fmt.Sprintf("%s generation failed", t.Label()), err)
	}

	p := tmpl.newPayload()
	if err := llm.DecodeJSON(resp.Content, p); err != nil {
		return "", apperr.Generation(fmt.Sprintf("malformed %s response", t.Label()), err)
	}

	p.normalize()
	if err := p.validate(); err != nil {
		return "", apperr.Generation(fmt.Sprintf("invalid %s response", t.Label()), err)
	}

	out, err := json.Marshal(p)
	if err != nil {
		return "", apperr.Generation(fmt.Sprintf("failed to serialize %s", t.Label()), err)
	}

	g.logger.Info("artifact generated",
		"type", t.String(),
		"tokensUsed", resp.TokensUsed,
		"model", resp.Model,
	)

	return string(out), nil
}
