package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/study-rag/internal/core/llm"
)

const (
	// DefaultModel はデフォルトで使用するOpenAIモデル
	DefaultModel = "gpt-4o-mini"

	// DefaultTemperature はリクエストで未指定の場合の温度
	DefaultTemperature = 0.3

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second

	// JSONParseMaxRetries はJSON解析エラー時の最大リトライ回数
	JSONParseMaxRetries = 1
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

	// ErrInvalidResponseFormat は不正なレスポンス形式のエラー
	ErrInvalidResponseFormat = errors.New("invalid response format")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// Client は OpenAI Chat Completions API を使用した llm.Client 実装
type Client struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
	baseBackoff time.Duration
	maxBackoff  time.Duration
	logger      *slog.Logger
}

type clientOptions struct {
	model       string
	temperature float64
	timeout     time.Duration
	baseURL     string
	httpClient  *http.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
	logger      *slog.Logger
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithModel はモデル名を上書きする
func WithModel(model string) ClientOption {
	return func(o *clientOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithDefaultTemperature はリクエストで未指定の場合の温度を設定する
func WithDefaultTemperature(t float64) ClientOption {
	return func(o *clientOptions) {
		o.temperature = t
	}
}

// WithTimeout はAPIコールのタイムアウトを設定する
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithBaseURL は互換APIのエンドポイントを指定する
func WithBaseURL(baseURL string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

// WithHTTPClient はHTTPクライアントを差し替える
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithBackoff はレート制限時の待機時間を設定する
func WithBackoff(base, max time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.baseBackoff = base
		o.maxBackoff = max
	}
}

// WithClientLogger はロガーを設定する
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// NewClient は新しい Client を作成する
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := clientOptions{
		model:       DefaultModel,
		temperature: DefaultTemperature,
		timeout:     DefaultTimeout,
		baseBackoff: BaseBackoff,
		maxBackoff:  MaxBackoff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Client{
		client:      openai.NewClient(requestOptions(apiKey, options.baseURL, options.httpClient)...),
		model:       options.model,
		temperature: options.temperature,
		timeout:     options.timeout,
		baseBackoff: options.baseBackoff,
		maxBackoff:  options.maxBackoff,
		logger:      options.logger,
	}, nil
}

// requestOptions はSDKの組み込みリトライを無効化した共通オプションを返す
// リトライは generateWithRetry が制御する
func requestOptions(apiKey, baseURL string, httpClient *http.Client) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return opts
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// Generate は OpenAI API を使用してテキストを生成する
// Shape を指定した場合は JSON Schema による構造化出力を要求し、JSONとして解析できない応答は1回だけ再生成する
func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var jsonParseRetries int
	for {
		resp, err := c.generateWithRetry(ctx, req)
		if err != nil {
			return llm.Response{}, err
		}

		if req.Shape != nil && !isValidJSON(resp.Content) {
			jsonParseRetries++
			if jsonParseRetries > JSONParseMaxRetries {
				return llm.Response{}, fmt.Errorf("%w: JSON parse failed after %d retries", ErrInvalidResponseFormat, JSONParseMaxRetries)
			}
			c.logger.Warn("structured response was not valid JSON, retrying", "shape", req.Shape.Name)
			continue
		}

		return resp, nil
	}
}

func (c *Client) generateWithRetry(ctx context.Context, req llm.Request) (llm.Response, error) {
	params := c.buildParams(req)

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseBackoff
			if backoffDuration > c.maxBackoff {
				backoffDuration = c.maxBackoff
			}
			c.logger.Warn("rate limited by OpenAI, backing off", "attempt", attempt, "backoff", backoffDuration)

			select {
			case <-ctx.Done():
				return llm.Response{}, ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err

			if isRateLimitError(err) {
				continue
			}

			return llm.Response{}, fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return llm.Response{}, fmt.Errorf("no completion choices returned")
		}

		return llm.Response{
			Content:    completion.Choices[0].Message.Content,
			TokensUsed: int(completion.Usage.TotalTokens),
			Model:      string(completion.Model),
		}, nil
	}

	return llm.Response{}, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

func (c *Client) buildParams(req llm.Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if req.Shape != nil {
		schema := shared.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   req.Shape.Name,
			Schema: req.Shape.Schema,
			Strict: openai.Bool(false),
		}
		if req.Shape.Description != "" {
			schema.Description = openai.String(req.Shape.Description)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: schema,
			},
		}
	}

	return params
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}

	return false
}

func isValidJSON(s string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(llm.StripCodeFence(s)), &js) == nil
}

// インターフェース実装の確認
var _ llm.Client = (*Client)(nil)
