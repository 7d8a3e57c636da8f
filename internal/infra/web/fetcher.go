// Package web はURLからソース本文を取り込む
package web

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/jinford/study-rag/internal/core/notebook"
)

const (
	defaultTimeout      = 20 * time.Second
	defaultMaxBodyBytes = 5 << 20
	defaultUserAgent    = "study-rag/1.0"

	// 本文候補として採用する最小文字数
	minMainTextRunes = 200
)

// 本文抽出の前に取り除く要素
const noiseSelector = "nav, header, footer, aside, .sidebar, .menu, .navigation, " +
	".advertisement, .ads, .ad, script, style, noscript, " +
	".footer, .header, .nav, #nav, #header, #footer, #sidebar, " +
	".social, .share, .comments, .related, .recommended"

// 本文らしい要素を優先順に並べたもの
var mainSelectors = []string{
	"article", "main", "[role=main]", ".post-content", ".article-content",
	".entry-content", ".content", "#content", "#mw-content-text", ".mw-parser-output",
}

// Fetcher はHTMLページを取得し、本文をMarkdownに変換する
type Fetcher struct {
	httpClient   *http.Client
	userAgent    string
	maxBodyBytes int64
	logger       *slog.Logger
}

// FetcherOption は Fetcher のオプション
type FetcherOption func(*Fetcher)

// WithFetchTimeout はリクエストのタイムアウトを設定する
func WithFetchTimeout(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.httpClient.Timeout = timeout
		}
	}
}

// WithUserAgent は User-Agent ヘッダを設定する
func WithUserAgent(userAgent string) FetcherOption {
	return func(f *Fetcher) {
		if userAgent != "" {
			f.userAgent = userAgent
		}
	}
}

// WithMaxBodyBytes は読み込むレスポンスボディの上限を設定する
func WithMaxBodyBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodyBytes = n
		}
	}
}

// WithHTTPClient はHTTPクライアントを差し替える
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithFetcherLogger はロガーを設定する
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher は新しい Fetcher を作成する
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		userAgent:    defaultUserAgent,
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

var _ notebook.WebFetcher = (*Fetcher)(nil)

// Fetch はページを取得してタイトルとMarkdown本文を返す
// プレーンテキストのレスポンスはそのまま本文として扱う
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*notebook.WebPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content from URL %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch content from URL %s: status %d", rawURL, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, f.maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	var page *notebook.WebPage
	switch mediaType {
	case "text/plain", "text/markdown":
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		page = &notebook.WebPage{Title: DefaultTitle(rawURL), Content: strings.TrimSpace(string(b))}
	default:
		page, err = f.parseHTML(rawURL, body)
		if err != nil {
			return nil, err
		}
	}

	f.logger.Info("web content fetched",
		"url", rawURL,
		"title", page.Title,
		"contentLength", len(page.Content),
	)
	return page, nil
}

func (f *Fetcher) parseHTML(rawURL string, body io.Reader) (*notebook.WebPage, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		og, _ := doc.Find(`meta[property="og:title"]`).First().Attr("content")
		title = strings.TrimSpace(og)
	}
	if title == "" {
		title = DefaultTitle(rawURL)
	}

	doc.Find(noiseSelector).Remove()

	inner, err := mainElement(doc).Html()
	if err != nil {
		return nil, fmt.Errorf("failed to render main element: %w", err)
	}
	markdown, err := htmltomarkdown.ConvertString(inner)
	if err != nil {
		return nil, fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}

	return &notebook.WebPage{Title: title, Content: strings.TrimSpace(markdown)}, nil
}

// mainElement は本文らしい要素を返す。見つからなければ body
func mainElement(doc *goquery.Document) *goquery.Selection {
	for _, selector := range mainSelectors {
		el := doc.Find(selector).First()
		if el.Length() == 0 {
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(el.Text())) > minMainTextRunes {
			return el
		}
	}
	return doc.Find("body").First()
}

// DefaultTitle はタイトルを取れなかったページの既定タイトルを返す
func DefaultTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "Untitled Web Content"
	}
	return "Content from " + strings.TrimPrefix(u.Hostname(), "www.")
}
