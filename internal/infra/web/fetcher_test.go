package web

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher() *Fetcher {
	return NewFetcher(WithFetcherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "study-rag/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", contentType)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_ExtractsMainArticleAsMarkdown(t *testing.T) {
	article := strings.Repeat("Photosynthesis converts light energy into chemical energy. ", 8)
	page := `<html><head><title> Photosynthesis - Wiki </title></head><body>
<nav><a href="/">Home</a> Navigation links</nav>
<header>Site header</header>
<article><h1>Photosynthesis</h1><p><strong>` + article + `</strong></p><script>track()</script></article>
<footer>Copyright footer</footer>
</body></html>`
	srv := serve(t, "text/html; charset=utf-8", page)

	got, err := newTestFetcher().Fetch(t.Context(), srv.URL+"/wiki")
	require.NoError(t, err)

	assert.Equal(t, "Photosynthesis - Wiki", got.Title)
	assert.Contains(t, got.Content, "# Photosynthesis")
	assert.Contains(t, got.Content, "**Photosynthesis converts light energy")
	assert.NotContains(t, got.Content, "Navigation links")
	assert.NotContains(t, got.Content, "Copyright footer")
	assert.NotContains(t, got.Content, "track()")
}

func TestFetch_FallsBackToBodyAndOpenGraphTitle(t *testing.T) {
	page := `<html><head><meta property="og:title" content="Short note"></head>
<body><article>too short</article><p>Body paragraph.</p></body></html>`
	srv := serve(t, "text/html", page)

	got, err := newTestFetcher().Fetch(t.Context(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Short note", got.Title)
	assert.Contains(t, got.Content, "too short")
	assert.Contains(t, got.Content, "Body paragraph.")
}

func TestFetch_UntitledPageUsesHost(t *testing.T) {
	srv := serve(t, "text/html", `<html><body><p>Hello</p></body></html>`)

	got, err := newTestFetcher().Fetch(t.Context(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Content from 127.0.0.1", got.Title)
}

func TestFetch_PlainTextIsKeptAsIs(t *testing.T) {
	srv := serve(t, "text/plain; charset=utf-8", "  line one\nline two  ")

	got, err := newTestFetcher().Fetch(t.Context(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", got.Content)
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestFetcher().Fetch(t.Context(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestFetch_BodyLimit(t *testing.T) {
	srv := serve(t, "text/plain", strings.Repeat("a", 100))

	f := NewFetcher(WithMaxBodyBytes(10), WithFetcherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	got, err := f.Fetch(t.Context(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, got.Content, 10)
}

func TestDefaultTitle(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "www を除く", url: "https://www.example.com/a", want: "Content from example.com"},
		{name: "サブドメイン", url: "https://docs.example.org", want: "Content from docs.example.org"},
		{name: "ホストなし", url: "not a url", want: "Untitled Web Content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultTitle(tt.url))
		})
	}
}
