package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/study-rag/internal/core/artifact/artifacttest"
	"github.com/jinford/study-rag/internal/core/job"
	"github.com/jinford/study-rag/internal/core/llm/llmtest"
	"github.com/jinford/study-rag/internal/platform/config"
	"github.com/jinford/study-rag/internal/platform/container"
)

type harness struct {
	cont *container.ServiceContainer
	out  *bytes.Buffer
	user string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		OpenAI:   config.OpenAIConfig{LLMTemperature: 0.3, LLMTimeoutSeconds: 5},
		Chunking: config.ChunkingConfig{TargetTokens: 500, OverlapTokens: 100, MinTokens: 5, MaxInputTokens: 10000},
		Workers:  config.WorkersConfig{IndexWorkers: 1, IndexQueueSize: 8, JobWorkers: 1, JobQueueSize: 8},
	}
	cont, err := container.NewContainer(context.Background(), cfg,
		container.WithContainerInMemoryStores(),
		container.WithContainerLLMClient(&llmtest.MockClient{
			GenerateFunc: llmtest.RespondByShape(artifacttest.Responses(), "Mitochondria produce energy."),
		}),
		container.WithContainerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	t.Cleanup(cont.Close)

	h := &harness{cont: cont, out: &bytes.Buffer{}, user: uuid.NewString()}

	prev := appContextFactory
	appContextFactory = func(ctx context.Context, envFile string) (*AppContext, error) {
		// コマンドをまたいで状態を保つため、コンテナは閉じない
		return &AppContext{Config: cfg, Container: cont, Out: h.out}, nil
	}
	t.Cleanup(func() { appContextFactory = prev })
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	h.out.Reset()
	err := NewApp().Run(t.Context(), append([]string{"study-rag"}, args...))
	return h.out.String(), err
}

func firstField(out string) string {
	return strings.Fields(out)[0]
}

func TestApp_NotebookSourceAndJobFlow(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "notebook", "create", "--user", h.user, "--title", "Biology")
	require.NoError(t, err)
	notebookID := firstField(out)
	assert.Contains(t, out, "Biology")

	text := strings.Repeat("Mitochondria are the powerhouse of the cell and produce energy. ", 8)
	out, err = h.run(t, "source", "add", "--user", h.user, "--notebook", notebookID, "--title", "Cells", "--text", text)
	require.NoError(t, err)
	sourceID := firstField(out)

	nbID := uuid.MustParse(notebookID)
	require.Eventually(t, func() bool {
		return len(h.cont.Retriever.Documents(t.Context(), nbID, 10)) > 0
	}, 5*time.Second, 10*time.Millisecond)

	out, err = h.run(t, "source", "list", "--user", h.user, "--notebook", notebookID)
	require.NoError(t, err)
	assert.Contains(t, out, sourceID)

	out, err = h.run(t, "job", "generate", "--user", h.user, "--notebook", notebookID, "--type", "mind-map", "--wait", "--timeout", "10s")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "COMPLETED"`)
	assert.Contains(t, out, `"central": "Photosynthesis"`)

	out, err = h.run(t, "job", "latest", "--user", h.user, "--notebook", notebookID, "--type", "MIND_MAP", "--completed")
	require.NoError(t, err)
	assert.Contains(t, out, `"type": "MIND_MAP"`)

	out, err = h.run(t, "job", "list", "--user", h.user, "--notebook", notebookID)
	require.NoError(t, err)
	assert.Contains(t, out, "MIND_MAP\tCOMPLETED")

	out, err = h.run(t, "ask", "--user", h.user, "--notebook", notebookID, "--show-sources", "What", "do", "mitochondria", "do?")
	require.NoError(t, err)
	assert.Contains(t, out, "Mitochondria produce energy.")
	assert.Contains(t, out, "[1] Cells")

	_, err = h.run(t, "source", "delete", "--user", h.user, "--notebook", notebookID, "--source", sourceID)
	require.NoError(t, err)
	out, err = h.run(t, "source", "list", "--user", h.user, "--notebook", notebookID)
	require.NoError(t, err)
	assert.Contains(t, out, "ソースがありません")
}

func TestApp_NotebookEditingFlow(t *testing.T) {
	h := newHarness(t)
	page := `<html><head><title>Mitosis</title></head><body><main><h1>Mitosis</h1><p>Cells divide into two daughter cells.</p></main></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	}))
	t.Cleanup(srv.Close)

	out, err := h.run(t, "notebook", "create", "--user", h.user, "--title", "Biology")
	require.NoError(t, err)
	notebookID := firstField(out)

	out, err = h.run(t, "notebook", "update", "--user", h.user, "--notebook", notebookID, "--title", "Cell Biology")
	require.NoError(t, err)
	assert.Contains(t, out, "Cell Biology")

	out, err = h.run(t, "source", "add", "--user", h.user, "--notebook", notebookID, "--url", srv.URL+"/mitosis")
	require.NoError(t, err)
	sourceID := firstField(out)
	assert.Contains(t, out, "Mitosis")

	out, err = h.run(t, "source", "show", "--user", h.user, "--notebook", notebookID, "--source", sourceID)
	require.NoError(t, err)
	assert.Contains(t, out, "Cells divide into two daughter cells.")
	assert.Contains(t, out, srv.URL+"/mitosis")

	out, err = h.run(t, "source", "update", "--user", h.user, "--notebook", notebookID, "--source", sourceID, "--title", "Cell division", "--link", "")
	require.NoError(t, err)
	assert.Contains(t, out, "Cell division")
	assert.NotContains(t, out, srv.URL)

	out, err = h.run(t, "source", "summary", "show", "--user", h.user, "--notebook", notebookID, "--source", sourceID)
	require.NoError(t, err)
	assert.Contains(t, out, "要約がありません")

	out, err = h.run(t, "source", "summary", "generate", "--user", h.user, "--notebook", notebookID, "--source", sourceID)
	require.NoError(t, err)
	assert.Contains(t, out, "Mitochondria produce energy.")

	out, err = h.run(t, "source", "summary", "show", "--user", h.user, "--notebook", notebookID, "--source", sourceID)
	require.NoError(t, err)
	assert.Contains(t, out, "Mitochondria produce energy.")

	_, err = h.run(t, "source", "summary", "delete", "--user", h.user, "--notebook", notebookID, "--source", sourceID)
	require.NoError(t, err)
	out, err = h.run(t, "source", "summary", "show", "--user", h.user, "--notebook", notebookID, "--source", sourceID)
	require.NoError(t, err)
	assert.Contains(t, out, "要約がありません")

	out, err = h.run(t, "note", "add", "--user", h.user, "--notebook", notebookID, "--title", "Phases", "--content", "four")
	require.NoError(t, err)
	noteID := firstField(out)

	_, err = h.run(t, "note", "update", "--user", h.user, "--notebook", notebookID, "--note", noteID, "--content", "prophase first")
	require.NoError(t, err)

	out, err = h.run(t, "note", "show", "--user", h.user, "--notebook", notebookID, "--note", noteID)
	require.NoError(t, err)
	assert.Contains(t, out, "prophase first")

	out, err = h.run(t, "note", "list", "--user", h.user, "--notebook", notebookID)
	require.NoError(t, err)
	assert.Contains(t, out, noteID)

	_, err = h.run(t, "note", "delete", "--user", h.user, "--notebook", notebookID, "--note", noteID)
	require.NoError(t, err)
	out, err = h.run(t, "note", "list", "--user", h.user, "--notebook", notebookID)
	require.NoError(t, err)
	assert.Contains(t, out, "ノートがありません")

	_, err = h.run(t, "notebook", "delete", "--user", h.user, "--notebook", notebookID)
	require.NoError(t, err)
	out, err = h.run(t, "notebook", "list", "--user", h.user)
	require.NoError(t, err)
	assert.Contains(t, out, "ノートブックがありません")
}

func TestApp_Errors(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "notebook", "create", "--user", h.user)
	require.NoError(t, err)
	notebookID := firstField(out)

	tests := []struct {
		name string
		args []string
	}{
		{name: "ユーザー未指定", args: []string{"notebook", "list"}},
		{name: "不正なユーザーID", args: []string{"notebook", "list", "--user", "not-a-uuid"}},
		{name: "不明な成果物種別", args: []string{"job", "generate", "--user", h.user, "--notebook", notebookID, "--type", "essay"}},
		{name: "ジョブがない種別の最新", args: []string{"job", "latest", "--user", h.user, "--notebook", notebookID, "--type", "flashcards"}},
		{name: "本文なしのソース追加", args: []string{"source", "add", "--user", h.user, "--notebook", notebookID}},
		{name: "不正なURLのソース追加", args: []string{"source", "add", "--user", h.user, "--notebook", notebookID, "--url", "ftp://example.com"}},
		{name: "変更内容なしのソース更新", args: []string{"source", "update", "--user", h.user, "--notebook", notebookID, "--source", uuid.NewString()}},
		{name: "タイトルなしのノート追加", args: []string{"note", "add", "--user", h.user, "--notebook", notebookID}},
		{name: "質問文なし", args: []string{"ask", "--user", h.user, "--notebook", notebookID}},
		{name: "他人のノートブック", args: []string{"notebook", "show", "--user", uuid.NewString(), "--notebook", notebookID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.run(t, tt.args...)
			require.Error(t, err)
		})
	}
}

type stubJobs struct {
	statuses []job.Status
	calls    int
}

func (s *stubJobs) GetJob(ctx context.Context, jobID, userID uuid.UUID) (*job.Job, error) {
	st := s.statuses[min(s.calls, len(s.statuses)-1)]
	s.calls++
	return &job.Job{ID: jobID, UserID: userID, Status: st}, nil
}

func TestWaitForJob(t *testing.T) {
	t.Run("終端状態まで待つ", func(t *testing.T) {
		jobs := &stubJobs{statuses: []job.Status{job.StatusPending, job.StatusProcessing, job.StatusFailed}}
		j, err := waitForJob(t.Context(), jobs, uuid.New(), uuid.New(), 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, job.StatusFailed, j.Status)
		assert.Equal(t, 3, jobs.calls)
	})

	t.Run("タイムアウト", func(t *testing.T) {
		jobs := &stubJobs{statuses: []job.Status{job.StatusProcessing}}
		_, err := waitForJob(t.Context(), jobs, uuid.New(), uuid.New(), 50*time.Millisecond)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
