package ask

import (
	"github.com/google/uuid"
)

const (
	// SummaryTopK は要約生成時に取得するチャンク数
	SummaryTopK = 5

	// ExampleQuestionsTopK は質問例生成時に取得するチャンク数
	ExampleQuestionsTopK = 3

	// MaxExampleQuestions は返す質問例の最大数
	MaxExampleQuestions = 3

	// MaxSourceSummaryInputRunes はソース要約に渡す本文の最大文字数
	MaxSourceSummaryInputRunes = 20000
)

// ChatParams はチャットのパラメータ
type ChatParams struct {
	NotebookID uuid.UUID // ノートブックID
	UserID     uuid.UUID // 要求者
	Query      string    // ユーザーの質問文
}

// ChatResult はチャットの結果
type ChatResult struct {
	Answer  string        `json:"answer"`  // LLMによる回答
	Sources []CitedSource `json:"sources"` // 参照したソース（重複なし、初出順）
}

// CitedSource は回答の根拠となったソース
type CitedSource struct {
	SourceID uuid.UUID `json:"sourceId"`
	Title    string    `json:"title"`
}

// SummaryResult は要約生成の結果
type SummaryResult struct {
	Summary string `json:"summary"`
}

// ExampleQuestionsResult は質問例生成の結果
type ExampleQuestionsResult struct {
	Questions []string `json:"questions"`
}
