package notebook

import (
	"time"

	"github.com/google/uuid"
)

// Notebook はユーザーが所有するソースの集まり
type Notebook struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Title     string    `json:"title"`
	Summary   *string   `json:"summary,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Source はノートブックに追加されたテキストソース
type Source struct {
	ID         uuid.UUID `json:"id"`
	NotebookID uuid.UUID `json:"notebookId"`
	Title      string    `json:"title"`
	Link       *string   `json:"link,omitempty"`
	Content    string    `json:"content"`
	Summary    *string   `json:"summary,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// LinkOrEmpty はリンクを文字列で返す（未設定なら空文字列）
func (s *Source) LinkOrEmpty() string {
	if s.Link == nil {
		return ""
	}
	return *s.Link
}

// Note はノートブックに書き留めるユーザーのメモ
// 検索やインデックスの対象にはならない
type Note struct {
	ID         uuid.UUID `json:"id"`
	NotebookID uuid.UUID `json:"notebookId"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// WebPage はURLから取得したソース候補
type WebPage struct {
	Title   string
	Content string
}
