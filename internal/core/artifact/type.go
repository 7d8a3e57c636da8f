package artifact

import (
	"strings"

	"github.com/jinford/study-rag/internal/core/apperr"
)

// Type は生成する学習成果物の種別
type Type string

const (
	TypeStudyGuide    Type = "STUDY_GUIDE"
	TypeFlashcards    Type = "FLASHCARDS"
	TypeQuestionnaire Type = "QUESTIONNAIRE"
	TypeMindMap       Type = "MIND_MAP"
)

// Types は全種別を定義順で返す
func Types() []Type {
	return []Type{TypeStudyGuide, TypeFlashcards, TypeQuestionnaire, TypeMindMap}
}

// ParseType は文字列を Type に変換する
// 大文字小文字を区別せず、区切りとしてハイフンと空白も受け付ける
func ParseType(s string) (Type, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	t := Type(normalized)
	if !t.IsValid() {
		return "", apperr.Validation("unknown artifact type: %q", s)
	}
	return t, nil
}

// IsValid は既知の種別かどうかを返す
func (t Type) IsValid() bool {
	switch t {
	case TypeStudyGuide, TypeFlashcards, TypeQuestionnaire, TypeMindMap:
		return true
	}
	return false
}

func (t Type) String() string {
	return string(t)
}

// Label は人が読むための種別名を返す（"study guide" など）
func (t Type) Label() string {
	return strings.ToLower(strings.ReplaceAll(string(t), "_", " "))
}
