package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse は応答本文が空の場合のエラー
var ErrEmptyResponse = errors.New("empty response")

// DecodeJSON は応答本文を JSON として v に読み込む
// モデルがコードフェンスで囲んで返す場合があるため、それを取り除いてから解釈する
func DecodeJSON(content string, v any) error {
	body := StripCodeFence(content)
	if body == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

// StripCodeFence は前後のコードフェンスを取り除く
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
