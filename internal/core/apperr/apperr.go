// Package apperr はコア層で共通に使うエラー分類を提供する
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound は対象が存在しない、または要求者の所有物でない場合の分類
	ErrNotFound = errors.New("not found")

	// ErrConflict は同種のアクティブなジョブが既に存在する場合の分類
	ErrConflict = errors.New("conflict")

	// ErrValidation はリクエストの形式が不正な場合の分類
	ErrValidation = errors.New("validation failed")

	// ErrIllegalState は生成の前提条件を満たしていない場合の分類
	ErrIllegalState = errors.New("illegal state")

	// ErrGeneration は生成呼び出しまたはレスポンス形式の検証に失敗した場合の分類
	ErrGeneration = errors.New("generation failed")
)

// Error は分類付きのエラー
// Error() は利用者に見せる短いメッセージのみを返す（スタックトレースは含めない）
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is は分類の一致を判定する
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound は ErrNotFound 分類のエラーを作成する
func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict は ErrConflict 分類のエラーを作成する
func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// Validation は ErrValidation 分類のエラーを作成する
func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// IllegalState は ErrIllegalState 分類のエラーを作成する
func IllegalState(format string, args ...any) error {
	return &Error{Kind: ErrIllegalState, Message: fmt.Sprintf(format, args...)}
}

// Generation は原因を保持した ErrGeneration 分類のエラーを作成する
func Generation(message string, cause error) error {
	return &Error{Kind: ErrGeneration, Message: message, Err: cause}
}
