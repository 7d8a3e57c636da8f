package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// Schema は埋め込み次元を反映したDDLを返す
func Schema(dimension int) string {
	return strings.ReplaceAll(schemaSQL, "{{EMBEDDING_DIMENSION}}", strconv.Itoa(dimension))
}

// Migrate はスキーマを作成する（既存のテーブルはそのまま）
func Migrate(ctx context.Context, db DBTX, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension: %d", dimension)
	}
	if _, err := db.Exec(ctx, Schema(dimension)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
