package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/study-rag/internal/infra/postgres"
)

// MigrateAction はデータベースにスキーマを作成する
// 生成モデルへの接続は不要なのでコンテナは構築しない
func MigrateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfigAndLogger(cmd.String("env"))
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, cfg.Database.ConnString())
	if err != nil {
		return fmt.Errorf("データベース接続に失敗: %w", err)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db.Pool, cfg.OpenAI.EmbeddingDimension); err != nil {
		return err
	}

	slog.Info("スキーマを作成しました", "database", cfg.Database.DBName, "embeddingDimension", cfg.OpenAI.EmbeddingDimension)
	return nil
}
