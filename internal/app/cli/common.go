package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/study-rag/internal/platform/config"
	"github.com/jinford/study-rag/internal/platform/container"
	"github.com/jinford/study-rag/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
	Out       io.Writer

	closer func()
}

// NewAppContext は設定ファイルを読み込み、DBに接続して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := loadConfigAndLogger(envFile)
	if err != nil {
		return nil, err
	}

	cont, err := container.NewContainer(ctx, cfg, container.WithContainerLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
		Out:       os.Stdout,
		closer:    cont.Close,
	}, nil
}

// appContextFactory はテストで差し替える
var appContextFactory = NewAppContext

func loadConfigAndLogger(envFile string) (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	logCfg, err := logger.FromStrings(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("ログ設定が不正です: %w", err)
	}
	logger.New(logCfg)

	return cfg, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
// キューに残ったインデックス作成や生成ジョブはここで処理し終える
func (ac *AppContext) Close() {
	if ac.closer != nil {
		ac.closer()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}

func (ac *AppContext) printf(format string, args ...any) {
	fmt.Fprintf(ac.Out, format, args...)
}

func (ac *AppContext) printJSON(v any) error {
	enc := json.NewEncoder(ac.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("JSON出力に失敗: %w", err)
	}
	return nil
}

func openAppContext(ctx context.Context, cmd *cli.Command) (*AppContext, error) {
	return appContextFactory(ctx, cmd.String("env"))
}

func uuidFlag(cmd *cli.Command, name string) (uuid.UUID, error) {
	raw := cmd.String(name)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("--%s を指定してください", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s が不正なIDです: %w", name, err)
	}
	return id, nil
}

func userFlag(cmd *cli.Command) (uuid.UUID, error) {
	return uuidFlag(cmd, "user")
}
