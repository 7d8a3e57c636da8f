package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/study-rag/internal/core/ask"
)

// AskAction は質問応答コマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}
	showSources := cmd.Bool("show-sources")

	// 質問文の取得
	question := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("質問文を指定してください")
	}

	slog.Info("質問応答を開始",
		"notebookID", notebookID,
		"question", question,
		"showSources", showSources,
	)

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.AskService.Chat(ctx, ask.ChatParams{
		NotebookID: notebookID,
		UserID:     userID,
		Query:      question,
	})
	if err != nil {
		slog.Error("質問応答に失敗しました", "error", err)
		return err
	}

	appCtx.printf("%s\n", result.Answer)

	// --show-sourcesフラグが指定されている場合、参照ソースも出力
	if showSources && len(result.Sources) > 0 {
		appCtx.printf("\n--- 参照ソース ---\n")
		for i, source := range result.Sources {
			appCtx.printf("[%d] %s (%s)\n", i+1, source.Title, source.SourceID)
		}
	}

	slog.Info("質問応答が完了しました", "sources", len(result.Sources))
	return nil
}
