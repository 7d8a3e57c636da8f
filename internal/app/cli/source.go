package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/study-rag/internal/core/notebook"
)

// SourceAddAction はノートブックにソースを追加する
// --url を指定した場合はページを取得してMarkdownに変換する
// それ以外は --file で指定したファイル、--text、または標準入力（--file -）から本文を読み込む
func SourceAddAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}

	rawURL := cmd.String("url")
	var content string
	if rawURL == "" {
		content, err = readSourceContent(cmd)
		if err != nil {
			return err
		}
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	var src *notebook.Source
	if rawURL != "" {
		src, err = appCtx.Container.NotebookService.AddSourceFromURL(ctx, notebook.AddURLSourceParams{
			NotebookID: notebookID,
			UserID:     userID,
			Title:      cmd.String("title"),
			URL:        rawURL,
		})
	} else {
		src, err = appCtx.Container.NotebookService.AddSource(ctx, notebook.AddSourceParams{
			NotebookID: notebookID,
			UserID:     userID,
			Title:      cmd.String("title"),
			Link:       cmd.String("link"),
			Content:    content,
		})
	}
	if err != nil {
		return err
	}

	slog.Info("ソースを追加しました", "sourceID", src.ID, "notebookID", notebookID, "bytes", len(src.Content))
	appCtx.printf("%s\t%s\n", src.ID, src.Title)
	return nil
}

func readSourceContent(cmd *cli.Command) (string, error) {
	if text := cmd.String("text"); text != "" {
		return text, nil
	}

	path := cmd.String("file")
	switch path {
	case "":
		return "", fmt.Errorf("--file または --text を指定してください")
	case "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("標準入力の読み込みに失敗: %w", err)
		}
		return string(b), nil
	default:
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("ファイルの読み込みに失敗: %w", err)
		}
		return string(b), nil
	}
}

// SourceListAction はノートブックのソース一覧を表示する
func SourceListAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	sources, err := appCtx.Container.NotebookService.ListSources(ctx, notebookID, userID)
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		appCtx.printf("ソースがありません\n")
		return nil
	}
	for _, src := range sources {
		appCtx.printf("%s\t%s\t%s\n", src.ID, src.Title, src.LinkOrEmpty())
	}
	return nil
}

// SourceDeleteAction はソースとそのチャンクを削除する
func SourceDeleteAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}
	sourceID, err := uuidFlag(cmd, "source")
	if err != nil {
		return err
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.NotebookService.DeleteSource(ctx, notebookID, userID, sourceID); err != nil {
		return err
	}

	slog.Info("ソースを削除しました", "sourceID", sourceID)
	appCtx.printf("deleted %s\n", sourceID)
	return nil
}

// SourceShowAction はソースを本文付きで表示する
func SourceShowAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}
	sourceID, err := uuidFlag(cmd, "source")
	if err != nil {
		return err
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	src, err := appCtx.Container.NotebookService.GetSource(ctx, notebookID, userID, sourceID)
	if err != nil {
		return err
	}
	return appCtx.printJSON(src)
}

// SourceUpdateAction はソースのタイトルとリンクを変更する
func SourceUpdateAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}
	sourceID, err := uuidFlag(cmd, "source")
	if err != nil {
		return err
	}

	params := notebook.UpdateSourceParams{NotebookID: notebookID, UserID: userID, SourceID: sourceID}
	if cmd.IsSet("title") {
		title := cmd.String("title")
		params.Title = &title
	}
	if cmd.IsSet("link") {
		link := cmd.String("link")
		params.Link = &link
	}
	if params.Title == nil && params.Link == nil {
		return fmt.Errorf("--title または --link を指定してください")
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	src, err := appCtx.Container.NotebookService.UpdateSource(ctx, params)
	if err != nil {
		return err
	}

	slog.Info("ソースを更新しました", "sourceID", src.ID)
	appCtx.printf("%s\t%s\t%s\n", src.ID, src.Title, src.LinkOrEmpty())
	return nil
}

// SourceSummaryGenerateAction はソースの要約を生成して保存する
func SourceSummaryGenerateAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}
	sourceID, err := uuidFlag(cmd, "source")
	if err != nil {
		return err
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	summary, err := appCtx.Container.AskService.SummarizeSource(ctx, notebookID, userID, sourceID)
	if err != nil {
		slog.Error("ソース要約の生成に失敗しました", "error", err)
		return err
	}
	appCtx.printf("%s\n", summary)
	return nil
}

// SourceSummaryShowAction は保存済みのソース要約を表示する
func SourceSummaryShowAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}
	sourceID, err := uuidFlag(cmd, "source")
	if err != nil {
		return err
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	summary, err := appCtx.Container.NotebookService.SourceSummary(ctx, notebookID, userID, sourceID)
	if err != nil {
		return err
	}
	if summary == "" {
		appCtx.printf("要約がありません\n")
		return nil
	}
	appCtx.printf("%s\n", summary)
	return nil
}

// SourceSummaryDeleteAction はソースの要約を削除する
func SourceSummaryDeleteAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}
	sourceID, err := uuidFlag(cmd, "source")
	if err != nil {
		return err
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.NotebookService.DeleteSourceSummary(ctx, notebookID, userID, sourceID); err != nil {
		return err
	}
	appCtx.printf("deleted summary of %s\n", sourceID)
	return nil
}
