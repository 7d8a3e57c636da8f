package cli

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"
)

// NotebookCreateAction はノートブックを作成する
func NotebookCreateAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	nb, err := appCtx.Container.NotebookService.CreateNotebook(ctx, userID, cmd.String("title"))
	if err != nil {
		return err
	}

	slog.Info("ノートブックを作成しました", "notebookID", nb.ID, "title", nb.Title)
	appCtx.printf("%s\t%s\n", nb.ID, nb.Title)
	return nil
}

// NotebookListAction はユーザーのノートブック一覧を表示する
func NotebookListAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	notebooks, err := appCtx.Container.NotebookService.ListNotebooks(ctx, userID)
	if err != nil {
		return err
	}

	if len(notebooks) == 0 {
		appCtx.printf("ノートブックがありません\n")
		return nil
	}
	for _, nb := range notebooks {
		appCtx.printf("%s\t%s\t%s\n", nb.ID, nb.CreatedAt.Format("2006-01-02 15:04"), nb.Title)
	}
	return nil
}

// NotebookShowAction はノートブックの詳細を表示する
func NotebookShowAction(ctx context.Context, cmd *cli.Command) error {
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

	nb, err := appCtx.Container.NotebookService.GetNotebook(ctx, notebookID, userID)
	if err != nil {
		return err
	}
	return appCtx.printJSON(nb)
}

// NotebookSummaryAction はノートブックの要約を生成して保存する
func NotebookSummaryAction(ctx context.Context, cmd *cli.Command) error {
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

	result, err := appCtx.Container.AskService.Summary(ctx, notebookID, userID)
	if err != nil {
		slog.Error("要約の生成に失敗しました", "error", err)
		return err
	}
	appCtx.printf("%s\n", result.Summary)
	return nil
}

// NotebookQuestionsAction はノートブックの内容に関する質問例を生成する
func NotebookQuestionsAction(ctx context.Context, cmd *cli.Command) error {
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

	result, err := appCtx.Container.AskService.ExampleQuestions(ctx, notebookID, userID)
	if err != nil {
		slog.Error("質問例の生成に失敗しました", "error", err)
		return err
	}
	for i, q := range result.Questions {
		appCtx.printf("%d. %s\n", i+1, q)
	}
	return nil
}

// NotebookUpdateAction はノートブックのタイトルを変更する
func NotebookUpdateAction(ctx context.Context, cmd *cli.Command) error {
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

	nb, err := appCtx.Container.NotebookService.UpdateNotebook(ctx, notebookID, userID, cmd.String("title"))
	if err != nil {
		return err
	}
	appCtx.printf("%s\t%s\n", nb.ID, nb.Title)
	return nil
}

// NotebookDeleteAction はノートブックとそのソース・ノート・チャンクを削除する
func NotebookDeleteAction(ctx context.Context, cmd *cli.Command) error {
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

	if err := appCtx.Container.NotebookService.DeleteNotebook(ctx, notebookID, userID); err != nil {
		return err
	}

	slog.Info("ノートブックを削除しました", "notebookID", notebookID)
	appCtx.printf("deleted %s\n", notebookID)
	return nil
}
