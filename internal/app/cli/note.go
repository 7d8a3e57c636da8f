package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/study-rag/internal/core/notebook"
)

// NoteAddAction はノートを追加する
func NoteAddAction(ctx context.Context, cmd *cli.Command) error {
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

	note, err := appCtx.Container.NotebookService.AddNote(ctx, notebook.AddNoteParams{
		NotebookID: notebookID,
		UserID:     userID,
		Title:      cmd.String("title"),
		Content:    cmd.String("content"),
	})
	if err != nil {
		return err
	}

	slog.Info("ノートを追加しました", "noteID", note.ID, "notebookID", notebookID)
	appCtx.printf("%s\t%s\n", note.ID, note.Title)
	return nil
}

// NoteListAction はノート一覧を表示する
func NoteListAction(ctx context.Context, cmd *cli.Command) error {
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

	notes, err := appCtx.Container.NotebookService.ListNotes(ctx, notebookID, userID)
	if err != nil {
		return err
	}

	if len(notes) == 0 {
		appCtx.printf("ノートがありません\n")
		return nil
	}
	for _, note := range notes {
		appCtx.printf("%s\t%s\t%s\n", note.ID, note.UpdatedAt.Format("2006-01-02 15:04"), note.Title)
	}
	return nil
}

// NoteShowAction はノートを表示する
func NoteShowAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}
	noteID, err := uuidFlag(cmd, "note")
	if err != nil {
		return err
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	note, err := appCtx.Container.NotebookService.GetNote(ctx, notebookID, userID, noteID)
	if err != nil {
		return err
	}
	return appCtx.printJSON(note)
}

// NoteUpdateAction はノートのタイトルと本文を変更する
func NoteUpdateAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}
	noteID, err := uuidFlag(cmd, "note")
	if err != nil {
		return err
	}

	params := notebook.UpdateNoteParams{NotebookID: notebookID, UserID: userID, NoteID: noteID}
	if cmd.IsSet("title") {
		title := cmd.String("title")
		params.Title = &title
	}
	if cmd.IsSet("content") {
		content := cmd.String("content")
		params.Content = &content
	}
	if params.Title == nil && params.Content == nil {
		return fmt.Errorf("--title または --content を指定してください")
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	note, err := appCtx.Container.NotebookService.UpdateNote(ctx, params)
	if err != nil {
		return err
	}
	appCtx.printf("%s\t%s\n", note.ID, note.Title)
	return nil
}

// NoteDeleteAction はノートを削除する
func NoteDeleteAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}
	noteID, err := uuidFlag(cmd, "note")
	if err != nil {
		return err
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.NotebookService.DeleteNote(ctx, notebookID, userID, noteID); err != nil {
		return err
	}

	slog.Info("ノートを削除しました", "noteID", noteID)
	appCtx.printf("deleted %s\n", noteID)
	return nil
}
