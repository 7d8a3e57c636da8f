package cli

import (
	"time"

	"github.com/urfave/cli/v3"
)

// NewApp はコマンドツリーを構築する
func NewApp() *cli.Command {
	return &cli.Command{
		Name:  "study-rag",
		Usage: "ノートブック単位の学習用RAGと成果物（学習ガイド・フラッシュカード・問題集・マインドマップ）生成",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "データベースにスキーマを作成",
				Flags:  []cli.Flag{envFlag()},
				Action: MigrateAction,
			},
			{
				Name:  "notebook",
				Usage: "ノートブック管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "ノートブックを作成",
						Flags: withCommonFlags(
							&cli.StringFlag{
								Name:  "title",
								Usage: "タイトル（省略時は既定のタイトル）",
							},
						),
						Action: NotebookCreateAction,
					},
					{
						Name:   "list",
						Usage:  "ノートブック一覧を表示",
						Flags:  withCommonFlags(),
						Action: NotebookListAction,
					},
					{
						Name:   "show",
						Usage:  "ノートブック詳細を表示",
						Flags:  withCommonFlags(notebookIDFlag()),
						Action: NotebookShowAction,
					},
					{
						Name:  "update",
						Usage: "ノートブックのタイトルを変更",
						Flags: withCommonFlags(
							notebookIDFlag(),
							&cli.StringFlag{
								Name:     "title",
								Usage:    "新しいタイトル",
								Required: true,
							},
						),
						Action: NotebookUpdateAction,
					},
					{
						Name:   "delete",
						Usage:  "ノートブックとソース・ノート・チャンクを削除",
						Flags:  withCommonFlags(notebookIDFlag()),
						Action: NotebookDeleteAction,
					},
					{
						Name:   "summary",
						Usage:  "ノートブックの要約を生成して保存",
						Flags:  withCommonFlags(notebookIDFlag()),
						Action: NotebookSummaryAction,
					},
					{
						Name:   "questions",
						Usage:  "ノートブックの内容に関する質問例を生成",
						Flags:  withCommonFlags(notebookIDFlag()),
						Action: NotebookQuestionsAction,
					},
				},
			},
			{
				Name:  "source",
				Usage: "ソース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "add",
						Usage: "ソースを追加してインデックスを作成",
						Flags: withCommonFlags(
							notebookIDFlag(),
							&cli.StringFlag{
								Name:  "title",
								Usage: "ソースのタイトル",
							},
							&cli.StringFlag{
								Name:  "link",
								Usage: "参照元URL",
							},
							&cli.StringFlag{
								Name:  "file",
								Usage: "本文ファイルのパス（- で標準入力）",
							},
							&cli.StringFlag{
								Name:  "text",
								Usage: "本文を直接指定",
							},
							&cli.StringFlag{
								Name:  "url",
								Usage: "ページを取得してMarkdownに変換した本文を使う（タイトル省略時はページのタイトル）",
							},
						),
						Action: SourceAddAction,
					},
					{
						Name:   "list",
						Usage:  "ソース一覧を表示",
						Flags:  withCommonFlags(notebookIDFlag()),
						Action: SourceListAction,
					},
					{
						Name:   "show",
						Usage:  "ソースを本文付きで表示",
						Flags:  withCommonFlags(notebookIDFlag(), sourceIDFlag()),
						Action: SourceShowAction,
					},
					{
						Name:  "update",
						Usage: "ソースのタイトルとリンクを変更（チャンクは作り直さない）",
						Flags: withCommonFlags(
							notebookIDFlag(),
							sourceIDFlag(),
							&cli.StringFlag{
								Name:  "title",
								Usage: "新しいタイトル",
							},
							&cli.StringFlag{
								Name:  "link",
								Usage: "新しい参照元URL（空文字列で削除）",
							},
						),
						Action: SourceUpdateAction,
					},
					{
						Name:   "delete",
						Usage:  "ソースとチャンクを削除",
						Flags:  withCommonFlags(notebookIDFlag(), sourceIDFlag()),
						Action: SourceDeleteAction,
					},
					{
						Name:  "summary",
						Usage: "ソース要約コマンド",
						Commands: []*cli.Command{
							{
								Name:   "generate",
								Usage:  "ソースの要約を生成して保存",
								Flags:  withCommonFlags(notebookIDFlag(), sourceIDFlag()),
								Action: SourceSummaryGenerateAction,
							},
							{
								Name:   "show",
								Usage:  "保存済みの要約を表示",
								Flags:  withCommonFlags(notebookIDFlag(), sourceIDFlag()),
								Action: SourceSummaryShowAction,
							},
							{
								Name:   "delete",
								Usage:  "保存済みの要約を削除",
								Flags:  withCommonFlags(notebookIDFlag(), sourceIDFlag()),
								Action: SourceSummaryDeleteAction,
							},
						},
					},
				},
			},
			{
				Name:  "note",
				Usage: "ノート管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "add",
						Usage: "ノートを追加",
						Flags: withCommonFlags(
							notebookIDFlag(),
							&cli.StringFlag{
								Name:     "title",
								Usage:    "ノートのタイトル",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "content",
								Usage: "ノートの本文",
							},
						),
						Action: NoteAddAction,
					},
					{
						Name:   "list",
						Usage:  "ノート一覧を表示",
						Flags:  withCommonFlags(notebookIDFlag()),
						Action: NoteListAction,
					},
					{
						Name:   "show",
						Usage:  "ノートを表示",
						Flags:  withCommonFlags(notebookIDFlag(), noteIDFlag()),
						Action: NoteShowAction,
					},
					{
						Name:  "update",
						Usage: "ノートのタイトルと本文を変更",
						Flags: withCommonFlags(
							notebookIDFlag(),
							noteIDFlag(),
							&cli.StringFlag{
								Name:  "title",
								Usage: "新しいタイトル",
							},
							&cli.StringFlag{
								Name:  "content",
								Usage: "新しい本文",
							},
						),
						Action: NoteUpdateAction,
					},
					{
						Name:   "delete",
						Usage:  "ノートを削除",
						Flags:  withCommonFlags(notebookIDFlag(), noteIDFlag()),
						Action: NoteDeleteAction,
					},
				},
			},
			{
				Name:  "job",
				Usage: "成果物生成ジョブ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "generate",
						Usage: "成果物生成ジョブを登録",
						Flags: withCommonFlags(
							notebookIDFlag(),
							artifactTypeFlag(),
							&cli.BoolFlag{
								Name:  "wait",
								Usage: "ジョブの完了を待って結果を表示",
							},
							&cli.DurationFlag{
								Name:  "timeout",
								Usage: "--wait 時の待機上限",
								Value: 5 * time.Minute,
							},
						),
						Action: JobGenerateAction,
					},
					{
						Name:  "show",
						Usage: "ジョブを表示",
						Flags: withCommonFlags(
							&cli.StringFlag{
								Name:     "job",
								Usage:    "ジョブID",
								Required: true,
							},
						),
						Action: JobShowAction,
					},
					{
						Name:  "list",
						Usage: "ノートブックのジョブ一覧を表示",
						Flags: withCommonFlags(
							notebookIDFlag(),
							&cli.StringFlag{
								Name:  "active",
								Usage: "指定した種別の未完了ジョブのみ表示",
							},
						),
						Action: JobListAction,
					},
					{
						Name:  "latest",
						Usage: "種別ごとの最新ジョブを表示（未完了のジョブを優先）",
						Flags: withCommonFlags(
							notebookIDFlag(),
							artifactTypeFlag(),
							&cli.BoolFlag{
								Name:  "completed",
								Usage: "最新の完了済みジョブのみを対象にする",
							},
						),
						Action: JobLatestAction,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "ノートブックの内容について質問",
				ArgsUsage: "<質問文>",
				Flags: withCommonFlags(
					notebookIDFlag(),
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "参照したソースを表示",
					},
				),
				Action: AskAction,
			},
		},
	}
}
