package cli

import "github.com/urfave/cli/v3"

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func userIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "user",
		Usage:    "操作するユーザーのID",
		Sources:  cli.EnvVars("STUDY_RAG_USER_ID"),
		Required: true,
	}
}

func notebookIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "notebook",
		Usage:    "ノートブックID",
		Required: true,
	}
}

func sourceIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "source",
		Usage:    "ソースID",
		Required: true,
	}
}

func noteIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "note",
		Usage:    "ノートID",
		Required: true,
	}
}

func artifactTypeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "type",
		Usage:    "成果物の種別 (study-guide, flashcards, questionnaire, mind-map)",
		Required: true,
	}
}

// withCommonFlags は --env と --user を先頭に付与する
func withCommonFlags(flags ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{envFlag(), userIDFlag()}, flags...)
}
