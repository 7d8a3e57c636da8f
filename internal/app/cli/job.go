package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/study-rag/internal/core/artifact"
	"github.com/jinford/study-rag/internal/core/job"
)

const defaultPollInterval = 500 * time.Millisecond

// JobGenerateAction は成果物生成ジョブを登録する
// --wait を指定した場合は終端状態になるまで待ち、結果を表示する
func JobGenerateAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}
	t, err := artifact.ParseType(cmd.String("type"))
	if err != nil {
		return err
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	submitted, err := appCtx.Container.JobScheduler.Submit(ctx, notebookID, userID, t)
	if err != nil {
		return err
	}
	slog.Info("生成ジョブを登録しました", "jobID", submitted.ID, "type", t, "status", submitted.Status)

	if !cmd.Bool("wait") {
		appCtx.printf("%s\t%s\t%s\n", submitted.ID, submitted.Type, submitted.Status)
		return nil
	}

	finished, err := waitForJob(ctx, appCtx.Container.JobScheduler, submitted.ID, userID, cmd.Duration("timeout"))
	if err != nil {
		return err
	}
	return printJob(appCtx, finished)
}

// jobReader は waitForJob が使うジョブ参照
type jobReader interface {
	GetJob(ctx context.Context, jobID, userID uuid.UUID) (*job.Job, error)
}

func waitForJob(ctx context.Context, jobs jobReader, jobID, userID uuid.UUID, timeout time.Duration) (*job.Job, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()

	for {
		j, err := jobs.GetJob(ctx, jobID, userID)
		if err != nil {
			return nil, err
		}
		if j.Status.IsTerminal() {
			return j, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("ジョブの完了待ちを中断しました (status=%s): %w", j.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

// JobShowAction はジョブを表示する
func JobShowAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	jobID, err := uuidFlag(cmd, "job")
	if err != nil {
		return err
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	j, err := appCtx.Container.JobScheduler.GetJob(ctx, jobID, userID)
	if err != nil {
		return err
	}
	return printJob(appCtx, j)
}

// JobListAction はノートブックのジョブ一覧を表示する
// --active に種別を指定した場合は、その種別の未完了ジョブだけを表示する
func JobListAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}

	var activeType *artifact.Type
	if raw := cmd.String("active"); raw != "" {
		t, err := artifact.ParseType(raw)
		if err != nil {
			return err
		}
		activeType = &t
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	var jobs []*job.Job
	if activeType != nil {
		jobs, err = appCtx.Container.JobScheduler.GetActiveJobs(ctx, notebookID, userID, *activeType)
	} else {
		jobs, err = appCtx.Container.JobScheduler.GetJobsForNotebook(ctx, notebookID, userID)
	}
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		appCtx.printf("ジョブがありません\n")
		return nil
	}
	for _, j := range jobs {
		appCtx.printf("%s\t%s\t%s\t%s\n", j.ID, j.Type, j.Status, j.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

// JobLatestAction は種別ごとの最新ジョブを表示する
// --completed を指定した場合は最新の COMPLETED ジョブのみを対象にする
func JobLatestAction(ctx context.Context, cmd *cli.Command) error {
	userID, err := userFlag(cmd)
	if err != nil {
		return err
	}
	notebookID, err := uuidFlag(cmd, "notebook")
	if err != nil {
		return err
	}
	t, err := artifact.ParseType(cmd.String("type"))
	if err != nil {
		return err
	}

	appCtx, err := openAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	scheduler := appCtx.Container.JobScheduler
	if cmd.Bool("completed") {
		latest, err := scheduler.GetLatestCompletedJob(ctx, notebookID, userID, t)
		if err != nil {
			return err
		}
		j, ok := latest.Get()
		if !ok {
			appCtx.printf("完了した %s ジョブはありません\n", t.Label())
			return nil
		}
		return printJob(appCtx, j)
	}

	j, err := scheduler.GetLatestJob(ctx, notebookID, userID, t)
	if err != nil {
		return err
	}
	return printJob(appCtx, j)
}

// printJob はジョブを表示する。結果のJSONは整形して埋め込む
func printJob(appCtx *AppContext, j *job.Job) error {
	view := struct {
		*job.Job
		Result json.RawMessage `json:"result"`
	}{Job: j}

	if j.Result != nil {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(*j.Result), "  ", "  "); err == nil {
			view.Result = buf.Bytes()
		} else {
			raw, _ := json.Marshal(*j.Result)
			view.Result = raw
		}
	}
	return appCtx.printJSON(view)
}
