package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/study-rag/internal/core/artifact"
)

// Status はジョブの状態
// PENDING → PROCESSING → {COMPLETED, FAILED} の順にのみ遷移する
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// ActiveStatuses は未完了とみなす状態
func ActiveStatuses() []Status {
	return []Status{StatusPending, StatusProcessing}
}

// IsActive は未完了の状態かどうかを返す
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusProcessing
}

// IsTerminal は終端状態かどうかを返す
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) String() string {
	return string(s)
}

// Job は成果物生成ジョブ
// Result は COMPLETED のときだけ、ErrorMessage は FAILED のときだけ設定される
type Job struct {
	ID           uuid.UUID     `json:"id"`
	NotebookID   uuid.UUID     `json:"notebookId"`
	UserID       uuid.UUID     `json:"userId"`
	Type         artifact.Type `json:"type"`
	Status       Status        `json:"status"`
	Result       *string       `json:"result"`
	ErrorMessage *string       `json:"errorMessage"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	CompletedAt  *time.Time    `json:"completedAt"`
}

// New は PENDING 状態の新しいジョブを作成する
func New(id, notebookID, userID uuid.UUID, t artifact.Type, now time.Time) *Job {
	return &Job{
		ID:         id,
		NotebookID: notebookID,
		UserID:     userID,
		Type:       t,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone はジョブのコピーを返す
func (j *Job) Clone() *Job {
	c := *j
	if j.Result != nil {
		v := *j.Result
		c.Result = &v
	}
	if j.ErrorMessage != nil {
		v := *j.ErrorMessage
		c.ErrorMessage = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

// Start は PENDING から PROCESSING へ遷移させる
func (j *Job) Start(now time.Time) error {
	if j.Status != StatusPending {
		return fmt.Errorf("cannot start job in %s state", j.Status)
	}
	j.Status = StatusProcessing
	j.UpdatedAt = now
	return nil
}

// Complete は PROCESSING から COMPLETED へ遷移させ、結果を記録する
func (j *Job) Complete(result string, now time.Time) error {
	if j.Status != StatusProcessing {
		return fmt.Errorf("cannot complete job in %s state", j.Status)
	}
	j.Status = StatusCompleted
	j.Result = &result
	j.ErrorMessage = nil
	j.UpdatedAt = now
	j.CompletedAt = &now
	return nil
}

// Fail は PROCESSING から FAILED へ遷移させ、エラーメッセージを記録する
func (j *Job) Fail(message string, now time.Time) error {
	if j.Status != StatusProcessing {
		return fmt.Errorf("cannot fail job in %s state", j.Status)
	}
	j.Status = StatusFailed
	j.Result = nil
	j.ErrorMessage = &message
	j.UpdatedAt = now
	j.CompletedAt = &now
	return nil
}
