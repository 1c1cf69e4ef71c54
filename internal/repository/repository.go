// Package repository provides PostgreSQL persistence for subtitle tasks.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Vicentaelm/SubtitleMaster/internal/task"
)

var (
	ErrTaskNotFound = errors.New("task not found")

	// ErrConcurrencyExceeded is returned by Create when the owner's
	// concurrent-task limit is re-checked inside the insert and fails.
	ErrConcurrencyExceeded = errors.New("concurrent task limit reached")

	// ErrAlreadyClaimed is returned by MarkProcessing when the task is no
	// longer pending.
	ErrAlreadyClaimed = errors.New("task already claimed")

	// ErrTerminalState is returned when a completed or failed task is
	// asked to transition again.
	ErrTerminalState = errors.New("task is in a terminal state")
)

type TaskRepository interface {
	Create(ctx context.Context, t *task.Task, maxConcurrent int) error
	GetTask(ctx context.Context, taskID string) (*task.Task, error)
	ListByOwner(ctx context.Context, owner string, limit int) ([]*task.Task, error)
	CountActive(ctx context.Context, owner string) (int, error)
	CountCreatedBetween(ctx context.Context, owner string, from, to time.Time) (int, error)
	CountByOwnerAndStatus(ctx context.Context, owner string, status task.TaskStatus) (int, error)
	CountByStatus(ctx context.Context) (map[task.TaskStatus]int, error)
	ListRecent(ctx context.Context, since time.Time, limit int) ([]*task.Task, error)
	MarkProcessing(ctx context.Context, taskID, progress string) error
	SetProgress(ctx context.Context, taskID, progress string) error
	CompleteTask(ctx context.Context, taskID, outputFileID, outputLink, outputFilename string) error
	FailTask(ctx context.Context, taskID, message string) error
	Close() error
}
