package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vicentaelm/SubtitleMaster/internal/task"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresTaskRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := &PostgresTaskRepository{db: db}
	return db, mock, repo
}

func taskRows(tasks ...*task.Task) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"task_id", "owner_key", "status", "progress", "original_filename",
		"input_file_id", "input_link", "source_language", "target_language",
		"model_tier", "format", "output_file_id", "output_link", "output_filename",
		"message", "created_at", "completed_at",
	})

	for _, t := range tasks {
		rows.AddRow(
			t.ID, t.OwnerKey, t.Status, t.Progress, t.OriginalFilename,
			t.InputFileID, t.InputLink, t.Params.SourceLanguage, t.Params.TargetLanguage,
			t.Params.ModelTier, t.Params.Format, nullable(t.OutputFileID), nullable(t.OutputLink),
			nullable(t.OutputFilename), nullable(t.Message), t.CreatedAt, t.CompletedAt,
		)
	}

	return rows
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func testTask() *task.Task {
	tsk := task.NewTask("session-1", "movie.mp4", task.Params{
		SourceLanguage: "auto",
		TargetLanguage: "same",
		ModelTier:      "base",
		Format:         "srt",
	})
	tsk.InputFileID = "in123"
	tsk.InputLink = "https://gofile.io/d/in123"

	return tsk
}

func TestCreate(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	t.Run("successful insert", func(t *testing.T) {
		tsk := testTask()

		mock.ExpectExec("(?s)INSERT INTO subtitle_tasks").
			WithArgs(
				tsk.ID, tsk.OwnerKey, tsk.Status, tsk.Progress, tsk.OriginalFilename,
				tsk.InputFileID, tsk.InputLink, "auto", "same", "base", "srt",
				tsk.CreatedAt, 1,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, tsk, 1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrency re-check rejects the insert", func(t *testing.T) {
		tsk := testTask()

		mock.ExpectExec("(?s)INSERT INTO subtitle_tasks").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Create(ctx, tsk, 1)
		assert.ErrorIs(t, err, ErrConcurrencyExceeded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetTask(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	t.Run("successful retrieval", func(t *testing.T) {
		tsk := testTask()

		mock.ExpectQuery("(?s)SELECT.*FROM subtitle_tasks WHERE task_id").
			WithArgs(tsk.ID).
			WillReturnRows(taskRows(tsk))

		result, err := repo.GetTask(ctx, tsk.ID)
		require.NoError(t, err)
		assert.Equal(t, tsk.ID, result.ID)
		assert.Equal(t, task.StatusPending, result.Status)
		assert.Equal(t, "in123", result.InputFileID)
		assert.Empty(t, result.OutputFileID)
		assert.Nil(t, result.CompletedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("task not found", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT.*FROM subtitle_tasks WHERE task_id").
			WithArgs("nonexistent").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetTask(ctx, "nonexistent")
		assert.ErrorIs(t, err, ErrTaskNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListByOwner(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	first := testTask()
	second := testTask()
	second.CreatedAt = first.CreatedAt.Add(time.Minute)

	mock.ExpectQuery("(?s)SELECT.*FROM subtitle_tasks.*WHERE owner_key.*ORDER BY created_at DESC").
		WithArgs("session-1", 50).
		WillReturnRows(taskRows(second, first))

	tasks, err := repo.ListByOwner(context.Background(), "session-1", 50)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, second.ID, tasks[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounts(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	t.Run("count active", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT COUNT.*FROM subtitle_tasks.*status IN").
			WithArgs("session-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		count, err := repo.CountActive(ctx, "session-1")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("count created between", func(t *testing.T) {
		from := time.Date(2026, 8, 30, 0, 0, 0, 0, time.Local)
		to := from.Add(24 * time.Hour)

		mock.ExpectQuery("(?s)SELECT COUNT.*FROM subtitle_tasks.*created_at").
			WithArgs("session-1", from, to).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		count, err := repo.CountCreatedBetween(ctx, "session-1", from, to)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("count by owner and status", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT COUNT.*FROM subtitle_tasks.*status =").
			WithArgs("session-1", task.StatusCompleted).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

		count, err := repo.CountByOwnerAndStatus(ctx, "session-1", task.StatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, 4, count)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessing(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	t.Run("claims a pending task", func(t *testing.T) {
		mock.ExpectExec("(?s)UPDATE subtitle_tasks.*SET status = 'processing'").
			WithArgs("task-1", "Downloading media file...").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.MarkProcessing(ctx, "task-1", "Downloading media file..."))
	})

	t.Run("already claimed", func(t *testing.T) {
		claimed := testTask()
		claimed.ID = "task-2"
		claimed.Status = task.StatusProcessing

		mock.ExpectExec("(?s)UPDATE subtitle_tasks.*SET status = 'processing'").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("(?s)SELECT.*FROM subtitle_tasks WHERE task_id").
			WithArgs("task-2").
			WillReturnRows(taskRows(claimed))

		err := repo.MarkProcessing(ctx, "task-2", "x")
		assert.ErrorIs(t, err, ErrAlreadyClaimed)
	})

	t.Run("missing task", func(t *testing.T) {
		mock.ExpectExec("(?s)UPDATE subtitle_tasks.*SET status = 'processing'").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("(?s)SELECT.*FROM subtitle_tasks WHERE task_id").
			WillReturnError(sql.ErrNoRows)

		err := repo.MarkProcessing(ctx, "task-3", "x")
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteTask(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	t.Run("completes a processing task", func(t *testing.T) {
		mock.ExpectExec("(?s)UPDATE subtitle_tasks.*SET status = 'completed'").
			WithArgs("task-1", "out123", "https://gofile.io/d/out123", "movie.srt").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.CompleteTask(ctx, "task-1", "out123", "https://gofile.io/d/out123", "movie.srt"))
	})

	t.Run("terminal state is immutable", func(t *testing.T) {
		done := testTask()
		done.ID = "task-2"
		done.Status = task.StatusFailed
		done.Message = "boom"

		mock.ExpectExec("(?s)UPDATE subtitle_tasks.*SET status = 'completed'").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("(?s)SELECT.*FROM subtitle_tasks WHERE task_id").
			WillReturnRows(taskRows(done))

		err := repo.CompleteTask(ctx, "task-2", "out", "link", "name")
		assert.ErrorIs(t, err, ErrTerminalState)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailTask(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("(?s)UPDATE subtitle_tasks.*SET status = 'failed'").
		WithArgs("task-1", "transcription failed: no segments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.FailTask(context.Background(), "task-1", "transcription failed: no segments"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatus(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("pending", 3).
		AddRow("completed", 7)

	mock.ExpectQuery("(?s)SELECT status, COUNT\\(\\*\\) FROM subtitle_tasks GROUP BY status").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[task.TaskStatus]int{
		task.StatusPending:   3,
		task.StatusCompleted: 7,
	}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecent(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	tsk := testTask()
	since := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery("(?s)SELECT.*FROM subtitle_tasks.*WHERE created_at >=.*ORDER BY created_at DESC").
		WithArgs(since, 100).
		WillReturnRows(taskRows(tsk))

	tasks, err := repo.ListRecent(context.Background(), since, 100)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, tsk.ID, tasks[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
