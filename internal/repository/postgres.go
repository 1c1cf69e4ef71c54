package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/Vicentaelm/SubtitleMaster/internal/task"
)

// PostgresTaskRepository stores tasks in a subtitle_tasks table:
//
//	CREATE TABLE subtitle_tasks (
//	    task_id           TEXT PRIMARY KEY,
//	    owner_key         TEXT NOT NULL,
//	    status            TEXT NOT NULL,
//	    progress          TEXT NOT NULL DEFAULT '',
//	    original_filename TEXT NOT NULL,
//	    input_file_id     TEXT NOT NULL,
//	    input_link        TEXT NOT NULL,
//	    source_language   TEXT NOT NULL,
//	    target_language   TEXT NOT NULL,
//	    model_tier        TEXT NOT NULL,
//	    format            TEXT NOT NULL,
//	    output_file_id    TEXT,
//	    output_link       TEXT,
//	    output_filename   TEXT,
//	    message           TEXT,
//	    created_at        TIMESTAMPTZ NOT NULL,
//	    completed_at      TIMESTAMPTZ
//	);
//	CREATE INDEX subtitle_tasks_owner_created ON subtitle_tasks (owner_key, created_at DESC);
type PostgresTaskRepository struct {
	db *sql.DB
}

func NewPostgresTaskRepository(connectionString string) (*PostgresTaskRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresTaskRepository{db: db}, nil
}

const taskColumns = `
	task_id, owner_key, status, progress, original_filename,
	input_file_id, input_link, source_language, target_language,
	model_tier, format, output_file_id, output_link, output_filename,
	message, created_at, completed_at
`

// Create inserts the task while re-checking the owner's concurrent-task
// limit in the same statement, closing the race between the quota pre-check
// and the write. Zero rows inserted means another submission won the race.
func (r *PostgresTaskRepository) Create(ctx context.Context, t *task.Task, maxConcurrent int) error {
	query := `
		INSERT INTO subtitle_tasks (
			task_id, owner_key, status, progress, original_filename,
			input_file_id, input_link, source_language, target_language,
			model_tier, format, created_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		WHERE (
			SELECT COUNT(*) FROM subtitle_tasks
			WHERE owner_key = $2 AND status IN ('pending', 'processing')
		) < $13
	`

	res, err := r.db.ExecContext(
		ctx,
		query,
		t.ID,
		t.OwnerKey,
		t.Status,
		t.Progress,
		t.OriginalFilename,
		t.InputFileID,
		t.InputLink,
		t.Params.SourceLanguage,
		t.Params.TargetLanguage,
		t.Params.ModelTier,
		t.Params.Format,
		t.CreatedAt,
		maxConcurrent,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConcurrencyExceeded
	}

	return nil
}

func (r *PostgresTaskRepository) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM subtitle_tasks WHERE task_id = $1`

	t, err := scanTask(r.db.QueryRowContext(ctx, query, taskID))
	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}

	return t, nil
}

func (r *PostgresTaskRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]*task.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM subtitle_tasks
		WHERE owner_key = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, owner, limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

func (r *PostgresTaskRepository) CountActive(ctx context.Context, owner string) (int, error) {
	query := `
		SELECT COUNT(*) FROM subtitle_tasks
		WHERE owner_key = $1 AND status IN ('pending', 'processing')
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, owner).Scan(&count)
	return count, err
}

func (r *PostgresTaskRepository) CountCreatedBetween(ctx context.Context, owner string, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM subtitle_tasks
		WHERE owner_key = $1 AND created_at >= $2 AND created_at < $3
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, owner, from, to).Scan(&count)
	return count, err
}

func (r *PostgresTaskRepository) CountByOwnerAndStatus(ctx context.Context, owner string, status task.TaskStatus) (int, error) {
	query := `
		SELECT COUNT(*) FROM subtitle_tasks
		WHERE owner_key = $1 AND status = $2
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, owner, status).Scan(&count)
	return count, err
}

func (r *PostgresTaskRepository) CountByStatus(ctx context.Context) (map[task.TaskStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM subtitle_tasks GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	counts := make(map[task.TaskStatus]int)
	for rows.Next() {
		var status task.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

func (r *PostgresTaskRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]*task.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM subtitle_tasks
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// MarkProcessing claims a pending task. The status guard makes the claim
// exclusive; a second claimer sees zero rows affected.
func (r *PostgresTaskRepository) MarkProcessing(ctx context.Context, taskID, progress string) error {
	query := `
		UPDATE subtitle_tasks
		SET status = 'processing', progress = $2
		WHERE task_id = $1 AND status = 'pending'
	`

	res, err := r.db.ExecContext(ctx, query, taskID, progress)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetTask(ctx, taskID); err != nil {
			return err
		}
		return ErrAlreadyClaimed
	}

	return nil
}

func (r *PostgresTaskRepository) SetProgress(ctx context.Context, taskID, progress string) error {
	query := `
		UPDATE subtitle_tasks
		SET progress = $2
		WHERE task_id = $1 AND status = 'processing'
	`
	_, err := r.db.ExecContext(ctx, query, taskID, progress)

	return err
}

// CompleteTask flips the task to completed and populates the output
// reference in the same statement; a reader can never observe completed
// without an output reference.
func (r *PostgresTaskRepository) CompleteTask(ctx context.Context, taskID, outputFileID, outputLink, outputFilename string) error {
	query := `
		UPDATE subtitle_tasks
		SET status = 'completed',
		    progress = 'Done',
		    output_file_id = $2,
		    output_link = $3,
		    output_filename = $4,
		    completed_at = NOW()
		WHERE task_id = $1 AND status = 'processing'
	`

	res, err := r.db.ExecContext(ctx, query, taskID, outputFileID, outputLink, outputFilename)
	if err != nil {
		return err
	}

	return r.checkTransition(ctx, taskID, res)
}

func (r *PostgresTaskRepository) FailTask(ctx context.Context, taskID, message string) error {
	query := `
		UPDATE subtitle_tasks
		SET status = 'failed',
		    message = $2,
		    completed_at = NOW()
		WHERE task_id = $1 AND status = 'processing'
	`

	res, err := r.db.ExecContext(ctx, query, taskID, message)
	if err != nil {
		return err
	}

	return r.checkTransition(ctx, taskID, res)
}

// checkTransition distinguishes a missing task from a guarded terminal
// state when a status update affected no rows.
func (r *PostgresTaskRepository) checkTransition(ctx context.Context, taskID string, res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetTask(ctx, taskID); err != nil {
			return err
		}
		return ErrTerminalState
	}

	return nil
}

func (r *PostgresTaskRepository) DB() *sql.DB {
	return r.db
}

func (r *PostgresTaskRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t              task.Task
		outputFileID   sql.NullString
		outputLink     sql.NullString
		outputFilename sql.NullString
		message        sql.NullString
		completedAt    sql.NullTime
	)

	err := row.Scan(
		&t.ID,
		&t.OwnerKey,
		&t.Status,
		&t.Progress,
		&t.OriginalFilename,
		&t.InputFileID,
		&t.InputLink,
		&t.Params.SourceLanguage,
		&t.Params.TargetLanguage,
		&t.Params.ModelTier,
		&t.Params.Format,
		&outputFileID,
		&outputLink,
		&outputFilename,
		&message,
		&t.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.OutputFileID = outputFileID.String
	t.OutputLink = outputLink.String
	t.OutputFilename = outputFilename.String
	t.Message = message.String
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}

	return &t, nil
}
