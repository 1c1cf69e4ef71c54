// Package queue provides the Redis-backed pending-task queue consumed by
// the pipeline worker, plus a live status cache so polls see progress
// without touching the durable store.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Vicentaelm/SubtitleMaster/internal/task"
)

const (
	pendingKey      = "subtitle:pending"
	statusKeyPrefix = "subtitle:status:"

	// statusTTL bounds staleness; the durable store is the source of
	// truth once an entry expires.
	statusTTL = 30 * time.Minute
)

// ErrEmpty is returned by Dequeue when no task is waiting.
var ErrEmpty = errors.New("no pending tasks")

// StatusEntry is the live view of a task mirrored into Redis on every
// transition and progress write.
type StatusEntry struct {
	Status   task.TaskStatus `json:"status"`
	Progress string          `json:"progress,omitempty"`
	Message  string          `json:"message,omitempty"`
}

type Queue struct {
	client *redis.Client
}

func NewQueue(redisAddr string) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Enqueue(ctx context.Context, taskID string) error {
	return q.client.RPush(ctx, pendingKey, taskID).Err()
}

// Dequeue pops the oldest pending task ID, or ErrEmpty.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	taskID, err := q.client.LPop(ctx, pendingKey).Result()
	if err == redis.Nil {
		return "", ErrEmpty
	}
	if err != nil {
		return "", err
	}

	return taskID, nil
}

func (q *Queue) PendingDepth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, pendingKey).Result()
}

func (q *Queue) SetStatus(ctx context.Context, taskID string, entry StatusEntry) error {
	data, err := marshalEntry(entry)
	if err != nil {
		return err
	}

	return q.client.Set(ctx, statusKeyPrefix+taskID, data, statusTTL).Err()
}

// GetStatus returns the cached live status, or nil when no entry exists.
func (q *Queue) GetStatus(ctx context.Context, taskID string) (*StatusEntry, error) {
	data, err := q.client.Get(ctx, statusKeyPrefix+taskID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return unmarshalEntry(data)
}

func (q *Queue) Close() error {
	return q.client.Close()
}
