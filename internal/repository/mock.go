package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Vicentaelm/SubtitleMaster/internal/task"
)

// MockTaskRepository is an in-memory TaskRepository for tests. It enforces
// the same transition guards and admission re-check as the Postgres
// implementation and records calls for assertions.
type MockTaskRepository struct {
	mu    sync.Mutex
	Tasks map[string]*task.Task

	CreateCalls     []string
	ProgressWrites  map[string][]string
	CompleteCalls   []string
	FailCalls       []string
	CreateError     error
	GetTaskError    error
	CompleteError   error
	FailError       error
	CountActiveErr  error
	CountCreatedErr error
}

func NewMockTaskRepository() *MockTaskRepository {
	return &MockTaskRepository{
		Tasks:          make(map[string]*task.Task),
		ProgressWrites: make(map[string][]string),
	}
}

func (m *MockTaskRepository) Create(ctx context.Context, t *task.Task, maxConcurrent int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls = append(m.CreateCalls, t.ID)

	if m.CreateError != nil {
		return m.CreateError
	}

	active := 0
	for _, existing := range m.Tasks {
		if existing.OwnerKey == t.OwnerKey && !existing.Status.Terminal() {
			active++
		}
	}
	if active >= maxConcurrent {
		return ErrConcurrencyExceeded
	}

	cp := *t
	m.Tasks[t.ID] = &cp
	return nil
}

func (m *MockTaskRepository) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetTaskError != nil {
		return nil, m.GetTaskError
	}

	t, ok := m.Tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}

	cp := *t
	return &cp, nil
}

func (m *MockTaskRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []*task.Task
	for _, t := range m.Tasks {
		if t.OwnerKey == owner {
			cp := *t
			tasks = append(tasks, &cp)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}

	return tasks, nil
}

func (m *MockTaskRepository) CountActive(ctx context.Context, owner string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CountActiveErr != nil {
		return 0, m.CountActiveErr
	}

	count := 0
	for _, t := range m.Tasks {
		if t.OwnerKey == owner && !t.Status.Terminal() {
			count++
		}
	}

	return count, nil
}

func (m *MockTaskRepository) CountCreatedBetween(ctx context.Context, owner string, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CountCreatedErr != nil {
		return 0, m.CountCreatedErr
	}

	count := 0
	for _, t := range m.Tasks {
		if t.OwnerKey == owner && !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
			count++
		}
	}

	return count, nil
}

func (m *MockTaskRepository) CountByOwnerAndStatus(ctx context.Context, owner string, status task.TaskStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, t := range m.Tasks {
		if t.OwnerKey == owner && t.Status == status {
			count++
		}
	}

	return count, nil
}

func (m *MockTaskRepository) CountByStatus(ctx context.Context) (map[task.TaskStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[task.TaskStatus]int)
	for _, t := range m.Tasks {
		counts[t.Status]++
	}

	return counts, nil
}

func (m *MockTaskRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []*task.Task
	for _, t := range m.Tasks {
		if !t.CreatedAt.Before(since) {
			tasks = append(tasks, t)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	if len(tasks) > limit {
		tasks = tasks[:limit]
	}

	return tasks, nil
}

func (m *MockTaskRepository) MarkProcessing(ctx context.Context, taskID, progress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.Tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status != task.StatusPending {
		return ErrAlreadyClaimed
	}

	t.Status = task.StatusProcessing
	t.Progress = progress
	m.ProgressWrites[taskID] = append(m.ProgressWrites[taskID], progress)
	return nil
}

func (m *MockTaskRepository) SetProgress(ctx context.Context, taskID, progress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.Tasks[taskID]
	if !ok || t.Status != task.StatusProcessing {
		return nil
	}

	t.Progress = progress
	m.ProgressWrites[taskID] = append(m.ProgressWrites[taskID], progress)
	return nil
}

func (m *MockTaskRepository) CompleteTask(ctx context.Context, taskID, outputFileID, outputLink, outputFilename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompleteCalls = append(m.CompleteCalls, taskID)

	if m.CompleteError != nil {
		return m.CompleteError
	}

	t, ok := m.Tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status != task.StatusProcessing {
		return ErrTerminalState
	}

	now := time.Now()
	t.Status = task.StatusCompleted
	t.Progress = "Done"
	t.OutputFileID = outputFileID
	t.OutputLink = outputLink
	t.OutputFilename = outputFilename
	t.CompletedAt = &now
	return nil
}

func (m *MockTaskRepository) FailTask(ctx context.Context, taskID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FailCalls = append(m.FailCalls, taskID)

	if m.FailError != nil {
		return m.FailError
	}

	t, ok := m.Tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status != task.StatusProcessing {
		return ErrTerminalState
	}

	now := time.Now()
	t.Status = task.StatusFailed
	t.Message = message
	t.CompletedAt = &now
	return nil
}

func (m *MockTaskRepository) Close() error {
	return nil
}
