// Package quota decides whether a new task may be admitted for an owner.
// Decisions are pure functions of the membership list and the current task
// store contents; nothing is cached, so a membership or limit change takes
// effect on the next request.
package quota

import (
	"context"
	"fmt"
	"time"
)

// Limit values per tier, mirroring the two plans the service offers.
const (
	FreeMaxFileSize        = 100 * 1024 * 1024
	FreeMaxConcurrentTasks = 1
	FreeMaxTasksPerDay     = 5

	ProMaxFileSize        = 2 * 1024 * 1024 * 1024
	ProMaxConcurrentTasks = 3

	// TasksPerDayUnlimited is the sentinel for a tier with no daily cap.
	TasksPerDayUnlimited = -1

	TierFree = "Free"
	TierPro  = "Pro"
)

// Limits is the admission decision's numeric side: derived per request,
// never persisted.
type Limits struct {
	MaxFileSize        int64  `json:"max_file_size"`
	MaxConcurrentTasks int    `json:"max_concurrent_tasks"`
	MaxTasksPerDay     int    `json:"max_tasks_per_day"`
	Tier               string `json:"tier"`
}

type DeniedKind string

const (
	DeniedSize        DeniedKind = "size"
	DeniedConcurrency DeniedKind = "concurrency"
	DeniedDaily       DeniedKind = "daily"
)

// DeniedError reports which gate rejected a submission and the limit that
// was exceeded.
type DeniedError struct {
	Kind DeniedKind
	Tier string

	MaxFileSize int64
	FileSize    int64

	ActiveCount   int
	MaxConcurrent int

	TodayCount int
	MaxPerDay  int
}

func (e *DeniedError) Error() string {
	switch e.Kind {
	case DeniedSize:
		return fmt.Sprintf("file size %d exceeds the %s tier limit of %d bytes", e.FileSize, e.Tier, e.MaxFileSize)
	case DeniedConcurrency:
		return fmt.Sprintf("%d active tasks, %s tier allows %d concurrent", e.ActiveCount, e.Tier, e.MaxConcurrent)
	case DeniedDaily:
		return fmt.Sprintf("%d tasks created today, %s tier allows %d per day", e.TodayCount, e.Tier, e.MaxPerDay)
	default:
		return "quota denied"
	}
}

// TaskCounter is the slice of the task store the engine needs: active task
// counts and creation counts within a window, per owner.
type TaskCounter interface {
	CountActive(ctx context.Context, owner string) (int, error)
	CountCreatedBetween(ctx context.Context, owner string, from, to time.Time) (int, error)
}

type Engine struct {
	membership *Membership
	counter    TaskCounter
	now        func() time.Time
}

func NewEngine(membership *Membership, counter TaskCounter) *Engine {
	return &Engine{
		membership: membership,
		counter:    counter,
		now:        time.Now,
	}
}

// LimitsFor returns the fixed limits of the tier the identity belongs to.
func (e *Engine) LimitsFor(identity string) Limits {
	if e.membership.IsPrivileged(identity, e.now()) {
		return Limits{
			MaxFileSize:        ProMaxFileSize,
			MaxConcurrentTasks: ProMaxConcurrentTasks,
			MaxTasksPerDay:     TasksPerDayUnlimited,
			Tier:               TierPro,
		}
	}

	return Limits{
		MaxFileSize:        FreeMaxFileSize,
		MaxConcurrentTasks: FreeMaxConcurrentTasks,
		MaxTasksPerDay:     FreeMaxTasksPerDay,
		Tier:               TierFree,
	}
}

func (e *Engine) CheckFileSize(size int64, identity string) error {
	limits := e.LimitsFor(identity)
	if size > limits.MaxFileSize {
		return &DeniedError{
			Kind:        DeniedSize,
			Tier:        limits.Tier,
			MaxFileSize: limits.MaxFileSize,
			FileSize:    size,
		}
	}

	return nil
}

// CheckConcurrency counts the owner's tasks currently pending or processing.
func (e *Engine) CheckConcurrency(ctx context.Context, owner, identity string) error {
	limits := e.LimitsFor(identity)

	active, err := e.counter.CountActive(ctx, owner)
	if err != nil {
		return fmt.Errorf("count active tasks: %w", err)
	}
	if active >= limits.MaxConcurrentTasks {
		return &DeniedError{
			Kind:          DeniedConcurrency,
			Tier:          limits.Tier,
			ActiveCount:   active,
			MaxConcurrent: limits.MaxConcurrentTasks,
		}
	}

	return nil
}

// CheckDailyQuota counts tasks the owner created within the current
// calendar day in this process's local time zone.
func (e *Engine) CheckDailyQuota(ctx context.Context, owner, identity string) error {
	limits := e.LimitsFor(identity)
	if limits.MaxTasksPerDay == TasksPerDayUnlimited {
		return nil
	}

	now := e.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	today, err := e.counter.CountCreatedBetween(ctx, owner, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("count today's tasks: %w", err)
	}
	if today >= limits.MaxTasksPerDay {
		return &DeniedError{
			Kind:       DeniedDaily,
			Tier:       limits.Tier,
			TodayCount: today,
			MaxPerDay:  limits.MaxTasksPerDay,
		}
	}

	return nil
}

// Admit evaluates all three gates; all must pass before any upload begins.
func (e *Engine) Admit(ctx context.Context, owner, identity string, size int64) error {
	if err := e.CheckFileSize(size, identity); err != nil {
		return err
	}
	if err := e.CheckConcurrency(ctx, owner, identity); err != nil {
		return err
	}

	return e.CheckDailyQuota(ctx, owner, identity)
}
