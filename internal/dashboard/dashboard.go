// Package dashboard implements the web-based monitoring interface for task counts and recent activity.
package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/Vicentaelm/SubtitleMaster/internal/httputil"
	"github.com/Vicentaelm/SubtitleMaster/internal/task"
)

const recentWindow = 24 * time.Hour

// TaskStore is the slice of the repository the dashboard reads.
type TaskStore interface {
	CountByStatus(ctx context.Context) (map[task.TaskStatus]int, error)
	ListRecent(ctx context.Context, since time.Time, limit int) ([]*task.Task, error)
}

type Dashboard struct {
	store TaskStore
}

type Stats struct {
	TotalTasks      int            `json:"total_tasks"`
	PendingTasks    int            `json:"pending_tasks"`
	ProcessingTasks int            `json:"processing_tasks"`
	CompletedTasks  int            `json:"completed_tasks"`
	FailedTasks     int            `json:"failed_tasks"`
	TasksByFormat   map[string]int `json:"tasks_by_format"`
	AverageRunTime  string         `json:"average_run_time"`
	LastUpdated     time.Time      `json:"last_updated"`
}

type TaskHistory struct {
	TaskID      string          `json:"task_id"`
	Filename    string          `json:"filename"`
	Format      string          `json:"format"`
	Status      task.TaskStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	Duration    string          `json:"duration"`
}

func NewDashboard(store TaskStore) *Dashboard {
	return &Dashboard{store: store}
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	counts, err := d.store.CountByStatus(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats := Stats{
		PendingTasks:    counts[task.StatusPending],
		ProcessingTasks: counts[task.StatusProcessing],
		CompletedTasks:  counts[task.StatusCompleted],
		FailedTasks:     counts[task.StatusFailed],
		TasksByFormat:   make(map[string]int),
		LastUpdated:     time.Now(),
	}
	for _, count := range counts {
		stats.TotalTasks += count
	}

	recent, err := d.store.ListRecent(r.Context(), time.Now().Add(-recentWindow), 500)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var totalRunTime time.Duration
	runCount := 0
	for _, t := range recent {
		stats.TasksByFormat[t.Params.Format]++

		if t.CompletedAt != nil {
			totalRunTime += t.CompletedAt.Sub(t.CreatedAt)
			runCount++
		}
	}

	if runCount > 0 {
		avg := totalRunTime / time.Duration(runCount)
		stats.AverageRunTime = avg.Round(time.Millisecond).String()
	} else {
		stats.AverageRunTime = "N/A"
	}

	httputil.WriteJSON(w, stats, http.StatusOK)
}

func (d *Dashboard) GetRecentTasks(w http.ResponseWriter, r *http.Request) {
	recent, err := d.store.ListRecent(r.Context(), time.Now().Add(-recentWindow), 100)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	history := []TaskHistory{}
	for _, t := range recent {
		var duration string
		if t.CompletedAt != nil {
			duration = t.CompletedAt.Sub(t.CreatedAt).Round(time.Millisecond).String()
		}

		history = append(history, TaskHistory{
			TaskID:      t.ID,
			Filename:    t.OriginalFilename,
			Format:      t.Params.Format,
			Status:      t.Status,
			CreatedAt:   t.CreatedAt,
			CompletedAt: t.CompletedAt,
			Duration:    duration,
		})
	}

	httputil.WriteJSON(w, history, http.StatusOK)
}
