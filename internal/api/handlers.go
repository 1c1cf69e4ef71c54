// Package api exposes the HTTP surface for submitting media files and
// polling task state.
package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Vicentaelm/SubtitleMaster/internal/dashboard"
	"github.com/Vicentaelm/SubtitleMaster/internal/httputil"
	"github.com/Vicentaelm/SubtitleMaster/internal/metrics"
	"github.com/Vicentaelm/SubtitleMaster/internal/queue"
	"github.com/Vicentaelm/SubtitleMaster/internal/quota"
	"github.com/Vicentaelm/SubtitleMaster/internal/repository"
	"github.com/Vicentaelm/SubtitleMaster/internal/storage"
	"github.com/Vicentaelm/SubtitleMaster/internal/task"
)

const (
	sessionHeader      = "X-Session-ID"
	maxMultipartMemory = 32 << 20
	defaultListLimit   = 50
)

// Uploader is the slice of the remote store the API needs.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (*storage.Handle, error)
}

// TaskQueue feeds accepted tasks to workers and serves live status.
type TaskQueue interface {
	Enqueue(ctx context.Context, taskID string) error
	GetStatus(ctx context.Context, taskID string) (*queue.StatusEntry, error)
}

type API struct {
	repo  repository.TaskRepository
	store Uploader
	quota *quota.Engine
	queue TaskQueue
	mux   *http.ServeMux
}

func NewAPI(repo repository.TaskRepository, store Uploader, engine *quota.Engine, q TaskQueue) *API {
	api := &API{
		repo:  repo,
		store: store,
		quota: engine,
		queue: q,
		mux:   http.NewServeMux(),
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("/api/tasks", a.handleTasks)
	a.mux.HandleFunc("/api/tasks/", a.handleTaskByID)
	a.mux.HandleFunc("/api/quota", a.handleQuota)
	a.mux.HandleFunc("/health", a.handleHealth)

	dash := dashboard.NewDashboard(a.repo)
	a.mux.HandleFunc("/api/dashboard/stats", dash.GetStats)
	a.mux.HandleFunc("/api/dashboard/recent", dash.GetRecentTasks)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createTask(w, r)
	case http.MethodGet:
		a.listTasks(w, r)
	default:
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(sessionHeader)
	if owner == "" {
		owner = uuid.New().String()
	}
	w.Header().Set(sessionHeader, owner)

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		httputil.WriteJSONError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteJSONError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("failed to close uploaded file: %v", err)
		}
	}()

	if !task.ExtensionAllowed(header.Filename) {
		httputil.WriteJSONError(w, "File type not supported", http.StatusBadRequest)
		return
	}

	params := paramsFromForm(r)
	if !task.ValidModelTier(params.ModelTier) {
		httputil.WriteJSONError(w, "Unknown model", http.StatusBadRequest)
		return
	}
	if !task.ValidFormat(params.Format) {
		httputil.WriteJSONError(w, "Unknown subtitle format", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := a.quota.Admit(ctx, owner, owner, header.Size); err != nil {
		a.writeQuotaError(w, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteJSONError(w, "Failed to read uploaded file", http.StatusBadRequest)
		return
	}

	handle, err := a.store.Upload(ctx, data, header.Filename)
	if err != nil {
		log.Printf("Failed to upload %s to remote storage: %v", header.Filename, err)
		httputil.WriteJSONError(w, "Remote storage unavailable", http.StatusBadGateway)
		return
	}

	t := task.NewTask(owner, header.Filename, params)
	t.InputFileID = handle.FileID
	t.InputLink = handle.Link

	limits := a.quota.LimitsFor(owner)
	if err := a.repo.Create(ctx, t, limits.MaxConcurrentTasks); err != nil {
		if errors.Is(err, repository.ErrConcurrencyExceeded) {
			a.writeQuotaError(w, &quota.DeniedError{
				Kind:          quota.DeniedConcurrency,
				Tier:          limits.Tier,
				ActiveCount:   limits.MaxConcurrentTasks,
				MaxConcurrent: limits.MaxConcurrentTasks,
			})
			return
		}

		log.Printf("Failed to create task for %s: %v", owner, err)
		httputil.WriteJSONError(w, "Failed to create task", http.StatusInternalServerError)
		return
	}

	if err := a.queue.Enqueue(ctx, t.ID); err != nil {
		log.Printf("Failed to enqueue task %s: %v", t.ID, err)
		httputil.WriteJSONError(w, "Failed to enqueue task", http.StatusInternalServerError)
		return
	}

	metrics.RecordTaskSubmitted(limits.Tier, params.Format)
	httputil.WriteJSON(w, t, http.StatusCreated)
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = r.Header.Get(sessionHeader)
	}
	if owner == "" {
		httputil.WriteJSONError(w, "Owner is required", http.StatusBadRequest)
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteJSONError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	tasks, err := a.repo.ListByOwner(r.Context(), owner, limit)
	if err != nil {
		httputil.WriteJSONError(w, "Failed to list tasks", http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, tasks, http.StatusOK)
}

// handleTaskByID answers status polls. The live cache wins over the
// durable record when both exist, so progress written mid-stage is
// visible before the next database read.
func (a *API) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if taskID == "" {
		httputil.WriteJSONError(w, "Task ID is required", http.StatusBadRequest)
		return
	}

	t, err := a.repo.GetTask(r.Context(), taskID)
	if errors.Is(err, repository.ErrTaskNotFound) {
		httputil.WriteJSONError(w, "Task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		httputil.WriteJSONError(w, "Failed to load task", http.StatusInternalServerError)
		return
	}

	// A terminal durable record wins over the cache: a stale cache entry
	// must not report a finished task as still running.
	if !t.Status.Terminal() {
		if entry, err := a.queue.GetStatus(r.Context(), taskID); err == nil && entry != nil {
			t.Status = entry.Status
			if entry.Progress != "" {
				t.Progress = entry.Progress
			}
			if entry.Message != "" {
				t.Message = entry.Message
			}
		}
	}

	httputil.WriteJSON(w, t, http.StatusOK)
}

type quotaResponse struct {
	Limits         quota.Limits `json:"limits"`
	ActiveTasks    int          `json:"active_tasks"`
	TasksToday     int          `json:"tasks_today"`
	CompletedTasks int          `json:"completed_tasks"`
}

func (a *API) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	owner := r.Header.Get(sessionHeader)
	if owner == "" {
		owner = r.URL.Query().Get("owner")
	}
	if owner == "" {
		httputil.WriteJSONError(w, "Owner is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	active, err := a.repo.CountActive(ctx, owner)
	if err != nil {
		httputil.WriteJSONError(w, "Failed to count tasks", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := a.repo.CountCreatedBetween(ctx, owner, midnight, now)
	if err != nil {
		httputil.WriteJSONError(w, "Failed to count tasks", http.StatusInternalServerError)
		return
	}

	completed, err := a.repo.CountByOwnerAndStatus(ctx, owner, task.StatusCompleted)
	if err != nil {
		httputil.WriteJSONError(w, "Failed to count tasks", http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, quotaResponse{
		Limits:         a.quota.LimitsFor(owner),
		ActiveTasks:    active,
		TasksToday:     today,
		CompletedTasks: completed,
	}, http.StatusOK)
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (a *API) writeQuotaError(w http.ResponseWriter, err error) {
	var denied *quota.DeniedError
	if errors.As(err, &denied) {
		metrics.RecordQuotaDenial(string(denied.Kind))
		httputil.WriteJSON(w, map[string]any{
			"error": denied.Error(),
			"kind":  string(denied.Kind),
			"tier":  denied.Tier,
		}, http.StatusForbidden)
		return
	}

	httputil.WriteJSONError(w, "Failed to check quota", http.StatusInternalServerError)
}

func paramsFromForm(r *http.Request) task.Params {
	value := func(key, fallback string) string {
		if v := r.FormValue(key); v != "" {
			return v
		}
		return fallback
	}

	return task.Params{
		SourceLanguage: value("language", "auto"),
		TargetLanguage: value("output_language", "same"),
		ModelTier:      value("model", "base"),
		Format:         value("format", "srt"),
	}
}
