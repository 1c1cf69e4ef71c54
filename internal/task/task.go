// Package task defines the subtitle task domain model shared by the API,
// the queue and the persistence layers. It contains the task record, its
// status definitions, processing parameters and serialization helpers.
package task

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type (
	TaskStatus string
	Task       struct {
		ID               string     `json:"id"`
		OwnerKey         string     `json:"owner_key"`
		Status           TaskStatus `json:"status"`
		Progress         string     `json:"progress,omitempty"`
		OriginalFilename string     `json:"original_filename"`
		InputFileID      string     `json:"input_file_id"`
		InputLink        string     `json:"input_link"`
		Params           Params     `json:"params"`
		OutputFileID     string     `json:"output_file_id,omitempty"`
		OutputLink       string     `json:"output_link,omitempty"`
		OutputFilename   string     `json:"output_filename,omitempty"`
		Message          string     `json:"message,omitempty"`
		CreatedAt        time.Time  `json:"created_at"`
		CompletedAt      *time.Time `json:"completed_at,omitempty"`
	}
)

// Params are the processing options fixed at task creation.
type Params struct {
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	ModelTier      string `json:"model_tier"`
	Format         string `json:"format"`
}

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further status transition is allowed.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var ModelTiers = []string{"tiny", "base", "small", "medium", "large"}

var Formats = []string{"srt", "vtt", "txt"}

// AllowedExtensions are the media file extensions accepted for submission.
var AllowedExtensions = []string{"mp3", "mp4", "wav", "avi", "mov", "mkv", "flac", "ogg", "m4a"}

func NewTask(ownerKey, filename string, params Params) *Task {
	return &Task{
		ID:               uuid.New().String(),
		OwnerKey:         ownerKey,
		Status:           StatusPending,
		OriginalFilename: filename,
		Params:           params,
		CreatedAt:        time.Now(),
	}
}

func (t *Task) ToJSON() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}

	return string(data), err
}

func TaskFromJSON(data string) (*Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, err
	}

	return &t, nil
}

func ValidModelTier(tier string) bool {
	return contains(ModelTiers, tier)
}

func ValidFormat(format string) bool {
	return contains(Formats, format)
}

// ExtensionAllowed checks the trailing extension of a filename against the
// supported media types. A filename without an extension is rejected.
func ExtensionAllowed(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return false
	}

	return contains(AllowedExtensions, strings.ToLower(filename[idx+1:]))
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}

	return false
}
