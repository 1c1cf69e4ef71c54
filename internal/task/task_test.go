package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	params := Params{
		SourceLanguage: "en",
		TargetLanguage: "same",
		ModelTier:      "base",
		Format:         "srt",
	}

	tsk := NewTask("session-1", "movie.mp4", params)

	assert.NotEmpty(t, tsk.ID)
	assert.Equal(t, "session-1", tsk.OwnerKey)
	assert.Equal(t, StatusPending, tsk.Status)
	assert.Equal(t, "movie.mp4", tsk.OriginalFilename)
	assert.Equal(t, params, tsk.Params)
	assert.WithinDuration(t, time.Now(), tsk.CreatedAt, time.Second)
	assert.Nil(t, tsk.CompletedAt)
	assert.Empty(t, tsk.OutputFileID)
	assert.Empty(t, tsk.Message)
}

func TestNewTaskUniqueIDs(t *testing.T) {
	a := NewTask("s", "a.mp3", Params{})
	b := NewTask("s", "b.mp3", Params{})

	assert.NotEqual(t, a.ID, b.ID)
}

func TestTaskJSONRoundTrip(t *testing.T) {
	completed := time.Now().Round(time.Second)
	tsk := NewTask("session-2", "talk.wav", Params{ModelTier: "small", Format: "vtt"})
	tsk.Status = StatusCompleted
	tsk.OutputFileID = "abc123"
	tsk.OutputLink = "https://gofile.io/d/abc123"
	tsk.OutputFilename = "talk.vtt"
	tsk.CompletedAt = &completed

	data, err := tsk.ToJSON()
	require.NoError(t, err)

	decoded, err := TaskFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, tsk.ID, decoded.ID)
	assert.Equal(t, StatusCompleted, decoded.Status)
	assert.Equal(t, "abc123", decoded.OutputFileID)
	assert.Equal(t, "talk.vtt", decoded.OutputFilename)
	require.NotNil(t, decoded.CompletedAt)
	assert.True(t, completed.Equal(*decoded.CompletedAt))
}

func TestTaskFromJSONInvalid(t *testing.T) {
	_, err := TaskFromJSON("not json")
	assert.Error(t, err)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestValidModelTier(t *testing.T) {
	assert.True(t, ValidModelTier("base"))
	assert.True(t, ValidModelTier("large"))
	assert.False(t, ValidModelTier("turbo"))
	assert.False(t, ValidModelTier(""))
}

func TestValidFormat(t *testing.T) {
	assert.True(t, ValidFormat("srt"))
	assert.True(t, ValidFormat("vtt"))
	assert.False(t, ValidFormat("ass"))
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		filename string
		allowed  bool
	}{
		{"video.mp4", true},
		{"AUDIO.MP3", true},
		{"clip.mkv", true},
		{"notes.txt", false},
		{"archive.tar.gz", false},
		{"noextension", false},
		{"trailing.", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.allowed, ExtensionAllowed(tt.filename))
		})
	}
}
