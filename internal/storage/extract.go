package storage

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Vicentaelm/SubtitleMaster/internal/metrics"
)

// idPattern is what a provider file ID looks like: alphanumeric with a
// minimum length, used by the structural fallback scan.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9]{6,}$`)

// idExtractor attempts to pull a file ID out of an upload response payload.
// Extractors run in priority order and the first hit wins.
type idExtractor func(data map[string]any) (string, bool)

var idExtractors = []idExtractor{
	stringField("fileId"),
	stringField("id"),
	nestedFileID,
	stringField("code"),
	stringField("contentId"),
}

func stringField(name string) idExtractor {
	return func(data map[string]any) (string, bool) {
		v, ok := data[name].(string)
		return v, ok && v != ""
	}
}

func nestedFileID(data map[string]any) (string, bool) {
	file, ok := data["file"].(map[string]any)
	if !ok {
		return "", false
	}

	for _, name := range []string{"id", "code"} {
		if v, ok := file[name].(string); ok && v != "" {
			return v, true
		}
	}

	return "", false
}

// scanForID is the structural last resort: inspect every top-level string
// field in sorted key order and accept the first identifier-shaped value.
// Name-like fields are skipped since a plain filename can look like an ID.
func scanForID(data map[string]any) (string, bool) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "fileName" || k == "name" || k == "status" {
			continue
		}
		if v, ok := data[k].(string); ok && idPattern.MatchString(v) {
			return v, true
		}
	}

	return "", false
}

// handleFromUpload builds a Handle from an upload response, searching a
// prioritized list of field names for the file ID because providers rename
// fields across versions. When nothing usable is found a placeholder ID is
// synthesized so the pipeline can still proceed.
func (c *Client) handleFromUpload(data map[string]any, filename string) *Handle {
	h := &Handle{Filename: filename, Resolved: true}

	if name, ok := data["fileName"].(string); ok && name != "" {
		h.Filename = name
	}
	if page, ok := data["downloadPage"].(string); ok && page != "" {
		h.Link = page
	}

	for _, extract := range idExtractors {
		if id, ok := extract(data); ok {
			h.FileID = id
			break
		}
	}

	if h.FileID == "" {
		if id, ok := scanForID(data); ok {
			metrics.StorageHeuristicExtractions.Inc()
			log.Printf("No known file ID field in upload response, heuristic scan matched %q", id)
			h.FileID = id
		}
	}

	if h.FileID == "" && h.Link != "" {
		h.FileID = trailingSegment(h.Link)
		log.Printf("Derived file ID %q from download link", h.FileID)
	}

	if h.FileID == "" {
		metrics.StorageHeuristicExtractions.Inc()
		h.FileID = uuid.New().String()
		h.Resolved = false
		log.Printf("Upload response contained no usable file ID, synthesized placeholder %s", h.FileID)
	}

	if h.Link == "" {
		h.Link = fmt.Sprintf(c.linkTemplate, h.FileID)
	}

	return h
}

func trailingSegment(link string) string {
	trimmed := strings.TrimRight(link, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// isSynthesizedID recognizes locally generated placeholder IDs by shape:
// they are UUIDs, which are longer than anything the provider hands out.
func isSynthesizedID(fileID string) bool {
	_, err := uuid.Parse(fileID)
	return err == nil
}
