package queue

import (
	"encoding/json"
	"fmt"
)

func marshalEntry(entry StatusEntry) (string, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal status entry: %w", err)
	}

	return string(data), nil
}

func unmarshalEntry(data string) (*StatusEntry, error) {
	var entry StatusEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status entry: %w", err)
	}

	return &entry, nil
}
