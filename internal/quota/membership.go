package quota

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Membership is the privileged-tier member list. An entry with no expiry is
// permanent; an entry whose expiry has passed no longer counts.
type Membership struct {
	// expiries maps a lowercased identity to its subscription end; a nil
	// value means no expiry.
	expiries map[string]*time.Time
}

const expiryLayout = "2006-01-02"

// NewMembership builds a membership list directly; identities are matched
// case-insensitively.
func NewMembership(entries map[string]*time.Time) *Membership {
	m := &Membership{expiries: make(map[string]*time.Time, len(entries))}
	for identity, expiry := range entries {
		m.expiries[strings.ToLower(identity)] = expiry
	}

	return m
}

// LoadMembership reads a CSV member list with an "email" column and an
// optional "subscription_end_date" column (YYYY-MM-DD).
func LoadMembership(path string) (*Membership, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open membership file: %w", err)
	}
	defer f.Close()

	return ParseMembership(f)
}

func ParseMembership(r io.Reader) (*Membership, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return NewMembership(nil), nil
		}
		return nil, fmt.Errorf("read membership header: %w", err)
	}

	emailCol, expiryCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "email":
			emailCol = i
		case "subscription_end_date":
			expiryCol = i
		}
	}
	if emailCol < 0 {
		return nil, fmt.Errorf("membership file has no email column")
	}

	entries := make(map[string]*time.Time)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read membership record: %w", err)
		}
		if emailCol >= len(record) {
			continue
		}

		email := strings.TrimSpace(record[emailCol])
		if email == "" {
			continue
		}

		var expiry *time.Time
		if expiryCol >= 0 && expiryCol < len(record) {
			raw := strings.TrimSpace(record[expiryCol])
			if raw != "" {
				parsed, err := time.ParseInLocation(expiryLayout, raw, time.Local)
				if err != nil {
					return nil, fmt.Errorf("parse expiry for %s: %w", email, err)
				}
				expiry = &parsed
			}
		}

		entries[email] = expiry
	}

	return NewMembership(entries), nil
}

// IsPrivileged reports whether the identity is a current member at the
// given instant.
func (m *Membership) IsPrivileged(identity string, now time.Time) bool {
	if m == nil || identity == "" {
		return false
	}

	expiry, ok := m.expiries[strings.ToLower(identity)]
	if !ok {
		return false
	}
	if expiry == nil {
		return true
	}

	return expiry.After(now)
}
