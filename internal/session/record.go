package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// ErrNoDataset is returned when a session exists but has no dataset attached.
var ErrNoDataset = errors.New("no dataset attached to session")

// Record is the metadata document held per session id. Meta is free-form:
// upload and preprocessing collaborators merge fields into it (filename,
// rows, columns, column_names, dtypes, preprocessing_steps).
type Record struct {
	ID        string         `json:"session_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	HasData   bool           `json:"has_data"`
	Meta      map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether the record's rolling deadline has passed. A zero
// ExpiresAt means no deadline.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// clone returns a deep-enough copy: Meta is copied one level so callers can
// merge without aliasing the stored map.
func (r Record) clone() Record {
	if r.Meta != nil {
		m := make(map[string]any, len(r.Meta))
		for k, v := range r.Meta {
			m[k] = v
		}
		r.Meta = m
	}
	return r
}
