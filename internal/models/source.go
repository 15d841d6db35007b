// ABOUTME: Source model representing a subscribed feed with HTTP caching validators
// ABOUTME: Carries the refresh ledger: last/next refresh times, retry count, last error

package models

import (
	"fmt"
	"time"
)

// UpdateMode controls how often a source is refreshed automatically.
type UpdateMode string

const (
	// ModeManual sources are never picked up by the due query.
	ModeManual UpdateMode = "manual"
	// ModeFrequent refreshes roughly every half hour.
	ModeFrequent UpdateMode = "frequent"
	// ModeHourly is the default cadence.
	ModeHourly UpdateMode = "hourly"
	// ModeDaily refreshes once a day.
	ModeDaily UpdateMode = "daily"
)

// ParseUpdateMode validates a mode string, defaulting empty to hourly.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch UpdateMode(s) {
	case ModeManual, ModeFrequent, ModeHourly, ModeDaily:
		return UpdateMode(s), nil
	case "":
		return ModeHourly, nil
	}
	return "", fmt.Errorf("unknown update mode: %q", s)
}

// Source represents a subscribed feed.
//
// ETag and LastModified are opaque validators taken from response headers of a
// prior successful fetch; they make the next fetch conditional. RetryCount is
// the number of consecutive failures since the last success.
type Source struct {
	ID           int64      `db:"id"`            // Opaque numeric identifier
	URL          string     `db:"url"`           // Fetch URL
	Title        *string    `db:"title"`         // Feed title (from feed metadata)
	Link         *string    `db:"link"`          // Feed site link (from feed metadata)
	Language     *string    `db:"language"`      // Feed language (from feed metadata)
	Mode         UpdateMode `db:"mode"`          // Refresh cadence policy
	ETag         *string    `db:"etag"`          // For If-None-Match
	LastModified *string    `db:"last_modified"` // For If-Modified-Since
	RefreshedAt  *time.Time `db:"refreshed_at"`  // Last successful refresh
	LastError    *string    `db:"last_error"`    // Last failure message, nil after success
	NextDueAt    *time.Time `db:"next_due_at"`   // Next scheduled refresh, nil = due now
	RetryCount   int        `db:"retry_count"`   // Consecutive failures since last success
	CreatedAt    time.Time  `db:"created_at"`
}

// NewSource creates a Source for the given URL with the default cadence.
func NewSource(url string) *Source {
	return &Source{
		URL:       url,
		Mode:      ModeHourly,
		CreatedAt: time.Now(),
	}
}

// DisplayName returns the title when known, the URL otherwise.
func (s *Source) DisplayName() string {
	if s.Title != nil && *s.Title != "" {
		return *s.Title
	}
	return s.URL
}
