// ABOUTME: Entry model representing a single feed item owned by one source
// ABOUTME: Deduplicated by the (source id, uid) natural key

package models

import (
	"time"

	"github.com/google/uuid"
)

// Entry represents a single item in a feed.
//
// For a given source there is at most one Entry per UID. InsertedAt is set
// once when the row is first created; UpdatedAt is refreshed every time the
// entry is seen in a parse, even with identical content.
type Entry struct {
	ID           string     `db:"id"`
	SourceID     int64      `db:"source_id"`
	UID          string     `db:"uid"`
	Title        *string    `db:"title"`
	Link         *string    `db:"link"`
	Author       *string    `db:"author"`
	Content      *string    `db:"content"`
	PublishedAt  *time.Time `db:"published_at"`
	PublishedRaw *string    `db:"published_raw"` // Publish time as it appeared in the document
	InsertedAt   time.Time  `db:"inserted_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// NewEntry creates an Entry with a generated ID and both timestamps set to now.
func NewEntry(sourceID int64, uid string) *Entry {
	now := time.Now()
	return &Entry{
		ID:         uuid.New().String(),
		SourceID:   sourceID,
		UID:        uid,
		InsertedAt: now,
		UpdatedAt:  now,
	}
}
