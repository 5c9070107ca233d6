package store

import (
	"errors"
	"time"

	"xpost/internal/content"
)

// ErrNotFound reports an unknown draft or schedule id. For Claim it also
// covers "already claimed", which callers treat as a no-op skip.
var ErrNotFound = errors.New("not found")

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Draft is a stored, not-yet-published content unit. The payload is
// immutable once created.
type Draft struct {
	ID        string
	Unit      content.ContentUnit
	CreatedAt time.Time
}

// ScheduledItem is a content unit bound to a future trigger time.
// PublishedCount/CurrentIndex carry recurring-series progress and stay zero
// for every other variant.
type ScheduledItem struct {
	ID             string
	Unit           content.ContentUnit
	DueAt          time.Time
	CreatedAt      time.Time
	PublishedCount int
	CurrentIndex   int
}

// FailedItem is a ScheduledItem moved verbatim into the failed holding area,
// plus when and why it failed.
type FailedItem struct {
	ScheduledItem
	FailedAt time.Time
	Reason   string
}
