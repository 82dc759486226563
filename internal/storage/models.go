package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// IndexRun records one indexing pass that changed the store.
type IndexRun struct {
	ID         string
	Root       string
	StartedAt  time.Time
	FinishedAt time.Time
	Indexed    int
	Skipped    int
	Failed     int
	Records    int
}
