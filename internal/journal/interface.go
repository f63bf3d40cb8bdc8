package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Recorder keeps an audit trail of check runs. Entries are only ever
// written; nothing reads them back to influence a later run.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	Close() error
}

// Repository defines the interface for journal storage
type Repository interface {
	Insert(ctx context.Context, entry *Entry) error
	Close() error
}

// Entry is one check run
type Entry struct {
	RunID     uuid.UUID
	CheckedAt time.Time
	Host      string
	Status    string
	Message   string
	ErrorCode string

	// Optional values, nil when the run did not get that far
	GraphPercent *float64
	UsedMbps     *int
	LicensedMbps *int
	AgeMinutes   *int
}
