package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRecord marks a record that can never be stored as given
var ErrInvalidRecord = errors.New("invalid record")

// SchemaVersion is the version of the record layout written by this build.
// Changing the field set requires a new numbered migration.
const SchemaVersion = 1

// SourceOffset identifies the broker message a record was built from
type SourceOffset struct {
	Topic     string
	Partition int32
	Offset    int64
}

func (s SourceOffset) String() string {
	return fmt.Sprintf("%s/%d@%d", s.Topic, s.Partition, s.Offset)
}

// Record is a persisted event. Records are never updated after insert.
type Record struct {
	ID            string
	SchemaVersion int
	Value         string
	CreatedAt     time.Time
	Source        SourceOffset
}

func (r Record) validate() error {
	if r.Source.Topic == "" {
		return fmt.Errorf("%w: source topic is empty", ErrInvalidRecord)
	}
	if r.Source.Offset < 0 {
		return fmt.Errorf("%w: source offset %d is negative", ErrInvalidRecord, r.Source.Offset)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at is not set", ErrInvalidRecord)
	}
	return nil
}

func schemaVersionOf(r Record) int {
	if r.SchemaVersion == 0 {
		return SchemaVersion
	}
	return r.SchemaVersion
}
