package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ismaiel54/event-sink/internal/msg"
	"github.com/ismaiel54/event-sink/internal/observability"
	"github.com/ismaiel54/event-sink/internal/store"
	"go.uber.org/zap"
)

// Invalidator is told when a record becomes visible to readers
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Option configures a Persister
type Option func(*Persister)

// WithClock replaces the wall clock used for ingestion timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Persister) { p.now = now }
}

// WithInvalidator registers a cache to invalidate after each write
func WithInvalidator(inv Invalidator) Option {
	return func(p *Persister) { p.invalidator = inv }
}

// Persister converts consumed messages into stored records
type Persister struct {
	store       store.Writer
	logger      *zap.Logger
	now         func() time.Time
	invalidator Invalidator

	mu   sync.Mutex
	last time.Time
}

// New creates a Persister writing to w
func New(w store.Writer, logger *zap.Logger, opts ...Option) *Persister {
	p := &Persister{
		store:  w,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Persist stores rec and returns the record id. A message that was already
// stored returns its original id and is not written again.
func (p *Persister) Persist(ctx context.Context, rec msg.Record) (string, error) {
	value, err := msg.Decode(rec)
	if err != nil {
		observability.PersistTotal.WithLabelValues("invalid").Inc()
		return "", err
	}

	record := store.Record{
		SchemaVersion: store.SchemaVersion,
		Value:         value,
		CreatedAt:     p.timestamp(),
		Source: store.SourceOffset{
			Topic:     rec.Topic,
			Partition: rec.Partition,
			Offset:    rec.Offset,
		},
	}

	start := time.Now()
	id, created, err := p.store.InsertOrGetExisting(ctx, record)
	observability.PersistDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.PersistTotal.WithLabelValues("error").Inc()
		switch {
		case errors.Is(err, store.ErrInvalidRecord):
			return "", &msg.ValidationError{
				Topic: rec.Topic, Partition: rec.Partition, Offset: rec.Offset,
				Reason: err.Error(), Err: err,
			}
		case errors.Is(err, store.ErrUnavailable):
			return "", err
		default:
			return "", fmt.Errorf("failed to persist %s: %w", record.Source, err)
		}
	}

	if created {
		observability.PersistTotal.WithLabelValues("created").Inc()
	} else {
		observability.PersistTotal.WithLabelValues("duplicate").Inc()
		p.logger.Info("duplicate message, returning existing record",
			zap.String("id", id),
			zap.String("source", record.Source.String()),
			zap.String("key", rec.Key),
		)
	}

	// A redelivery also invalidates: the first delivery may have been stored
	// while the cache was unreachable.
	if p.invalidator != nil {
		if err := p.invalidator.Invalidate(ctx); err != nil {
			observability.PersistTotal.WithLabelValues("invalidate_error").Inc()
			return "", fmt.Errorf("failed to invalidate read cache after %s: %w: %w",
				record.Source, store.ErrUnavailable, err)
		}
	}
	return id, nil
}

// timestamp returns the ingestion time at millisecond precision, never
// earlier than the previous one handed out.
func (p *Persister) timestamp() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.now().UTC().Truncate(time.Millisecond)
	if t.Before(p.last) {
		t = p.last
	}
	p.last = t
	return t
}
