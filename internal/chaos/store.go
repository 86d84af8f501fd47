package chaos

import (
	"context"
	"errors"
	"fmt"

	"github.com/ismaiel54/event-sink/internal/store"
)

// Store operation names accepted in Config.Ops
const (
	OpInsert = "insert"
	OpList   = "list"
)

// ErrInjected is the cause attached to dropped store calls
var ErrInjected = errors.New("chaos: injected failure")

// Store wraps a store.Store and injects delays and failures before each call.
// Dropped calls fail with store.ErrUnavailable without reaching the store.
type Store struct {
	store.Store
	chaos *Chaos
}

// WrapStore decorates s with c
func WrapStore(s store.Store, c *Chaos) *Store {
	return &Store{Store: s, chaos: c}
}

// InsertOrGetExisting implements store.Writer
func (s *Store) InsertOrGetExisting(ctx context.Context, rec store.Record) (string, bool, error) {
	if err := s.inject(ctx, OpInsert); err != nil {
		return "", false, err
	}
	return s.Store.InsertOrGetExisting(ctx, rec)
}

// ListRecent implements store.Reader
func (s *Store) ListRecent(ctx context.Context, limit int) ([]store.Record, error) {
	if err := s.inject(ctx, OpList); err != nil {
		return nil, err
	}
	return s.Store.ListRecent(ctx, limit)
}

func (s *Store) inject(ctx context.Context, op string) error {
	if err := s.chaos.MaybeDelay(ctx, op); err != nil {
		return fmt.Errorf("failed to %s: %w: %w", op, store.ErrUnavailable, err)
	}
	if s.chaos.MaybeDrop(op) {
		return fmt.Errorf("failed to %s: %w: %w", op, store.ErrUnavailable, ErrInjected)
	}
	return nil
}
