package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/ismaiel54/event-sink/internal/observability"
	"github.com/ismaiel54/event-sink/internal/store"
	"go.uber.org/zap"
)

// Default page sizes
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// ErrQuery marks a failed read
var ErrQuery = errors.New("query failed")

// Cache is a generation-keyed page cache
type Cache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, gen int64, limit int) ([]store.Record, bool, error)
	Set(ctx context.Context, gen int64, limit int, records []store.Record) error
}

// Option configures a Service
type Option func(*Service)

// WithCache serves repeated reads from cache
func WithCache(cache Cache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithLimits overrides the default and maximum page size
func WithLimits(def, max int) Option {
	return func(s *Service) {
		if def > 0 {
			s.defaultLimit = def
		}
		if max > 0 {
			s.maxLimit = max
		}
	}
}

// Service answers "most recent records" queries
type Service struct {
	reader       store.Reader
	logger       *zap.Logger
	cache        Cache
	defaultLimit int
	maxLimit     int
}

// NewService creates a Service reading from reader
func NewService(reader store.Reader, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		reader:       reader,
		logger:       logger,
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
	return s
}

// ListRecent returns up to limit records, newest first. A non-positive limit
// uses the default page size; larger limits are clamped. The result is never nil.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]store.Record, error) {
	limit = s.clamp(limit)

	var gen int64
	cacheable := false
	if s.cache != nil {
		g, err := s.cache.Generation(ctx)
		if err != nil {
			observability.QueryCacheTotal.WithLabelValues("error").Inc()
			s.logger.Warn("cache unavailable, reading from store", zap.Error(err))
		} else {
			gen, cacheable = g, true
			records, ok, err := s.cache.Get(ctx, gen, limit)
			switch {
			case err != nil:
				observability.QueryCacheTotal.WithLabelValues("error").Inc()
				s.logger.Warn("cache read failed, reading from store", zap.Error(err))
			case ok:
				observability.QueryCacheTotal.WithLabelValues("hit").Inc()
				observability.QueryTotal.WithLabelValues("ok").Inc()
				return records, nil
			default:
				observability.QueryCacheTotal.WithLabelValues("miss").Inc()
			}
		}
	}

	records, err := s.reader.ListRecent(ctx, limit)
	if err != nil {
		observability.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	if records == nil {
		records = []store.Record{}
	}

	if cacheable {
		if err := s.cache.Set(ctx, gen, limit, records); err != nil {
			s.logger.Warn("failed to populate cache", zap.Error(err))
		}
	}

	observability.QueryTotal.WithLabelValues("ok").Inc()
	return records, nil
}

func (s *Service) clamp(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}
