package msg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ismaiel54/event-sink/internal/observability"
	"go.uber.org/zap"
)

var (
	// ErrConnection is returned when the broker stays unreachable after all attempts
	ErrConnection = errors.New("broker connection failed")
	// ErrStopped is returned by Start once the consumer has been stopped
	ErrStopped = errors.New("consumer stopped")

	errStopRequested = errors.New("stop requested")
)

// State is the consumer lifecycle state
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateConsuming
	StateRetrying
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateConsuming:
		return "consuming"
	case StateRetrying:
		return "retrying"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Persister turns one consumed record into a durable record and returns its id
type Persister interface {
	Persist(ctx context.Context, rec Record) (string, error)
}

// StreamConsumer pulls records from one subscription and persists them one at
// a time. An offset is committed only after its record has been persisted.
type StreamConsumer struct {
	cfg       ConsumerConfig
	dial      Dialer
	persister Persister
	logger    *zap.Logger

	mu      sync.Mutex
	broker  Broker
	started bool
	err     error

	state     atomic.Int32
	processed atomic.Int64
	skipped   atomic.Int64
	errCount  atomic.Int64

	// stopCtx is cancelled by Stop; it aborts polls and retry waits but never
	// an in-flight persist or commit.
	stopCtx    context.Context
	cancelStop context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
}

// NewStreamConsumer creates a consumer in the Disconnected state
func NewStreamConsumer(cfg ConsumerConfig, dial Dialer, persister Persister, logger *zap.Logger) *StreamConsumer {
	stopCtx, cancel := context.WithCancel(context.Background())
	c := &StreamConsumer{
		cfg:        cfg,
		dial:       dial,
		persister:  persister,
		logger:     logger,
		stopCtx:    stopCtx,
		cancelStop: cancel,
		done:       make(chan struct{}),
	}
	c.setState(StateDisconnected)
	return c
}

// Start connects with exponential backoff and starts the pull loop.
// ctx bounds the connection phase only; the loop runs until Stop or a fatal error.
func (c *StreamConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopCtx.Err() != nil {
		return ErrStopped
	}
	if c.started {
		return fmt.Errorf("consumer already started")
	}

	c.setState(StateConnecting)
	c.logger.Info("connecting to broker",
		zap.String("group", c.cfg.GroupID),
		zap.String("topic", c.cfg.Topic),
	)

	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopWatch := context.AfterFunc(c.stopCtx, cancel)
	defer stopWatch()

	broker, err := c.connect(connectCtx)
	if c.stopCtx.Err() != nil {
		if broker != nil {
			broker.Close()
		}
		return ErrStopped
	}
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.broker = broker
	c.started = true
	c.setState(StateSubscribed)
	c.logger.Info("starting consumer",
		zap.String("group", c.cfg.GroupID),
		zap.String("topic", c.cfg.Topic),
	)

	workCtx := context.WithoutCancel(ctx)
	go c.run(workCtx)
	if c.cfg.StatsInterval > 0 {
		go c.logStats()
	}

	return nil
}

// Stop stops polling, waits for the record being persisted to finish and be
// committed, then closes the broker connection. Stopped is terminal.
func (c *StreamConsumer) Stop(ctx context.Context) error {
	c.cancelStop()

	c.mu.Lock()
	started := c.started
	broker := c.broker
	c.mu.Unlock()

	if started {
		select {
		case <-c.done:
		case <-ctx.Done():
			return fmt.Errorf("failed to drain consumer: %w", ctx.Err())
		}
		c.closeOnce.Do(broker.Close)
	}

	c.setState(StateStopped)
	c.logger.Info("consumer stopped",
		zap.String("group", c.cfg.GroupID),
		zap.Int64("processed", c.processed.Load()),
		zap.Int64("skipped", c.skipped.Load()),
	)
	return nil
}

// Done is closed when the pull loop exits
func (c *StreamConsumer) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that terminated the pull loop, or nil after a clean stop
func (c *StreamConsumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// State returns the current lifecycle state
func (c *StreamConsumer) State() State {
	return State(c.state.Load())
}

// Healthy is a readiness check: it fails unless the consumer is subscribed
// and not backing off on a failing write.
func (c *StreamConsumer) Healthy(ctx context.Context) error {
	switch s := c.State(); s {
	case StateSubscribed, StateConsuming:
		return nil
	default:
		return fmt.Errorf("consumer %s", s)
	}
}

// IsRunning returns whether the pull loop is active
func (c *StreamConsumer) IsRunning() bool {
	s := c.State()
	return s == StateSubscribed || s == StateConsuming || s == StateRetrying
}

func (c *StreamConsumer) setState(s State) {
	c.state.Store(int32(s))
	observability.ConsumerState.Set(float64(s))
}

func (c *StreamConsumer) stopping() bool {
	return c.stopCtx.Err() != nil
}

func (c *StreamConsumer) connect(ctx context.Context) (Broker, error) {
	var broker Broker
	attempt := 0

	op := func() error {
		attempt++
		b, err := c.dial(ctx)
		if err != nil {
			return err
		}
		broker = b
		return nil
	}
	notify := func(err error, next time.Duration) {
		observability.ConsumerRetriesTotal.WithLabelValues("connect").Inc()
		c.logger.Warn("broker connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, newBackoff(ctx, c.cfg.Connect), notify); err != nil {
		if errors.Is(err, ErrConnection) {
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnection, attempt, err)
	}
	return broker, nil
}

func (c *StreamConsumer) run(workCtx context.Context) {
	err := c.consume(workCtx)
	if err != nil {
		c.setState(StateDisconnected)
		c.logger.Error("consumer failed", zap.Error(err))
	}

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.done)
}

func (c *StreamConsumer) consume(workCtx context.Context) error {
	c.setState(StateConsuming)

	pollBackoff := newExponential(c.cfg.Connect)
	pollFailures := 0

	for {
		if c.stopping() {
			return nil
		}

		records, err := c.broker.Poll(c.stopCtx)
		if err != nil {
			if c.stopping() {
				return nil
			}
			pollFailures++
			if c.cfg.Connect.MaxAttempts > 0 && pollFailures >= c.cfg.Connect.MaxAttempts {
				return fmt.Errorf("%w: poll failed %d times: %w", ErrConnection, pollFailures, err)
			}

			c.setState(StateRetrying)
			wait := pollBackoff.NextBackOff()
			observability.ConsumerRetriesTotal.WithLabelValues("poll").Inc()
			c.logger.Warn("poll failed, retrying",
				zap.Int("attempt", pollFailures),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
			if !c.sleep(wait) {
				return nil
			}
			continue
		}
		if pollFailures > 0 {
			pollFailures = 0
			pollBackoff.Reset()
			c.setState(StateConsuming)
		}

		for _, rec := range records {
			if c.stopping() {
				break
			}
			if err := c.process(workCtx, rec); err != nil {
				if errors.Is(err, errStopRequested) {
					break
				}
				c.broker.AllowRebalance()
				return err
			}
		}
		c.broker.AllowRebalance()
	}
}

// process persists rec and commits its offset. Records skipped by the
// validation policy are committed without a write.
func (c *StreamConsumer) process(ctx context.Context, rec Record) error {
	id, err := c.persistWithRetry(ctx, rec)
	if err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		if c.cfg.ValidationPolicy == ValidationFatal {
			observability.ConsumerRecordsTotal.WithLabelValues("invalid").Inc()
			return err
		}

		c.skipped.Add(1)
		observability.ConsumerRecordsTotal.WithLabelValues("skipped").Inc()
		c.logger.Warn("skipping undecodable record",
			zap.String("topic", rec.Topic),
			zap.Int32("partition", rec.Partition),
			zap.Int64("offset", rec.Offset),
			zap.String("key", rec.Key),
			zap.Error(err),
		)
		c.commit(ctx, rec)
		return nil
	}

	c.commit(ctx, rec)
	c.processed.Add(1)
	observability.ConsumerRecordsTotal.WithLabelValues("persisted").Inc()
	c.logger.Debug("record persisted",
		zap.String("id", id),
		zap.String("topic", rec.Topic),
		zap.Int32("partition", rec.Partition),
		zap.Int64("offset", rec.Offset),
		zap.String("key", rec.Key),
	)
	return nil
}

// persistWithRetry calls the persister with bounded exponential backoff.
// Validation errors are not retried. A stop during a backoff wait abandons
// the record uncommitted so it is redelivered.
func (c *StreamConsumer) persistWithRetry(ctx context.Context, rec Record) (string, error) {
	var id string
	attempt := 0

	op := func() error {
		attempt++
		var err error
		id, err = c.persister.Persist(ctx, rec)
		var verr *ValidationError
		if errors.As(err, &verr) || (err != nil && ctx.Err() != nil) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		c.errCount.Add(1)
		c.setState(StateRetrying)
		observability.ConsumerRetriesTotal.WithLabelValues("persist").Inc()
		c.logger.Warn("persist failed, retrying",
			zap.String("topic", rec.Topic),
			zap.Int32("partition", rec.Partition),
			zap.Int64("offset", rec.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, newBackoff(c.stopCtx, c.cfg.Persist), notify)
	if c.State() == StateRetrying {
		c.setState(StateConsuming)
	}
	if err == nil {
		return id, nil
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return "", err
	}
	if c.stopping() {
		c.logger.Info("stop requested while retrying, record left uncommitted",
			zap.String("topic", rec.Topic),
			zap.Int32("partition", rec.Partition),
			zap.Int64("offset", rec.Offset),
		)
		return "", errStopRequested
	}
	return "", fmt.Errorf("failed to persist %s/%d@%d after %d attempts: %w",
		rec.Topic, rec.Partition, rec.Offset, attempt, err)
}

// commit is best effort: the record is already durable and a later commit
// supersedes a lost one.
func (c *StreamConsumer) commit(ctx context.Context, rec Record) {
	commitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.broker.Commit(commitCtx, rec); err != nil {
		c.errCount.Add(1)
		observability.ConsumerCommitErrors.Inc()
		c.logger.Warn("offset commit failed",
			zap.String("topic", rec.Topic),
			zap.Int32("partition", rec.Partition),
			zap.Int64("offset", rec.Offset),
			zap.Error(err),
		)
	}
}

func (c *StreamConsumer) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.stopCtx.Done():
		return false
	case <-t.C:
		return true
	}
}

// logStats logs consumer statistics periodically
func (c *StreamConsumer) logStats() {
	ticker := time.NewTicker(c.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.logger.Info("consumer stats",
				zap.String("group", c.cfg.GroupID),
				zap.String("state", c.State().String()),
				zap.Int64("processed", c.processed.Load()),
				zap.Int64("skipped", c.skipped.Load()),
				zap.Int64("errors", c.errCount.Load()),
			)
		}
	}
}

func newExponential(cfg Backoff) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func newBackoff(ctx context.Context, cfg Backoff) backoff.BackOff {
	var b backoff.BackOff = newExponential(cfg)
	if cfg.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(cfg.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}
