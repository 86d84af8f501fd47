package msg

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Broker is a subscribed connection to one topic
type Broker interface {
	// Poll blocks until records are available, ctx is done, or the fetch fails.
	// Records are returned in partition order.
	Poll(ctx context.Context) ([]Record, error)
	// Commit marks rec as processed for the consumer group
	Commit(ctx context.Context, rec Record) error
	// AllowRebalance releases the group rebalance held since the last Poll
	AllowRebalance()
	Close()
}

// Dialer connects and subscribes a Broker
type Dialer func(ctx context.Context) (Broker, error)

// KafkaBroker is a Broker backed by a franz-go client
type KafkaBroker struct {
	client *kgo.Client
	logger *zap.Logger
}

// KafkaDialer returns a Dialer that subscribes cfg.Topic for cfg.GroupID.
// Auto commit is disabled: offsets move only through Commit.
func KafkaDialer(cfg KafkaConfig, logger *zap.Logger) Dialer {
	return func(ctx context.Context) (Broker, error) {
		opts := []kgo.Opt{
			kgo.SeedBrokers(cfg.Brokers...),
			kgo.ConsumerGroup(cfg.GroupID),
			kgo.ConsumeTopics(cfg.Topic),
			kgo.DisableAutoCommit(),
			kgo.BlockRebalanceOnPoll(),
			kgo.ConsumeResetOffset(resetOffset(cfg.StartPosition)),
		}
		if cfg.ClientID != "" {
			opts = append(opts, kgo.ClientID(cfg.ClientID))
		}

		client, err := kgo.NewClient(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka client: %w", err)
		}

		if err := client.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: %w", ErrConnection, err)
		}

		logger.Info("consumer initialized",
			zap.Strings("brokers", cfg.Brokers),
			zap.String("group", cfg.GroupID),
			zap.String("topic", cfg.Topic),
			zap.String("start_position", string(cfg.StartPosition)),
		)

		return &KafkaBroker{client: client, logger: logger}, nil
	}
}

func resetOffset(pos StartPosition) kgo.Offset {
	if pos == StartCommitted {
		return kgo.NewOffset().AtEnd()
	}
	return kgo.NewOffset().AtStart()
}

// Poll implements Broker
func (b *KafkaBroker) Poll(ctx context.Context) ([]Record, error) {
	fetches := b.client.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, fmt.Errorf("%w: kafka client closed", ErrConnection)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var errs []error
	fetches.EachError(func(topic string, partition int32, err error) {
		b.logger.Warn("fetch error",
			zap.String("topic", topic),
			zap.Int32("partition", partition),
			zap.Error(err),
		)
		errs = append(errs, err)
	})

	records := make([]Record, 0, fetches.NumRecords())
	fetches.EachRecord(func(r *kgo.Record) {
		records = append(records, recordFromKgo(r))
	})

	if len(records) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("failed to fetch: %w", errors.Join(errs...))
	}
	return records, nil
}

// Commit implements Broker
func (b *KafkaBroker) Commit(ctx context.Context, rec Record) error {
	if rec.raw == nil {
		return fmt.Errorf("record %s/%d@%d was not fetched by this client", rec.Topic, rec.Partition, rec.Offset)
	}
	if err := b.client.CommitRecords(ctx, rec.raw); err != nil {
		return fmt.Errorf("failed to commit offset: %w", err)
	}
	return nil
}

// AllowRebalance implements Broker
func (b *KafkaBroker) AllowRebalance() {
	b.client.AllowRebalance()
}

// Close leaves the group and closes the client
func (b *KafkaBroker) Close() {
	if b.client != nil {
		b.client.AllowRebalance()
		b.client.Close()
	}
}
