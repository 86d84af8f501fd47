package it

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ismaiel54/event-sink/internal/msg"
	"github.com/ismaiel54/event-sink/internal/persist"
	"github.com/ismaiel54/event-sink/internal/query"
	"github.com/ismaiel54/event-sink/internal/store"
	"github.com/ismaiel54/event-sink/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// requireBroker skips unless INTEGRATION is set and a broker answers on KAFKA_BROKERS
func requireBroker(t *testing.T) []string {
	t.Helper()
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("skipping integration test; set INTEGRATION=1 to run")
	}

	brokers := msg.ParseBrokers(os.Getenv("KAFKA_BROKERS"))
	if len(brokers) == 0 {
		brokers = []string{"127.0.0.1:9092"}
	}
	conn, err := net.DialTimeout("tcp", brokers[0], 2*time.Second)
	if err != nil {
		t.Skipf("kafka not reachable at %s, skipping test", brokers[0])
	}
	conn.Close()
	return brokers
}

func startPipeline(t *testing.T, s *store.SQLiteStore, kafka msg.KafkaConfig, logger *zap.Logger) *msg.StreamConsumer {
	t.Helper()
	cfg := msg.DefaultConsumerConfig(kafka.Topic, kafka.GroupID)
	cfg.StatsInterval = 0

	c := msg.NewStreamConsumer(cfg, msg.KafkaDialer(kafka, logger), persist.New(s, logger), logger)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, c.Start(ctx))
	return c
}

func stopPipeline(t *testing.T, c *msg.StreamConsumer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
}

func produce(t *testing.T, p *msg.Producer, topic string, values ...string) {
	t.Helper()
	for _, v := range values {
		_, _, err := p.Produce(context.Background(), topic, "", []byte(v))
		require.NoError(t, err)
	}
}

func waitForRecords(t *testing.T, s store.Reader, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		records, err := s.ListRecent(context.Background(), 1000)
		return err == nil && len(records) >= n
	}, 60*time.Second, 200*time.Millisecond)
}

func TestPipeline_ConsumePersistQueryAndResume(t *testing.T) {
	brokers := requireBroker(t)
	logger := zaptest.NewLogger(t)

	topic := fmt.Sprintf("event-sink-it-%s", uuid.NewString())
	kafka := msg.KafkaConfig{
		Brokers:       brokers,
		ClientID:      "event-sink-it",
		Topic:         topic,
		GroupID:       topic + "-group",
		StartPosition: msg.StartEarliest,
	}

	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer s.Close()

	producer, err := msg.NewProducer(brokers, "event-sink-it-producer", logger)
	require.NoError(t, err)
	defer producer.Close()

	// messages produced before the consumer starts are read from the beginning
	produce(t, producer, topic, "A", "B", "C")

	consumer := startPipeline(t, s, kafka, logger)
	waitForRecords(t, s, 3)

	records, err := query.NewService(s, logger).ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, values(records))

	stopPipeline(t, consumer)

	// a restarted consumer resumes from the committed offset
	produce(t, producer, topic, "D")
	consumer = startPipeline(t, s, kafka, logger)
	defer stopPipeline(t, consumer)
	waitForRecords(t, s, 4)

	// give a redelivery the chance to show up before verifying
	time.Sleep(2 * time.Second)

	records, err = s.ListRecent(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "C", "B", "A"}, values(records))

	report := verify.Check(records)
	assert.True(t, report.OK(), "violations: %v", report.Violations)
}

func values(records []store.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Value)
	}
	return out
}
