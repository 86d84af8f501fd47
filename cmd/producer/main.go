package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/ismaiel54/event-sink/internal/logging"
	"github.com/ismaiel54/event-sink/internal/msg"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type jsonEvent struct {
	EventID      string `json:"event_id"`
	User         string `json:"user"`
	Action       string `json:"action"`
	IP           string `json:"ip"`
	TsUnixMillis int64  `json:"ts_unix_millis"`
}

func main() {
	var (
		count    int
		seed     int64
		brokers  string
		topic    string
		clientID string
		format   string
		keys     int
	)

	rootCmd := &cobra.Command{
		Use:   "producer",
		Short: "Publish sample messages to the event topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewLogger("producer", "info")
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logger.Sync()

			if format != "text" && format != "json" {
				return fmt.Errorf("invalid --format %q; use text|json", format)
			}

			brokerList := msg.ParseBrokers(brokers)
			logger.Info("starting producer",
				zap.Int("count", count),
				zap.Int64("seed", seed),
				zap.Strings("brokers", brokerList),
				zap.String("topic", topic),
				zap.String("format", format),
			)

			producer, err := msg.NewProducer(brokerList, clientID, logger)
			if err != nil {
				return fmt.Errorf("failed to create producer: %w", err)
			}
			defer producer.Close()

			faker := gofakeit.New(seed)
			ctx := cmd.Context()
			produced, failed := 0, 0

			for i := 0; i < count; i++ {
				key := ""
				if keys > 0 {
					key = fmt.Sprintf("key-%d", faker.Number(0, keys-1))
				}

				if err := produceOne(ctx, producer, faker, topic, key, format); err != nil {
					logger.Error("failed to produce message", zap.Int("index", i), zap.Error(err))
					failed++
					continue
				}
				produced++
			}

			logger.Info("producer completed",
				zap.Int("total", count),
				zap.Int("produced", produced),
				zap.Int("failed", failed),
			)

			fmt.Printf("\n=== Producer Summary ===\n")
			fmt.Printf("Total messages: %d\n", count)
			fmt.Printf("Produced: %d\n", produced)
			fmt.Printf("Failed: %d\n", failed)
			fmt.Printf("Topic: %s\n", topic)
			fmt.Printf("\n")

			if failed > 0 {
				return fmt.Errorf("%d messages failed", failed)
			}
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().IntVar(&count, "count", 50, "Number of messages to produce")
	rootCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for deterministic payloads")
	rootCmd.Flags().StringVar(&brokers, "brokers", "localhost:9092", "Kafka broker addresses")
	rootCmd.Flags().StringVar(&topic, "topic", msg.DefaultTopic, "Topic to produce to")
	rootCmd.Flags().StringVar(&clientID, "client-id", msg.DefaultClientID, "Kafka client id")
	rootCmd.Flags().StringVar(&format, "format", "text", "Payload format: text|json")
	rootCmd.Flags().IntVar(&keys, "keys", 0, "Number of distinct record keys (0 sends unkeyed records)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func produceOne(ctx context.Context, p *msg.Producer, faker *gofakeit.Faker, topic, key, format string) error {
	if format == "json" {
		return p.ProduceJSON(ctx, topic, key, jsonEvent{
			EventID:      uuid.New().String(),
			User:         faker.Username(),
			Action:       faker.HackerVerb(),
			IP:           faker.IPv4Address(),
			TsUnixMillis: time.Now().UnixMilli(),
		})
	}
	_, _, err := p.Produce(ctx, topic, key, []byte(faker.Sentence(8)))
	return err
}
