package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ismaiel54/event-sink/internal/config"
	"github.com/ismaiel54/event-sink/internal/logging"
	"github.com/ismaiel54/event-sink/internal/store"
	"github.com/ismaiel54/event-sink/internal/verify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig("verifier")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var (
		driver  string
		dsn     string
		limit   int
		timeout time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "verifier",
		Short: "Check stored event records for duplicates and ordering violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewLogger("verifier", cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logger.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			s, err := store.Open(ctx, driver, dsn)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer s.Close()

			records, err := s.ListRecent(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to read records: %w", err)
			}

			logger.Info("verifying records",
				zap.String("driver", driver),
				zap.Int("records", len(records)),
			)

			report := verify.Check(records)

			fmt.Println("\n=== Verification Results ===")
			fmt.Printf("Records checked: %d\n", report.Records)
			fmt.Printf("Partitions: %d\n", report.Partitions)
			fmt.Printf("Violations: %d\n", len(report.Violations))

			if !report.OK() {
				fmt.Println("\nViolations found:")
				for _, v := range report.Violations {
					fmt.Printf("  %s\n", v)
				}
				fmt.Println("\n❌ VERIFICATION FAILED")
				return fmt.Errorf("%d violations", len(report.Violations))
			}

			fmt.Println("\n✅ VERIFICATION PASSED")
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVar(&driver, "store-driver", cfg.StoreDriver, "Store driver: sqlite|postgres")
	rootCmd.Flags().StringVar(&dsn, "store-dsn", cfg.StoreDSN, "Store DSN (file path for sqlite)")
	rootCmd.Flags().IntVar(&limit, "limit", 1_000_000, "Maximum number of records to check")
	rootCmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Overall timeout")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
