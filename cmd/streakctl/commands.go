package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"example.com/fitstreak/internal/auth"
	"example.com/fitstreak/internal/config"
	"example.com/fitstreak/internal/domain"
	"example.com/fitstreak/internal/observability"
	"example.com/fitstreak/internal/outbox"
	"example.com/fitstreak/internal/persistence"
	"example.com/fitstreak/internal/persistence/postgres"
	"example.com/fitstreak/internal/persistence/sqlite"
)

// cli carries state shared by every subcommand.
type cli struct {
	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "streakctl",
		Short:         "Operate the streak service stores and event pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.cfg = config.Load()
			if driver, _ := cmd.Flags().GetString("driver"); driver != "" {
				c.cfg.StoreDriver = strings.ToLower(driver)
			}
			c.logger = observability.NewLogger(cmd.ErrOrStderr(), "streakctl", c.cfg.LogLevel, "text")
			return c.cfg.Validate()
		},
	}
	root.PersistentFlags().String("driver", "", "store driver override (postgres, sqlite, memory)")

	root.AddCommand(
		c.migrateCmd(),
		c.rebuildCmd(),
		c.leaderboardCmd(),
		c.tokenCmd(),
		c.outboxCmd(),
	)
	return root
}

func (c *cli) open(ctx context.Context) (*persistence.Backend, *domain.Service, error) {
	backend, err := persistence.Open(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, nil, err
	}
	service := domain.NewService(backend.Store,
		domain.WithLocation(c.cfg.Location()),
		domain.WithRetry(c.cfg.WriteMaxAttempts, c.cfg.WriteRetryDelay),
		domain.WithMaxBackfillDays(c.cfg.MaxBackfillDays),
		domain.WithLogger(c.logger),
	)
	return backend, service, nil
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := persistence.Open(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer backend.Close()
			if backend.Outbox == nil {
				return fmt.Errorf("the %s driver has no outbox", c.cfg.StoreDriver)
			}

			producer := outbox.NewKafkaProducer(c.cfg.KafkaBrokers)
			defer producer.Close()
			registry := outbox.NewSchemaRegistryClient(c.cfg.SchemaRegistryURL)
			dispatcher := outbox.NewDispatcher(backend.Outbox, producer, registry, c.logger, c.cfg.OutboxPollInterval, c.cfg.OutboxBatchSize)

			for i := 0; i < rounds; i++ {
				if err := dispatcher.DispatchOnce(cmd.Context()); err != nil {
					return fmt.Errorf("round %d: %w", i+1, err)
				}
			}
			pending, err := backend.Outbox.Pending(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d outbox rows still pending\n", pending)
			return nil
		},
	}
	drain.Flags().IntVar(&rounds, "rounds", 10, "maximum dispatch rounds")

	unpark := &cobra.Command{
		Use:   "unpark",
		Short: "Return parked SQLite outbox rows to the pending queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := persistence.Open(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer backend.Close()
			queue, ok := backend.Outbox.(*sqlite.OutboxQueue)
			if !ok {
				return fmt.Errorf("the %s driver does not park outbox rows", c.cfg.StoreDriver)
			}
			n, err := queue.Unpark(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unparked %d outbox rows\n", n)
			return nil
		},
	}

	outboxCmd.AddCommand(drain, unpark)
	return outboxCmd
}
