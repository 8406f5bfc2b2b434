package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	chstore "solana-slot-sniper/internal/storage/clickhouse"
	"solana-slot-sniper/internal/storage/migrations"
	pgstore "solana-slot-sniper/internal/storage/postgres"
)

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres and ClickHouse migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := a.logger("migrate")
			sc := a.cfg.Storage

			if sc.PostgresDSN == "" && sc.ClickHouseDSN == "" {
				return errors.New("nothing to migrate: set storage.postgres_dsn or storage.clickhouse_dsn")
			}

			if sc.PostgresDSN != "" {
				pool, err := pgstore.NewPool(ctx, sc.PostgresDSN)
				if err != nil {
					return fmt.Errorf("connect to postgres: %w", err)
				}
				defer pool.Close()
				if _, err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
					return err
				}
			}

			if sc.ClickHouseDSN != "" {
				conn, err := chstore.Migrate(ctx, sc.ClickHouseDSN, logger)
				if err != nil {
					return err
				}
				logger.Info().Str("database", conn.Database()).Msg("clickhouse schema up to date")
				_ = conn.Close()
			}
			return nil
		},
	}
}

func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the merged configuration as YAML",
		RunE: func(*cobra.Command, []string) error {
			out, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	})
	return cmd
}
