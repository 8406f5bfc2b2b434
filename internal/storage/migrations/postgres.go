package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// PostgresDB is the subset of a pgx pool the migrator needs.
type PostgresDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

const pgLedgerDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    name       TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// RunPostgresMigrations applies every embedded migration not yet listed in
// schema_migrations. Each file runs in its own transaction together with
// its ledger row. Returns the names applied by this call.
func RunPostgresMigrations(ctx context.Context, pool PostgresDB, logger *zerolog.Logger) ([]string, error) {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	l = l.With().Str("component", "migrations").Str("db", "postgres").Logger()

	all, err := Load(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgLedgerDDL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	done, err := appliedPostgres(ctx, pool)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range all {
		if done[m.Name] {
			continue
		}
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
		l.Info().Str("migration", m.Name).Msg("migration applied")
	}
	l.Info().Int("applied", len(applied)).Int("total", len(all)).Msg("postgres schema up to date")
	return applied, nil
}

func appliedPostgres(ctx context.Context, pool PostgresDB) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	done := make(map[string]bool, len(names))
	for _, n := range names {
		done[n] = true
	}
	return done, nil
}
