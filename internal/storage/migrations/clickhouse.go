package migrations

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// ClickhouseExecer runs a single DDL statement. driver.Conn satisfies it.
type ClickhouseExecer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ApplyClickhouse runs every embedded ClickHouse migration statement by
// statement against conn, which must already point at the target database.
// The DDL is idempotent, so no ledger is kept.
func ApplyClickhouse(ctx context.Context, conn ClickhouseExecer, logger *zerolog.Logger) error {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	l = l.With().Str("component", "migrations").Str("db", "clickhouse").Logger()

	all, err := Load(ClickhouseFS, "clickhouse")
	if err != nil {
		return err
	}
	for _, m := range all {
		stmts, err := m.Statements()
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.Name, err)
			}
		}
		l.Info().Str("migration", m.Name).Int("statements", len(stmts)).Msg("migration applied")
	}
	return nil
}
