// Package migrations embeds and applies the Postgres and ClickHouse schemas.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// PostgresFS holds the Postgres schema, applied in lexical order.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the ClickHouse schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

// ErrQuotedSemicolon is returned for SQL with a ';' inside a string literal,
// which the statement splitter cannot handle.
var ErrQuotedSemicolon = errors.New("semicolon inside string literal")

// Migration is one embedded SQL file.
type Migration struct {
	Name string
	SQL  string
}

// Load reads the .sql files of dir in lexical order. Blank files are skipped.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations %s: %w", dir, err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, Migration{Name: e.Name(), SQL: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Statements splits m into single statements for drivers without
// multi-statement Exec. Full-line "--" comments are dropped. The split is
// on every ';', so quoted semicolons are rejected up front.
func (m Migration) Statements() ([]string, error) {
	if err := checkQuotes(m.SQL); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}
	return splitStatements(m.SQL), nil
}

func splitStatements(sql string) []string {
	var kept []string
	for _, line := range strings.Split(sql, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if s := strings.TrimSpace(part); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// checkQuotes walks single-quoted literals ('' is an escaped quote).
func checkQuotes(sql string) error {
	quoted := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if quoted && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			quoted = !quoted
		case ';':
			if quoted {
				return ErrQuotedSemicolon
			}
		}
	}
	return nil
}
