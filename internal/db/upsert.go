package db

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Placeholder styles for the two store backends.
const (
	PlaceholderDollar   = "$" // Postgres: $1, $2, ...
	PlaceholderQuestion = "?" // SQLite: ?, ?, ...
)

// UpsertConfig defines an INSERT ... ON CONFLICT ... DO UPDATE statement.
type UpsertConfig struct {
	Table        string   // target table
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
	Returning    string   // optional RETURNING expression (Postgres only)
}

// BuildUpsert renders the upsert statement for the given placeholder
// style. Conflict-key columns are never updated; the natural key of a
// row is immutable once written.
func BuildUpsert(cfg UpsertConfig, style string) (string, error) {
	if cfg.Table == "" {
		return "", eris.New("db: upsert: no table specified")
	}
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: upsert: no conflict keys specified")
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			conflictSet[k] = true
		}
		for _, c := range cfg.Columns {
			if !conflictSet[c] {
				updateCols = append(updateCols, c)
			}
		}
	}
	if len(updateCols) == 0 {
		return "", eris.New("db: upsert: no updatable columns")
	}

	placeholders := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		if style == PlaceholderDollar {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		} else {
			placeholders[i] = "?"
		}
	}

	setClauses := make([]string, len(updateCols))
	for i, c := range updateCols {
		setClauses[i] = fmt.Sprintf(`%s = excluded.%s`, quote(c), quote(c))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		sanitizeTable(cfg.Table), quoteAndJoin(cfg.Columns), strings.Join(placeholders, ", "))
	fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s",
		quoteAndJoin(cfg.ConflictKeys), strings.Join(setClauses, ", "))
	if cfg.Returning != "" {
		fmt.Fprintf(&b, " RETURNING %s", cfg.Returning)
	}
	return b.String(), nil
}

// sanitizeTable quotes a possibly schema-qualified table name.
func sanitizeTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, ``) + `"`
}

func quoteAndJoin(idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = quote(id)
	}
	return strings.Join(quoted, ", ")
}
