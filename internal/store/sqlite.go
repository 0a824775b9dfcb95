package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/fundsync/internal/db"
	"github.com/sells-group/fundsync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Semantics match
// the Postgres backend; duplicate detection uses an existence probe
// because SQLite has no xmax equivalent.
type SQLiteStore struct {
	db *sql.DB
}

var (
	sqliteUpsertFundamental = mustBuildUpsert(db.UpsertConfig{
		Table:        "fundamentals",
		Columns:      []string{"symbol", "sector", "period_kind", "fiscal_period", "provenance", "metrics", "updated_at"},
		ConflictKeys: []string{"symbol", "period_kind", "fiscal_period", "provenance"},
	}, db.PlaceholderQuestion)

	sqliteUpsertCashFlow = mustBuildUpsert(db.UpsertConfig{
		Table:        "cash_flows",
		Columns:      []string{"symbol", "frequency", "fiscal_date", "provenance", "metrics", "updated_at"},
		ConflictKeys: []string{"symbol", "frequency", "fiscal_date", "provenance"},
	}, db.PlaceholderQuestion)
)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS fundamentals (
	symbol        TEXT NOT NULL,
	sector        TEXT NOT NULL DEFAULT '',
	period_kind   TEXT NOT NULL,
	fiscal_period TEXT NOT NULL,
	provenance    TEXT NOT NULL,
	metrics       TEXT NOT NULL,
	updated_at    DATETIME NOT NULL,
	PRIMARY KEY (symbol, period_kind, fiscal_period, provenance)
);

CREATE INDEX IF NOT EXISTS idx_fundamentals_updated_at ON fundamentals(updated_at);

CREATE TABLE IF NOT EXISTS cash_flows (
	symbol      TEXT NOT NULL,
	frequency   TEXT NOT NULL,
	fiscal_date TEXT NOT NULL,
	provenance  TEXT NOT NULL,
	metrics     TEXT NOT NULL,
	updated_at  DATETIME NOT NULL,
	PRIMARY KEY (symbol, frequency, fiscal_date, provenance)
);

CREATE INDEX IF NOT EXISTS idx_cash_flows_symbol_freq ON cash_flows(symbol, frequency);
CREATE INDEX IF NOT EXISTS idx_cash_flows_updated_at ON cash_flows(updated_at);

CREATE TABLE IF NOT EXISTS universe (
	symbol   TEXT PRIMARY KEY,
	added_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	success     INTEGER NOT NULL,
	report      TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertFundamentals(ctx context.Context, records []model.FundamentalRecord) (UpsertStats, error) {
	var stats UpsertStats
	now := time.Now().UTC()

	for _, group := range chunk(records, ChunkSize) {
		for i := range group {
			rec := &group[i]
			if err := validateFundamental(rec, now); err != nil {
				stats.Rejected = append(stats.Rejected, rec.Symbol+": "+err.Error())
				continue
			}
			roundCardinals(rec.Values, model.FundamentalFields)

			metrics, err := json.Marshal(rec.Values)
			if err != nil {
				return stats, eris.Wrap(err, "sqlite: marshal metrics")
			}
			updatedAt := rec.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = now
			}

			exists, err := s.rowExists(ctx,
				`SELECT 1 FROM fundamentals WHERE symbol = ? AND period_kind = ? AND fiscal_period = ? AND provenance = ?`,
				rec.Symbol, rec.PeriodKind, rec.FiscalPeriod, rec.Provenance)
			if err != nil {
				return stats, err
			}

			_, err = s.db.ExecContext(ctx, sqliteUpsertFundamental,
				rec.Symbol, rec.Sector, rec.PeriodKind, rec.FiscalPeriod, rec.Provenance, string(metrics), updatedAt)
			if err != nil {
				return stats, eris.Wrapf(err, "sqlite: upsert fundamental %s", rec.Symbol)
			}
			stats.Saved++
			if exists {
				stats.Duplicates++
			}
		}
	}
	return stats, nil
}

func (s *SQLiteStore) UpsertCashFlows(ctx context.Context, records []model.CashFlowRecord) (UpsertStats, error) {
	var stats UpsertStats
	now := time.Now().UTC()

	for _, group := range chunk(records, ChunkSize) {
		for i := range group {
			rec := &group[i]
			if err := validateCashFlow(rec, now); err != nil {
				stats.Rejected = append(stats.Rejected, rec.Key()+": "+err.Error())
				continue
			}
			roundCardinals(rec.Values, model.CashFlowFields)

			metrics, err := json.Marshal(rec.Values)
			if err != nil {
				return stats, eris.Wrap(err, "sqlite: marshal metrics")
			}
			updatedAt := rec.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = now
			}

			exists, err := s.rowExists(ctx,
				`SELECT 1 FROM cash_flows WHERE symbol = ? AND frequency = ? AND fiscal_date = ? AND provenance = ?`,
				rec.Symbol, string(rec.Frequency), rec.FiscalDate, rec.Provenance)
			if err != nil {
				return stats, err
			}

			_, err = s.db.ExecContext(ctx, sqliteUpsertCashFlow,
				rec.Symbol, string(rec.Frequency), rec.FiscalDate, rec.Provenance, string(metrics), updatedAt)
			if err != nil {
				return stats, eris.Wrapf(err, "sqlite: upsert cash flow %s", rec.Key())
			}
			stats.Saved++
			if exists {
				stats.Duplicates++
			}
		}
	}
	return stats, nil
}

func (s *SQLiteStore) rowExists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: existence probe")
	}
	return true, nil
}

func (s *SQLiteStore) RecentFundamentalSymbols(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM fundamentals WHERE updated_at > ?`, since)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent fundamentals")
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan symbol")
		}
		symbols = append(symbols, sym)
	}
	return symbols, eris.Wrap(rows.Err(), "sqlite: recent fundamentals iterate")
}

func (s *SQLiteStore) RecentCashFlowSymbols(ctx context.Context, freq model.Frequency, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM cash_flows WHERE frequency = ? AND updated_at > ?`,
		string(freq), since)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent cash flows")
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan symbol")
		}
		symbols = append(symbols, sym)
	}
	return symbols, eris.Wrap(rows.Err(), "sqlite: recent cash flows iterate")
}

func (s *SQLiteStore) StoredCashFlowPeriods(ctx context.Context, symbol string, freq model.Frequency, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT fiscal_date FROM cash_flows WHERE symbol = ? AND frequency = ? AND updated_at > ?`,
		symbol, string(freq), since)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: stored periods %s", symbol)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fiscal date")
		}
		dates = append(dates, d)
	}
	return dates, eris.Wrap(rows.Err(), "sqlite: stored periods iterate")
}

func (s *SQLiteStore) ListUniverse(ctx context.Context, limit, offset int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol FROM universe ORDER BY symbol LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list universe")
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan universe symbol")
		}
		symbols = append(symbols, sym)
	}
	return symbols, eris.Wrap(rows.Err(), "sqlite: list universe iterate")
}

func (s *SQLiteStore) SeedUniverse(ctx context.Context, symbols []string) (int, error) {
	added := 0
	now := time.Now().UTC()
	for _, sym := range symbols {
		if !model.ValidSymbol(sym) {
			continue
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO universe (symbol, added_at) VALUES (?, ?) ON CONFLICT (symbol) DO NOTHING`,
			sym, now)
		if err != nil {
			return added, eris.Wrapf(err, "sqlite: seed universe %s", sym)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	return added, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.IngestRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, kind, success, report, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Success, string(run.Report), run.StartedAt, run.FinishedAt)
	return eris.Wrapf(err, "sqlite: save run %s", run.ID)
}
