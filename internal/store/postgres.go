package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fundsync/internal/db"
	"github.com/sells-group/fundsync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	upsertFundamentalSQL = mustBuildUpsert(db.UpsertConfig{
		Table:        "fundamentals",
		Columns:      []string{"symbol", "sector", "period_kind", "fiscal_period", "provenance", "metrics", "updated_at"},
		ConflictKeys: []string{"symbol", "period_kind", "fiscal_period", "provenance"},
		Returning:    "(xmax = 0) AS inserted",
	}, db.PlaceholderDollar)

	upsertCashFlowSQL = mustBuildUpsert(db.UpsertConfig{
		Table:        "cash_flows",
		Columns:      []string{"symbol", "frequency", "fiscal_date", "provenance", "metrics", "updated_at"},
		ConflictKeys: []string{"symbol", "frequency", "fiscal_date", "provenance"},
		Returning:    "(xmax = 0) AS inserted",
	}, db.PlaceholderDollar)
)

func mustBuildUpsert(cfg db.UpsertConfig, style string) string {
	sql, err := db.BuildUpsert(cfg, style)
	if err != nil {
		panic(err)
	}
	return sql
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"upsert_fundamental":  upsertFundamentalSQL,
	"upsert_cash_flow":    upsertCashFlowSQL,
	"recent_fundamentals": `SELECT DISTINCT symbol FROM fundamentals WHERE updated_at > $1`,
	"stored_periods":      `SELECT DISTINCT fiscal_date FROM cash_flows WHERE symbol = $1 AND frequency = $2 AND updated_at > $3`,
	"list_universe":       `SELECT symbol FROM universe ORDER BY symbol LIMIT $1 OFFSET $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS fundamentals (
	symbol        TEXT NOT NULL,
	sector        TEXT NOT NULL DEFAULT '',
	period_kind   TEXT NOT NULL,
	fiscal_period TEXT NOT NULL,
	provenance    TEXT NOT NULL,
	metrics       JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (symbol, period_kind, fiscal_period, provenance)
);

CREATE INDEX IF NOT EXISTS idx_fundamentals_updated_at ON fundamentals(updated_at);

CREATE TABLE IF NOT EXISTS cash_flows (
	symbol      TEXT NOT NULL,
	frequency   TEXT NOT NULL,
	fiscal_date TEXT NOT NULL,
	provenance  TEXT NOT NULL,
	metrics     JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (symbol, frequency, fiscal_date, provenance)
);

CREATE INDEX IF NOT EXISTS idx_cash_flows_symbol_freq ON cash_flows(symbol, frequency);
CREATE INDEX IF NOT EXISTS idx_cash_flows_updated_at ON cash_flows(updated_at);

CREATE TABLE IF NOT EXISTS universe (
	symbol   TEXT PRIMARY KEY,
	added_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	success     BOOLEAN NOT NULL,
	report      JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertFundamentals writes records in ChunkSize groups. Invalid records
// are counted as rejections; an existing row with the same natural key
// is overwritten and counted as a prevented duplicate.
func (s *PostgresStore) UpsertFundamentals(ctx context.Context, records []model.FundamentalRecord) (UpsertStats, error) {
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
				return stats, eris.Wrap(err, "postgres: marshal metrics")
			}
			updatedAt := rec.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = now
			}

			var inserted bool
			err = s.pool.QueryRow(ctx, upsertFundamentalSQL,
				rec.Symbol, rec.Sector, rec.PeriodKind, rec.FiscalPeriod, rec.Provenance, metrics, updatedAt,
			).Scan(&inserted)
			if err != nil {
				return stats, eris.Wrapf(err, "postgres: upsert fundamental %s", rec.Symbol)
			}
			stats.Saved++
			if !inserted {
				stats.Duplicates++
			}
		}
		zap.L().Debug("fundamentals chunk persisted",
			zap.Int("size", len(group)), zap.Int("saved", stats.Saved))
	}
	return stats, nil
}

// UpsertCashFlows writes statement periods in ChunkSize groups with the
// same rejection and duplicate accounting as fundamentals.
func (s *PostgresStore) UpsertCashFlows(ctx context.Context, records []model.CashFlowRecord) (UpsertStats, error) {
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
				return stats, eris.Wrap(err, "postgres: marshal metrics")
			}
			updatedAt := rec.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = now
			}

			var inserted bool
			err = s.pool.QueryRow(ctx, upsertCashFlowSQL,
				rec.Symbol, string(rec.Frequency), rec.FiscalDate, rec.Provenance, metrics, updatedAt,
			).Scan(&inserted)
			if err != nil {
				return stats, eris.Wrapf(err, "postgres: upsert cash flow %s", rec.Key())
			}
			stats.Saved++
			if !inserted {
				stats.Duplicates++
			}
		}
		zap.L().Debug("cash flow chunk persisted",
			zap.Int("size", len(group)), zap.Int("saved", stats.Saved))
	}
	return stats, nil
}

// RecentFundamentalSymbols returns symbols with fundamentals written
// after the given instant. The scheduler treats them as fresh.
func (s *PostgresStore) RecentFundamentalSymbols(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT symbol FROM fundamentals WHERE updated_at > $1`,
		since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent fundamentals")
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, eris.Wrap(err, "postgres: scan symbol")
		}
		symbols = append(symbols, sym)
	}
	return symbols, eris.Wrap(rows.Err(), "postgres: recent fundamentals iterate")
}

// RecentCashFlowSymbols returns symbols with statement rows at the given
// frequency written after the given instant.
func (s *PostgresStore) RecentCashFlowSymbols(ctx context.Context, freq model.Frequency, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT symbol FROM cash_flows WHERE frequency = $1 AND updated_at > $2`,
		string(freq), since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent cash flows")
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, eris.Wrap(err, "postgres: scan symbol")
		}
		symbols = append(symbols, sym)
	}
	return symbols, eris.Wrap(rows.Err(), "postgres: recent cash flows iterate")
}

// StoredCashFlowPeriods returns fiscal dates already stored for a symbol
// at the given frequency and written after the given instant.
func (s *PostgresStore) StoredCashFlowPeriods(ctx context.Context, symbol string, freq model.Frequency, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT fiscal_date FROM cash_flows WHERE symbol = $1 AND frequency = $2 AND updated_at > $3`,
		symbol, string(freq), since,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: stored periods %s", symbol)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fiscal date")
		}
		dates = append(dates, d)
	}
	return dates, eris.Wrap(rows.Err(), "postgres: stored periods iterate")
}

// ListUniverse returns one page of the symbol universe in symbol order.
func (s *PostgresStore) ListUniverse(ctx context.Context, limit, offset int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT symbol FROM universe ORDER BY symbol LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list universe")
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, eris.Wrap(err, "postgres: scan universe symbol")
		}
		symbols = append(symbols, sym)
	}
	return symbols, eris.Wrap(rows.Err(), "postgres: list universe iterate")
}

// SeedUniverse inserts symbols that are not already present and returns
// how many were added.
func (s *PostgresStore) SeedUniverse(ctx context.Context, symbols []string) (int, error) {
	added := 0
	now := time.Now().UTC()
	for _, sym := range symbols {
		if !model.ValidSymbol(sym) {
			continue
		}
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO universe (symbol, added_at) VALUES ($1, $2) ON CONFLICT (symbol) DO NOTHING`,
			sym, now,
		)
		if err != nil {
			return added, eris.Wrapf(err, "postgres: seed universe %s", sym)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

// SaveRun persists one run audit row.
func (s *PostgresStore) SaveRun(ctx context.Context, run model.IngestRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, kind, success, report, started_at, finished_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Kind, run.Success, run.Report, run.StartedAt, run.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: save run %s", run.ID)
}
