package scheduler

import (
	"context"
	"time"

	"github.com/sells-group/fundsync/internal/model"
	"github.com/sells-group/fundsync/internal/provider"
	"github.com/sells-group/fundsync/internal/store"
)

// fakeStore implements store.Store with scriptable responses.
type fakeStore struct {
	universe      []string
	recentFund    []string
	recentCF      map[model.Frequency][]string
	storedPeriods map[string][]string // "SYMBOL|freq" -> fiscal dates

	fundErrs []error // popped per UpsertFundamentals call
	cfErrs   []error

	fundUpserts [][]model.FundamentalRecord
	cfUpserts   [][]model.CashFlowRecord
	savedRuns   []model.IngestRun
	seeded      []string
}

var _ store.Store = (*fakeStore)(nil)

func (f *fakeStore) UpsertFundamentals(_ context.Context, records []model.FundamentalRecord) (store.UpsertStats, error) {
	if len(f.fundErrs) > 0 {
		err := f.fundErrs[0]
		f.fundErrs = f.fundErrs[1:]
		if err != nil {
			return store.UpsertStats{}, err
		}
	}
	f.fundUpserts = append(f.fundUpserts, records)
	return store.UpsertStats{Saved: len(records)}, nil
}

func (f *fakeStore) UpsertCashFlows(_ context.Context, records []model.CashFlowRecord) (store.UpsertStats, error) {
	if len(f.cfErrs) > 0 {
		err := f.cfErrs[0]
		f.cfErrs = f.cfErrs[1:]
		if err != nil {
			return store.UpsertStats{}, err
		}
	}
	f.cfUpserts = append(f.cfUpserts, records)
	return store.UpsertStats{Saved: len(records)}, nil
}

func (f *fakeStore) RecentFundamentalSymbols(context.Context, time.Time) ([]string, error) {
	return f.recentFund, nil
}

func (f *fakeStore) RecentCashFlowSymbols(_ context.Context, freq model.Frequency, _ time.Time) ([]string, error) {
	return f.recentCF[freq], nil
}

func (f *fakeStore) StoredCashFlowPeriods(_ context.Context, symbol string, freq model.Frequency, _ time.Time) ([]string, error) {
	return f.storedPeriods[symbol+"|"+string(freq)], nil
}

func (f *fakeStore) ListUniverse(_ context.Context, limit, offset int) ([]string, error) {
	if offset >= len(f.universe) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.universe) {
		end = len(f.universe)
	}
	return f.universe[offset:end], nil
}

func (f *fakeStore) SeedUniverse(_ context.Context, symbols []string) (int, error) {
	f.seeded = append(f.seeded, symbols...)
	return len(symbols), nil
}

func (f *fakeStore) SaveRun(_ context.Context, run model.IngestRun) error {
	f.savedRuns = append(f.savedRuns, run)
	return nil
}

func (f *fakeStore) Ping(context.Context) error    { return nil }
func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

// fakeAdapter implements provider.Adapter with queued responses. Each
// fetch call pops the next response; exhausting the queue repeats the
// last one.
type fakeAdapter struct {
	name     string
	disabled bool
	batchCap int

	fundQueue []*provider.FetchResult
	stmtQueue []*provider.StatementResult

	fundCalls [][]string
	stmtCalls []stmtCall
}

type stmtCall struct {
	symbols []string
	freq    model.Frequency
}

var _ provider.Adapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) Name() string  { return f.name }
func (f *fakeAdapter) Enabled() bool { return !f.disabled }
func (f *fakeAdapter) BatchCap() int {
	if f.batchCap > 0 {
		return f.batchCap
	}
	return 50
}

func (f *fakeAdapter) FetchFundamentals(_ context.Context, symbols []string) (*provider.FetchResult, error) {
	if f.disabled {
		return nil, nil
	}
	f.fundCalls = append(f.fundCalls, symbols)
	if len(f.fundQueue) == 0 {
		return &provider.FetchResult{Provider: f.name, Payloads: map[string]model.RawPayload{}, Errors: map[string]string{}}, nil
	}
	res := f.fundQueue[0]
	if len(f.fundQueue) > 1 {
		f.fundQueue = f.fundQueue[1:]
	}
	return res, nil
}

func (f *fakeAdapter) FetchCashFlow(_ context.Context, symbols []string, freq model.Frequency) (*provider.StatementResult, error) {
	if f.disabled {
		return nil, nil
	}
	f.stmtCalls = append(f.stmtCalls, stmtCall{symbols: symbols, freq: freq})
	if len(f.stmtQueue) == 0 {
		return &provider.StatementResult{Provider: f.name, Statements: map[string][]model.StatementPayload{}, Errors: map[string]string{}}, nil
	}
	res := f.stmtQueue[0]
	if len(f.stmtQueue) > 1 {
		f.stmtQueue = f.stmtQueue[1:]
	}
	return res, nil
}

// quarterlyFakeAdapter additionally serves the quarterly ratio
// supplement used to backfill coverage.
type quarterlyFakeAdapter struct {
	fakeAdapter

	quarterlyQueue []*provider.FetchResult
	quarterlyCalls [][]string
}

var _ provider.QuarterlyFundamentals = (*quarterlyFakeAdapter)(nil)

func (f *quarterlyFakeAdapter) FetchQuarterlyFundamentals(_ context.Context, symbols []string) (*provider.FetchResult, error) {
	f.quarterlyCalls = append(f.quarterlyCalls, symbols)
	if len(f.quarterlyQueue) == 0 {
		return fetchResult(f.name, nil), nil
	}
	res := f.quarterlyQueue[0]
	if len(f.quarterlyQueue) > 1 {
		f.quarterlyQueue = f.quarterlyQueue[1:]
	}
	return res, nil
}

func fetchResult(providerName string, payloads map[string]model.RawPayload) *provider.FetchResult {
	res := &provider.FetchResult{
		Provider: providerName,
		Payloads: map[string]model.RawPayload{},
		Errors:   map[string]string{},
	}
	for sym, p := range payloads {
		res.Payloads[sym] = p
	}
	return res
}
