// Package scheduler drives the ingestion pipeline through its fixed
// phase order: select batch, fetch, normalize, merge, validate, persist,
// report. Runs are resumable by construction; each run takes a bounded
// slice of stale work and the freshness guards make re-runs converge on
// whatever is left.
package scheduler

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/fundsync/internal/mapping"
	"github.com/sells-group/fundsync/internal/merge"
	"github.com/sells-group/fundsync/internal/model"
	"github.com/sells-group/fundsync/internal/provider"
	"github.com/sells-group/fundsync/internal/store"
)

// Config holds the scheduler's fixed operating parameters.
type Config struct {
	FundamentalsBatch     int           // symbols per fundamentals run
	StatementsBatch       int           // symbols per statement run
	FundamentalsFreshness time.Duration // skip symbols written within this window
	StatementsFreshness   time.Duration // skip periods written within this window
	RetryDelay            time.Duration // wait before the single per-phase retry
	RecentHorizon         time.Duration // prioritizeRecent activity lookback
	Strategy              merge.Strategy
}

func (c Config) withDefaults() Config {
	if c.FundamentalsBatch <= 0 {
		c.FundamentalsBatch = 10
	}
	if c.StatementsBatch <= 0 {
		c.StatementsBatch = 1
	}
	if c.FundamentalsFreshness <= 0 {
		c.FundamentalsFreshness = 24 * time.Hour
	}
	if c.StatementsFreshness <= 0 {
		c.StatementsFreshness = 7 * 24 * time.Hour
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.RecentHorizon <= 0 {
		c.RecentHorizon = 30 * 24 * time.Hour
	}
	return c
}

// Options are the per-run knobs carried in from the trigger.
type Options struct {
	Symbols          []string `json:"symbols,omitempty"`
	MaxSymbols       int      `json:"maxSymbols,omitempty"`
	ForceRefresh     bool     `json:"forceRefresh,omitempty"`
	SkipQuarterly    bool     `json:"skipQuarterly,omitempty"`
	SkipAnnual       bool     `json:"skipAnnual,omitempty"`
	PrioritizeRecent bool     `json:"prioritizeRecent,omitempty"`
}

// Scheduler owns one store, one adapter registry and one mapping set.
type Scheduler struct {
	cfg      Config
	store    store.Store
	registry *provider.Registry
	mappings *mapping.Set
	now      func() time.Time
}

// New creates a scheduler with defaults applied.
func New(cfg Config, st store.Store, registry *provider.Registry, mappings *mapping.Set) *Scheduler {
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		store:    st,
		registry: registry,
		mappings: mappings,
		now:      time.Now,
	}
}

// selectBatch resolves the symbols one run will work on. Explicit
// symbols bypass the freshness guard; universe selection drops fresh
// symbols (unless forced), takes a bounded slice and defers the rest.
func (s *Scheduler) selectBatch(ctx context.Context, opts Options, rep *Report, size int, freshness time.Duration, fresh recentFn) ([]string, error) {
	if len(opts.Symbols) > 0 {
		return s.selectExplicit(opts, rep, size), nil
	}

	universe, err := s.loadUniverse(ctx)
	if err != nil {
		return nil, err
	}

	candidates := universe
	if !opts.ForceRefresh {
		candidates = s.dropFresh(ctx, universe, rep, freshness, fresh)
	}

	if opts.PrioritizeRecent {
		candidates = s.orderByRecency(ctx, candidates, fresh)
	}

	if opts.MaxSymbols > 0 && opts.MaxSymbols < size {
		size = opts.MaxSymbols
	}
	if len(candidates) > size {
		rep.Deferred = append(rep.Deferred, candidates[size:]...)
		candidates = candidates[:size]
	}
	return candidates, nil
}

func (s *Scheduler) selectExplicit(opts Options, rep *Report, size int) []string {
	seen := make(map[string]bool)
	var batch []string
	for _, sym := range opts.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if seen[sym] {
			continue
		}
		seen[sym] = true
		if !model.ValidSymbol(sym) {
			rep.setStatus(sym, model.StatusError, "invalid symbol")
			continue
		}
		batch = append(batch, sym)
	}
	if opts.MaxSymbols > 0 && opts.MaxSymbols < size {
		size = opts.MaxSymbols
	}
	if len(batch) > size {
		rep.Deferred = append(rep.Deferred, batch[size:]...)
		batch = batch[:size]
	}
	return batch
}

// recentFn abstracts the two freshness guard queries.
type recentFn func(ctx context.Context, since time.Time) ([]string, error)

func (s *Scheduler) fundamentalsRecent(ctx context.Context, since time.Time) ([]string, error) {
	return s.store.RecentFundamentalSymbols(ctx, since)
}

// cashFlowRecent reports symbols fresh at every requested frequency. A
// symbol still stale for any pass stays in the batch, so a quarterly
// write never hides an overdue annual fetch.
func (s *Scheduler) cashFlowRecent(freqs []model.Frequency) recentFn {
	return func(ctx context.Context, since time.Time) ([]string, error) {
		counts := make(map[string]int)
		for _, freq := range freqs {
			syms, err := s.store.RecentCashFlowSymbols(ctx, freq, since)
			if err != nil {
				return nil, err
			}
			seen := make(map[string]bool, len(syms))
			for _, sym := range syms {
				if !seen[sym] {
					seen[sym] = true
					counts[sym]++
				}
			}
		}
		var fresh []string
		for sym, n := range counts {
			if n == len(freqs) {
				fresh = append(fresh, sym)
			}
		}
		sort.Strings(fresh)
		return fresh, nil
	}
}

func (s *Scheduler) dropFresh(ctx context.Context, universe []string, rep *Report, freshness time.Duration, fresh recentFn) []string {
	recent, err := fresh(ctx, s.now().Add(-freshness))
	if err != nil {
		// a guard failure must not block ingestion; treat all as stale
		zap.L().Warn("scheduler: freshness guard unavailable", zap.Error(err))
		return universe
	}
	freshSet := make(map[string]bool, len(recent))
	for _, sym := range recent {
		freshSet[sym] = true
	}

	var stale []string
	for _, sym := range universe {
		if freshSet[sym] {
			rep.setStatus(sym, model.StatusSkipped, "fresh")
			continue
		}
		stale = append(stale, sym)
	}
	return stale
}

// orderByRecency moves symbols with recent activity to the front of the
// batch, keeping relative order within each group.
func (s *Scheduler) orderByRecency(ctx context.Context, candidates []string, fresh recentFn) []string {
	recent, err := fresh(ctx, s.now().Add(-s.cfg.RecentHorizon))
	if err != nil || len(recent) == 0 {
		return candidates
	}
	active := make(map[string]bool, len(recent))
	for _, sym := range recent {
		active[sym] = true
	}
	out := make([]string, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return active[out[i]] && !active[out[j]]
	})
	return out
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// fanOutFundamentals queries every enabled adapter concurrently, then
// gives symbols whose first attempt ended in an error or no-data result
// exactly one more chance after the fixed retry delay. The retry outcome
// is final.
func (s *Scheduler) fanOutFundamentals(ctx context.Context, adapters []provider.Adapter, symbols []string) []*provider.FetchResult {
	results := make([]*provider.FetchResult, len(adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range adapters {
		g.Go(func() error {
			res, err := a.FetchFundamentals(gctx, symbols)
			if err != nil {
				zap.L().Warn("scheduler: provider fetch failed",
					zap.String("provider", a.Name()), zap.Error(err))
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck

	if !anyFetchRetryable(results) {
		return results
	}
	if !sleepCtx(ctx, s.cfg.RetryDelay) {
		return results
	}

	for i, a := range adapters {
		res := results[i]
		if res == nil {
			continue
		}
		failed := retrySymbols(res.Errors, res.NoData)
		if len(failed) == 0 {
			continue
		}
		zap.L().Info("scheduler: retrying failed symbols",
			zap.String("provider", a.Name()), zap.Int("symbols", len(failed)))
		retry, err := a.FetchFundamentals(ctx, failed)
		if err != nil || retry == nil {
			continue
		}
		mergeFetchRetry(res, retry)
	}
	return results
}

func anyFetchRetryable(results []*provider.FetchResult) bool {
	for _, res := range results {
		if res != nil && (len(res.Errors) > 0 || len(res.NoData) > 0) {
			return true
		}
	}
	return false
}

// retrySymbols collects the symbols whose first attempt ended in an
// error or a no-data result, sorted for a stable retry order.
func retrySymbols(errs map[string]string, noData []string) []string {
	set := make(map[string]bool, len(errs)+len(noData))
	for sym := range errs {
		set[sym] = true
	}
	for _, sym := range noData {
		set[sym] = true
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// mergeFetchRetry folds a retry result into the first attempt. The
// retry's outcome per symbol replaces the first attempt's outcome.
func mergeFetchRetry(orig, retry *provider.FetchResult) {
	for sym, payload := range retry.Payloads {
		orig.Payloads[sym] = payload
		delete(orig.Errors, sym)
		orig.NoData = dropSymbol(orig.NoData, sym)
	}
	for _, sym := range retry.NoData {
		delete(orig.Errors, sym)
		if !containsSymbol(orig.NoData, sym) {
			orig.NoData = append(orig.NoData, sym)
		}
	}
	for sym, msg := range retry.Errors {
		orig.Errors[sym] = msg
		orig.NoData = dropSymbol(orig.NoData, sym)
	}
}

func containsSymbol(list []string, sym string) bool {
	for _, s := range list {
		if s == sym {
			return true
		}
	}
	return false
}

func dropSymbol(list []string, sym string) []string {
	out := list[:0:len(list)]
	for _, s := range list {
		if s != sym {
			out = append(out, s)
		}
	}
	return out
}

// fanOutStatements is the statement-run counterpart of fanOutFundamentals.
func (s *Scheduler) fanOutStatements(ctx context.Context, adapters []provider.Adapter, symbols []string, freq model.Frequency) []*provider.StatementResult {
	results := make([]*provider.StatementResult, len(adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range adapters {
		g.Go(func() error {
			res, err := a.FetchCashFlow(gctx, symbols, freq)
			if err != nil {
				zap.L().Warn("scheduler: provider statement fetch failed",
					zap.String("provider", a.Name()), zap.Error(err))
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck

	needRetry := false
	for _, res := range results {
		if res != nil && (len(res.Errors) > 0 || len(res.NoData) > 0) {
			needRetry = true
		}
	}
	if !needRetry || !sleepCtx(ctx, s.cfg.RetryDelay) {
		return results
	}

	for i, a := range adapters {
		res := results[i]
		if res == nil {
			continue
		}
		failed := retrySymbols(res.Errors, res.NoData)
		if len(failed) == 0 {
			continue
		}
		retry, err := a.FetchCashFlow(ctx, failed, freq)
		if err != nil || retry == nil {
			continue
		}
		for sym, stmts := range retry.Statements {
			res.Statements[sym] = stmts
			delete(res.Errors, sym)
			res.NoData = dropSymbol(res.NoData, sym)
		}
		for _, sym := range retry.NoData {
			delete(res.Errors, sym)
			if !containsSymbol(res.NoData, sym) {
				res.NoData = append(res.NoData, sym)
			}
		}
		for sym, msg := range retry.Errors {
			res.Errors[sym] = msg
			res.NoData = dropSymbol(res.NoData, sym)
		}
	}
	return results
}

// saveRun persists the audit row; a failure only logs.
func (s *Scheduler) saveRun(ctx context.Context, rep *Report, reportJSON []byte) {
	run := model.IngestRun{
		ID:         rep.RunID,
		Kind:       rep.Kind,
		Success:    rep.Success,
		Report:     reportJSON,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		zap.L().Warn("scheduler: failed to save run audit row",
			zap.String("run_id", rep.RunID), zap.Error(err))
	}
}

func newRunID() string {
	return uuid.New().String()
}
