package scheduler

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fundsync/internal/coverage"
	"github.com/sells-group/fundsync/internal/merge"
	"github.com/sells-group/fundsync/internal/model"
	"github.com/sells-group/fundsync/internal/normalize"
	"github.com/sells-group/fundsync/internal/provider"
	"github.com/sells-group/fundsync/internal/store"
)

// RunFundamentals executes one fundamentals ingestion run. Per-symbol
// failures are captured in the report; the returned error is non-nil
// only for run-level faults (no enabled providers, universe read
// failure).
func (s *Scheduler) RunFundamentals(ctx context.Context, opts Options) (*Report, error) {
	rep := newReport(newRunID(), model.RunKindFundamentals, s.now())
	log := zap.L().With(zap.String("run_id", rep.RunID))
	log.Info("scheduler: fundamentals run starting",
		zap.Int("explicit_symbols", len(opts.Symbols)),
		zap.Bool("force_refresh", opts.ForceRefresh),
	)

	adapters := s.registry.Enabled()
	if len(adapters) == 0 {
		// a keyless provider is disabled, not an error; the run proceeds
		// with nothing to fetch and reports zero coverage
		log.Warn("scheduler: no providers enabled, run will produce no data")
		rep.Success = false
	}

	var batch []string
	if err := rep.phase(PhaseSelectBatch, func() error {
		var err error
		batch, err = s.selectBatch(ctx, opts, rep, s.cfg.FundamentalsBatch,
			s.cfg.FundamentalsFreshness, s.fundamentalsRecent)
		return err
	}); err != nil {
		rep.Success = false
		rep.finish(s.now())
		return rep, err
	}

	if len(batch) == 0 {
		log.Info("scheduler: nothing to do, all symbols fresh or batch empty")
		s.finalizeFundamentals(ctx, rep, nil)
		return rep, nil
	}

	var results []*provider.FetchResult
	_ = rep.phase(PhaseFetch, func() error {
		results = s.fanOutFundamentals(ctx, adapters, batch)
		return nil
	})

	var sets []merge.ProviderRecords
	_ = rep.phase(PhaseNormalize, func() error {
		sets = s.normalizeFundamentals(results)
		return nil
	})

	var merged []*model.FundamentalRecord
	_ = rep.phase(PhaseMerge, func() error {
		merged = merge.Fundamentals(sets, s.cfg.Strategy)
		return nil
	})

	_ = rep.phase(PhaseValidate, func() error {
		rep.CoverageBefore = coverage.Ratio(merged)
		if rep.CoverageBefore < coverage.Target {
			table := coverage.SectorAverages(merged)
			rep.InterpolatedFields = coverage.Interpolate(merged, table)
		}
		rep.CoverageAfter = coverage.Ratio(merged)
		if rep.CoverageAfter < coverage.Target {
			if sets := s.supplementaryQuarterly(ctx, adapters, batch); len(sets) > 0 {
				base := merge.ProviderRecords{Provider: "merged", Records: merged}
				merged = merge.Fundamentals(append([]merge.ProviderRecords{base}, sets...), merge.FirstNonNull)
				rep.CoverageAfter = coverage.Ratio(merged)
			}
		}
		return nil
	})

	persistErr := rep.phase(PhasePersist, func() error {
		recs := make([]model.FundamentalRecord, 0, len(merged))
		for _, rec := range merged {
			recs = append(recs, *rec)
		}
		stats, err := s.persistFundamentals(ctx, recs)
		rep.RecordsSaved += stats.Saved
		rep.DuplicatesPrevented += stats.Duplicates
		rep.Rejected = append(rep.Rejected, stats.Rejected...)
		return err
	})

	s.resolveFundamentalStatuses(rep, batch, results, merged, persistErr)
	s.finalizeFundamentals(ctx, rep, merged)
	return rep, nil
}

// supplementaryQuarterly asks adapters that can serve quarterly ratio
// data for a backfill when interpolation alone cannot reach the coverage
// target. A supplement failure only logs; the run keeps whatever the
// primary fetch produced.
func (s *Scheduler) supplementaryQuarterly(ctx context.Context, adapters []provider.Adapter, symbols []string) []merge.ProviderRecords {
	var results []*provider.FetchResult
	for _, a := range adapters {
		qf, ok := a.(provider.QuarterlyFundamentals)
		if !ok {
			continue
		}
		res, err := qf.FetchQuarterlyFundamentals(ctx, symbols)
		if err != nil {
			zap.L().Warn("scheduler: supplementary quarterly fetch failed",
				zap.String("provider", a.Name()), zap.Error(err))
			continue
		}
		if res != nil {
			results = append(results, res)
		}
	}
	return s.normalizeFundamentals(results)
}

// persistFundamentals writes through the store with one retry after the
// fixed delay. The retry outcome is final.
func (s *Scheduler) persistFundamentals(ctx context.Context, recs []model.FundamentalRecord) (store.UpsertStats, error) {
	stats, err := s.store.UpsertFundamentals(ctx, recs)
	if err == nil {
		return stats, nil
	}
	zap.L().Warn("scheduler: persist failed, retrying once", zap.Error(err))
	if !sleepCtx(ctx, s.cfg.RetryDelay) {
		return stats, err
	}
	return s.store.UpsertFundamentals(ctx, recs)
}

// normalizeFundamentals turns each provider's raw payloads into partial
// canonical records, keeping registry order so the merge fold order is
// the registry order.
func (s *Scheduler) normalizeFundamentals(results []*provider.FetchResult) []merge.ProviderRecords {
	var sets []merge.ProviderRecords
	now := s.now()

	for _, res := range results {
		if res == nil {
			continue
		}
		table, ok := s.mappings.Table(res.Provider)
		if !ok {
			zap.L().Warn("scheduler: no mapping table for provider",
				zap.String("provider", res.Provider))
			continue
		}

		symbols := make([]string, 0, len(res.Payloads))
		for sym := range res.Payloads {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)

		set := merge.ProviderRecords{Provider: res.Provider}
		for _, sym := range symbols {
			if rec := normalize.Fundamentals(table, sym, res.Payloads[sym], now); rec != nil {
				set.Records = append(set.Records, rec)
			}
		}
		sets = append(sets, set)
	}
	return sets
}

// resolveFundamentalStatuses assigns each batch symbol its terminal
// status from the fetch results and the persist outcome.
func (s *Scheduler) resolveFundamentalStatuses(rep *Report, batch []string, results []*provider.FetchResult, merged []*model.FundamentalRecord, persistErr error) {
	rejected := make(map[string]string)
	for _, entry := range rep.Rejected {
		if sym, reason, ok := strings.Cut(entry, ": "); ok {
			rejected[sym] = reason
		}
	}

	mergedSet := make(map[string]bool, len(merged))
	for _, rec := range merged {
		mergedSet[rec.Symbol] = true
	}

	for _, sym := range batch {
		switch {
		case persistErr != nil && mergedSet[sym]:
			rep.setStatus(sym, model.StatusError, "persist failed")
		case rejected[sym] != "":
			rep.setStatus(sym, model.StatusError, rejected[sym])
		case mergedSet[sym]:
			rep.setStatus(sym, model.StatusSuccess, "")
		case firstFetchError(results, sym) != "":
			rep.setStatus(sym, model.StatusError, firstFetchError(results, sym))
		default:
			rep.setStatus(sym, model.StatusNoData, "")
		}
	}
}

// firstFetchError returns the first provider error recorded for a
// symbol, in registry order.
func firstFetchError(results []*provider.FetchResult, symbol string) string {
	for _, res := range results {
		if res == nil {
			continue
		}
		if msg, ok := res.Errors[symbol]; ok {
			return msg
		}
	}
	return ""
}

func (s *Scheduler) finalizeFundamentals(ctx context.Context, rep *Report, merged []*model.FundamentalRecord) {
	_ = rep.phase(PhaseReport, func() error {
		for _, rec := range merged {
			if len(rep.SampleFundamentals) >= sampleCap {
				break
			}
			rep.SampleFundamentals = append(rep.SampleFundamentals, rec)
		}
		rep.finish(s.now())

		reportJSON, err := json.Marshal(rep)
		if err != nil {
			return eris.Wrap(err, "scheduler: marshal report")
		}
		s.saveRun(ctx, rep, reportJSON)
		return nil
	})
	rep.finish(s.now())

	zap.L().Info("scheduler: fundamentals run complete",
		zap.String("run_id", rep.RunID),
		zap.Int("processed", rep.Processed),
		zap.Int("successful", rep.Succeeded),
		zap.Int("skipped", rep.Skipped),
		zap.Int("errors", rep.Failed),
		zap.Int("no_data", rep.NoData),
		zap.Int("records_saved", rep.RecordsSaved),
		zap.Float64("coverage", rep.CoverageAfter),
		zap.Int64("elapsed_ms", rep.ElapsedMS),
	)
}
