package scheduler

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fundsync/internal/merge"
	"github.com/sells-group/fundsync/internal/model"
	"github.com/sells-group/fundsync/internal/normalize"
	"github.com/sells-group/fundsync/internal/provider"
	"github.com/sells-group/fundsync/internal/store"
)

// RunCashFlow executes one statement ingestion run: the quarterly pass
// runs to completion before the annual pass starts, never interleaved.
// Periods already stored within the freshness window are dropped before
// persisting and counted as prevented duplicates.
func (s *Scheduler) RunCashFlow(ctx context.Context, opts Options) (*Report, error) {
	rep := newReport(newRunID(), model.RunKindCashFlow, s.now())
	log := zap.L().With(zap.String("run_id", rep.RunID))
	log.Info("scheduler: cash flow run starting",
		zap.Int("explicit_symbols", len(opts.Symbols)),
		zap.Bool("skip_quarterly", opts.SkipQuarterly),
		zap.Bool("skip_annual", opts.SkipAnnual),
	)

	adapters := s.registry.Enabled()
	if len(adapters) == 0 {
		log.Warn("scheduler: no providers enabled for statement run")
		rep.finish(s.now())
		return rep, nil
	}

	var frequencies []model.Frequency
	if !opts.SkipQuarterly {
		frequencies = append(frequencies, model.FrequencyQuarterly)
	}
	if !opts.SkipAnnual {
		frequencies = append(frequencies, model.FrequencyAnnual)
	}
	if len(frequencies) == 0 {
		rep.finish(s.now())
		return rep, nil
	}

	var batch []string
	if err := rep.phase(PhaseSelectBatch, func() error {
		var err error
		batch, err = s.selectBatch(ctx, opts, rep, s.cfg.StatementsBatch,
			s.cfg.StatementsFreshness, s.cashFlowRecent(frequencies))
		return err
	}); err != nil {
		rep.Success = false
		rep.finish(s.now())
		return rep, err
	}

	if len(batch) == 0 {
		log.Info("scheduler: nothing to do, all symbols fresh or batch empty")
		s.finalizeCashFlow(ctx, rep)
		return rep, nil
	}

	for _, freq := range frequencies {
		s.runCashFlowPass(ctx, rep, adapters, batch, freq)
	}

	s.finalizeCashFlow(ctx, rep)
	return rep, nil
}

// runCashFlowPass fetches, normalizes, merges, guards and persists one
// frequency end to end.
func (s *Scheduler) runCashFlowPass(ctx context.Context, rep *Report, adapters []provider.Adapter, batch []string, freq model.Frequency) {
	var results []*provider.StatementResult
	_ = rep.phase(PhaseFetch, func() error {
		results = s.fanOutStatements(ctx, adapters, batch, freq)
		return nil
	})

	var sets []merge.ProviderStatements
	_ = rep.phase(PhaseNormalize, func() error {
		sets = s.normalizeStatements(results, freq)
		return nil
	})

	var merged []*model.CashFlowRecord
	_ = rep.phase(PhaseMerge, func() error {
		merged = merge.CashFlows(sets, s.cfg.Strategy)
		return nil
	})

	var writable []*model.CashFlowRecord
	_ = rep.phase(PhaseValidate, func() error {
		writable = s.dropFreshPeriods(ctx, rep, merged, freq)
		return nil
	})

	persistErr := rep.phase(PhasePersist, func() error {
		recs := make([]model.CashFlowRecord, 0, len(writable))
		for _, rec := range writable {
			recs = append(recs, *rec)
		}
		stats, err := s.persistCashFlows(ctx, recs)
		rep.RecordsSaved += stats.Saved
		rep.DuplicatesPrevented += stats.Duplicates
		rep.Rejected = append(rep.Rejected, stats.Rejected...)
		return err
	})

	s.resolveCashFlowStatuses(rep, batch, results, merged, writable, persistErr)

	for _, rec := range writable {
		if len(rep.SampleCashFlows) >= sampleCap {
			break
		}
		rep.SampleCashFlows = append(rep.SampleCashFlows, rec)
	}
}

// dropFreshPeriods consults the stored-period guard per symbol and drops
// merged records whose fiscal date was written within the freshness
// window. Dropped periods count as prevented duplicates.
func (s *Scheduler) dropFreshPeriods(ctx context.Context, rep *Report, merged []*model.CashFlowRecord, freq model.Frequency) []*model.CashFlowRecord {
	since := s.now().Add(-s.cfg.StatementsFreshness)
	storedBySymbol := make(map[string]map[string]bool)

	var out []*model.CashFlowRecord
	for _, rec := range merged {
		stored, ok := storedBySymbol[rec.Symbol]
		if !ok {
			dates, err := s.store.StoredCashFlowPeriods(ctx, rec.Symbol, freq, since)
			if err != nil {
				zap.L().Warn("scheduler: stored-period guard unavailable",
					zap.String("symbol", rec.Symbol), zap.Error(err))
				dates = nil
			}
			stored = make(map[string]bool, len(dates))
			for _, d := range dates {
				stored[d] = true
			}
			storedBySymbol[rec.Symbol] = stored
		}
		if stored[rec.FiscalDate] {
			rep.DuplicatesPrevented++
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (s *Scheduler) persistCashFlows(ctx context.Context, recs []model.CashFlowRecord) (store.UpsertStats, error) {
	stats, err := s.store.UpsertCashFlows(ctx, recs)
	if err == nil {
		return stats, nil
	}
	zap.L().Warn("scheduler: statement persist failed, retrying once", zap.Error(err))
	if !sleepCtx(ctx, s.cfg.RetryDelay) {
		return stats, err
	}
	return s.store.UpsertCashFlows(ctx, recs)
}

func (s *Scheduler) normalizeStatements(results []*provider.StatementResult, freq model.Frequency) []merge.ProviderStatements {
	var sets []merge.ProviderStatements
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

		symbols := make([]string, 0, len(res.Statements))
		for sym := range res.Statements {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)

		set := merge.ProviderStatements{Provider: res.Provider}
		for _, sym := range symbols {
			for _, stmt := range res.Statements[sym] {
				if rec := normalize.CashFlow(table, sym, freq, stmt, now); rec != nil {
					set.Records = append(set.Records, rec)
				}
			}
		}
		sets = append(sets, set)
	}
	return sets
}

// resolveCashFlowStatuses folds one frequency pass into the per-symbol
// statuses. A symbol that persisted periods in any pass is a success;
// all-fresh periods count as skipped.
func (s *Scheduler) resolveCashFlowStatuses(rep *Report, batch []string, results []*provider.StatementResult, merged, writable []*model.CashFlowRecord, persistErr error) {
	mergedSyms := make(map[string]bool)
	for _, rec := range merged {
		mergedSyms[rec.Symbol] = true
	}
	writableSyms := make(map[string]bool)
	for _, rec := range writable {
		writableSyms[rec.Symbol] = true
	}

	for _, sym := range batch {
		switch {
		case persistErr != nil && writableSyms[sym]:
			rep.setStatus(sym, model.StatusError, "persist failed")
		case writableSyms[sym]:
			rep.setStatus(sym, model.StatusSuccess, "")
		case mergedSyms[sym]:
			rep.setStatus(sym, model.StatusSkipped, "all periods fresh")
		case firstStatementError(results, sym) != "":
			rep.setStatus(sym, model.StatusError, firstStatementError(results, sym))
		default:
			rep.setStatus(sym, model.StatusNoData, "")
		}
	}
}

func firstStatementError(results []*provider.StatementResult, symbol string) string {
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

func (s *Scheduler) finalizeCashFlow(ctx context.Context, rep *Report) {
	_ = rep.phase(PhaseReport, func() error {
		rep.finish(s.now())
		reportJSON, err := json.Marshal(rep)
		if err != nil {
			return eris.Wrap(err, "scheduler: marshal report")
		}
		s.saveRun(ctx, rep, reportJSON)
		return nil
	})
	rep.finish(s.now())

	zap.L().Info("scheduler: cash flow run complete",
		zap.String("run_id", rep.RunID),
		zap.Int("processed", rep.Processed),
		zap.Int("successful", rep.Succeeded),
		zap.Int("records_saved", rep.RecordsSaved),
		zap.Int("duplicates_prevented", rep.DuplicatesPrevented),
		zap.Int64("elapsed_ms", rep.ElapsedMS),
	)
}
