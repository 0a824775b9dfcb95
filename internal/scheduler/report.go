package scheduler

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/fundsync/internal/model"
)

// Phase names, in fixed execution order.
const (
	PhaseSelectBatch = "select_batch"
	PhaseFetch       = "fetch"
	PhaseNormalize   = "normalize"
	PhaseMerge       = "merge"
	PhaseValidate    = "validate"
	PhasePersist     = "persist"
	PhaseReport      = "report"
)

// sampleCap bounds how many per-symbol records a report carries back to
// the caller.
const sampleCap = 5

// PhaseResult summarizes one executed phase.
type PhaseResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Report is the full outcome of one scheduler run. Per-symbol failures
// live inside it as data; Success only drops for run-level faults.
type Report struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	Success    bool      `json:"success"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ElapsedMS  int64     `json:"elapsed_ms"`

	Processed int `json:"processed"`
	Succeeded int `json:"successful"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"errors"`
	NoData    int `json:"no_data"`

	RecordsSaved        int      `json:"records_saved"`
	DuplicatesPrevented int      `json:"duplicates_prevented"`
	Rejected            []string `json:"rejected,omitempty"`
	Deferred            []string `json:"deferred,omitempty"`

	CoverageBefore     float64 `json:"coverage_before,omitempty"`
	CoverageAfter      float64 `json:"coverage_after,omitempty"`
	InterpolatedFields int     `json:"interpolated_fields,omitempty"`

	Statuses map[string]model.SymbolStatus `json:"statuses"`
	Reasons  map[string]string             `json:"reasons,omitempty"`

	Phases []PhaseResult `json:"phases"`

	SampleFundamentals []*model.FundamentalRecord `json:"sample_fundamentals,omitempty"`
	SampleCashFlows    []*model.CashFlowRecord    `json:"sample_cash_flows,omitempty"`
}

func newReport(id, kind string, startedAt time.Time) *Report {
	return &Report{
		RunID:     id,
		Kind:      kind,
		Success:   true,
		StartedAt: startedAt,
		Statuses:  make(map[string]model.SymbolStatus),
		Reasons:   make(map[string]string),
	}
}

// setStatus records a symbol's terminal status. An existing success is
// never downgraded; a retry outcome otherwise overwrites.
func (r *Report) setStatus(symbol string, status model.SymbolStatus, reason string) {
	if r.Statuses[symbol] == model.StatusSuccess {
		return
	}
	r.Statuses[symbol] = status
	if reason != "" {
		r.Reasons[symbol] = reason
	} else {
		delete(r.Reasons, symbol)
	}
}

// tally recomputes the per-status counters from the status map.
func (r *Report) tally() {
	r.Processed, r.Succeeded, r.Skipped, r.Failed, r.NoData = 0, 0, 0, 0, 0
	for _, status := range r.Statuses {
		r.Processed++
		switch status {
		case model.StatusSuccess:
			r.Succeeded++
		case model.StatusSkipped:
			r.Skipped++
		case model.StatusError:
			r.Failed++
		case model.StatusNoData:
			r.NoData++
		}
	}
}

// phase runs fn, timing it and recording the outcome. The returned error
// is fn's error, for callers where a phase failure aborts the run.
func (r *Report) phase(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	pr := PhaseResult{
		Name:       name,
		Status:     "complete",
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		pr.Status = "failed"
		pr.Error = err.Error()
		zap.L().Error("scheduler: phase failed",
			zap.String("run_id", r.RunID),
			zap.String("phase", name),
			zap.Error(err),
		)
	} else {
		zap.L().Info("scheduler: phase complete",
			zap.String("run_id", r.RunID),
			zap.String("phase", name),
			zap.Int64("duration_ms", pr.DurationMS),
		)
	}
	r.Phases = append(r.Phases, pr)
	return err
}

func (r *Report) finish(now time.Time) {
	r.FinishedAt = now
	r.ElapsedMS = now.Sub(r.StartedAt).Milliseconds()
	r.tally()
}
