// Package provider implements the upstream data-source adapters. Each
// adapter knows one provider's endpoints, authentication, rate budget and
// batch cap, and returns raw unparsed payloads. Adapters are pure I/O:
// they never touch storage and never fail a whole batch for one symbol.
package provider

import (
	"context"

	"github.com/sells-group/fundsync/internal/model"
)

// FetchResult is one adapter's raw fundamentals output for a batch. Every
// requested symbol lands in exactly one of Payloads, NoData or Errors.
type FetchResult struct {
	Provider string
	Payloads map[string]model.RawPayload
	NoData   []string
	Errors   map[string]string
}

// StatementResult is one adapter's raw statement output for a batch.
type StatementResult struct {
	Provider   string
	Statements map[string][]model.StatementPayload
	NoData     []string
	Errors     map[string]string
}

// Adapter is the contract every upstream source implements. A nil result
// with a nil error from either fetch method means the provider is
// disabled (no API key configured); callers must not treat that as a
// failure.
type Adapter interface {
	// Name is the provenance tag this adapter contributes.
	Name() string
	// Enabled reports whether the adapter has credentials to run.
	Enabled() bool
	// BatchCap is the hard per-invocation symbol limit reflecting the
	// provider's rate budget.
	BatchCap() int
	// FetchFundamentals retrieves raw fundamentals payloads.
	FetchFundamentals(ctx context.Context, symbols []string) (*FetchResult, error)
	// FetchCashFlow retrieves raw statement periods at the given frequency.
	FetchCashFlow(ctx context.Context, symbols []string, freq model.Frequency) (*StatementResult, error)
}

// QuarterlyFundamentals is implemented by adapters that can serve a
// quarterly ratio supplement, used to backfill coverage when the primary
// fundamentals endpoints leave gaps.
type QuarterlyFundamentals interface {
	FetchQuarterlyFundamentals(ctx context.Context, symbols []string) (*FetchResult, error)
}

// Registry holds the configured adapters in a fixed, deterministic order.
// The order doubles as the default merge fold order, so it is part of the
// reconciliation policy, not a detail.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry preserving the given adapter order.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Enabled returns the adapters that have credentials, in registry order.
func (r *Registry) Enabled() []Adapter {
	var out []Adapter
	for _, a := range r.adapters {
		if a.Enabled() {
			out = append(out, a)
		}
	}
	return out
}

// All returns every registered adapter in order.
func (r *Registry) All() []Adapter {
	return r.adapters
}

// Get returns an adapter by name, or nil.
func (r *Registry) Get(name string) Adapter {
	for _, a := range r.adapters {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

func newFetchResult(provider string) *FetchResult {
	return &FetchResult{
		Provider: provider,
		Payloads: make(map[string]model.RawPayload),
		Errors:   make(map[string]string),
	}
}

func newStatementResult(provider string) *StatementResult {
	return &StatementResult{
		Provider:   provider,
		Statements: make(map[string][]model.StatementPayload),
		Errors:     make(map[string]string),
	}
}

// capSymbols enforces an adapter's hard batch cap.
func capSymbols(symbols []string, cap int) []string {
	if cap > 0 && len(symbols) > cap {
		return symbols[:cap]
	}
	return symbols
}
