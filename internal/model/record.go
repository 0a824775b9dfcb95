// Package model defines the canonical record schema shared by the
// ingestion pipeline: provider payloads in, merged records out.
package model

import "time"

// RawPayload is an untyped provider response. It only exists between the
// adapter and the normalizer and is never persisted.
type RawPayload map[string]any

// PeriodKindSnapshot marks point-in-time fundamentals (as opposed to
// fiscal-period statement rows).
const PeriodKindSnapshot = "snapshot"

// Frequency selects annual or quarterly statement periods.
type Frequency string

const (
	FrequencyAnnual    Frequency = "annual"
	FrequencyQuarterly Frequency = "quarterly"
)

// FundamentalRecord is the canonical per-symbol fundamentals snapshot.
// A field is absent when its key is missing from Values; zero is a real value.
type FundamentalRecord struct {
	Symbol       string             `json:"symbol"`
	Sector       string             `json:"sector,omitempty"`
	PeriodKind   string             `json:"period_kind"`
	FiscalPeriod string             `json:"fiscal_period"`
	Provenance   string             `json:"provenance"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Values       map[string]float64 `json:"values"`
}

// Get returns the value for a canonical field and whether it is present.
func (r *FundamentalRecord) Get(field string) (float64, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// Set writes a canonical field value, allocating the map on first use.
func (r *FundamentalRecord) Set(field string, v float64) {
	if r.Values == nil {
		r.Values = make(map[string]float64)
	}
	r.Values[field] = v
}

// Has reports whether the field holds a value.
func (r *FundamentalRecord) Has(field string) bool {
	_, ok := r.Values[field]
	return ok
}

// CashFlowRecord is one canonical cash-flow statement period for a symbol.
type CashFlowRecord struct {
	Symbol     string             `json:"symbol"`
	Frequency  Frequency          `json:"frequency"`
	FiscalDate string             `json:"fiscal_date"`
	Provenance string             `json:"provenance"`
	UpdatedAt  time.Time          `json:"updated_at"`
	Values     map[string]float64 `json:"values"`
}

// Get returns the value for a canonical column and whether it is present.
func (r *CashFlowRecord) Get(field string) (float64, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// Set writes a canonical column value, allocating the map on first use.
func (r *CashFlowRecord) Set(field string, v float64) {
	if r.Values == nil {
		r.Values = make(map[string]float64)
	}
	r.Values[field] = v
}

// Key returns the composite natural key used for upsert conflict detection.
func (r *CashFlowRecord) Key() string {
	return r.Symbol + "|" + string(r.Frequency) + "|" + r.FiscalDate
}
