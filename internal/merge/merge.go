// Package merge reconciles the partial records produced by each provider
// into one canonical record per symbol (or per symbol/period for
// statements). The conflict policy is first-non-null-wins: providers are
// folded left to right and a later provider contributes a field only when
// the running merged value is still absent. It is deliberately not
// "most recent wins" and not an average, so merge output depends only on
// fold order.
package merge

import (
	"math"
	"sort"

	"github.com/sells-group/fundsync/internal/model"
)

// ProviderRecords is one provider's partial fundamentals output, tagged
// with its source name.
type ProviderRecords struct {
	Provider string
	Records  []*model.FundamentalRecord
}

// ProviderStatements is one provider's partial cash-flow output.
type ProviderStatements struct {
	Provider string
	Records  []*model.CashFlowRecord
}

// Strategy controls the fold order across providers.
type Strategy struct {
	// Priority lists providers to fold first, in order. Providers not
	// listed keep their registry order after the listed ones. An empty
	// priority is plain first-non-null-wins in registry order.
	Priority []string
}

// FirstNonNull is the default strategy: fold in the order given.
var FirstNonNull = Strategy{}

// PreferProviders returns a strategy folding the named providers first.
func PreferProviders(names ...string) Strategy {
	return Strategy{Priority: names}
}

func (s Strategy) rank(provider string) int {
	for i, name := range s.Priority {
		if name == provider {
			return i
		}
	}
	return len(s.Priority)
}

// Fundamentals merges per-provider fundamentals into one record per
// symbol. Output order follows first appearance of each symbol.
func Fundamentals(sets []ProviderRecords, strategy Strategy) []*model.FundamentalRecord {
	sets = orderSets(sets, strategy)

	merged := make(map[string]*model.FundamentalRecord)
	var order []string

	for _, set := range sets {
		for _, rec := range set.Records {
			if rec == nil {
				continue
			}
			base, ok := merged[rec.Symbol]
			if !ok {
				merged[rec.Symbol] = foldFundamental(cloneFundamental(rec), nil)
				order = append(order, rec.Symbol)
				continue
			}
			merged[rec.Symbol] = foldFundamental(base, rec)
		}
	}

	out := make([]*model.FundamentalRecord, 0, len(order))
	for _, sym := range order {
		out = append(out, merged[sym])
	}
	return out
}

// CashFlows merges per-provider statement records, grouped by
// symbol + fiscal date + frequency.
func CashFlows(sets []ProviderStatements, strategy Strategy) []*model.CashFlowRecord {
	ordered := make([]ProviderStatements, len(sets))
	copy(ordered, sets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return strategy.rank(ordered[i].Provider) < strategy.rank(ordered[j].Provider)
	})

	merged := make(map[string]*model.CashFlowRecord)
	var order []string

	for _, set := range ordered {
		for _, rec := range set.Records {
			if rec == nil {
				continue
			}
			key := rec.Key()
			base, ok := merged[key]
			if !ok {
				merged[key] = cloneCashFlow(rec)
				order = append(order, key)
				continue
			}
			foldCashFlow(base, rec)
		}
	}

	out := make([]*model.CashFlowRecord, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	return out
}

func orderSets(sets []ProviderRecords, strategy Strategy) []ProviderRecords {
	ordered := make([]ProviderRecords, len(sets))
	copy(ordered, sets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return strategy.rank(ordered[i].Provider) < strategy.rank(ordered[j].Provider)
	})
	return ordered
}

// foldFundamental merges next into base. A field is taken from next only
// when base does not hold it yet; cardinal fields are rounded at the
// moment of the write regardless of supplier.
func foldFundamental(base, next *model.FundamentalRecord) *model.FundamentalRecord {
	if next == nil {
		return base
	}

	contributed := false
	for _, def := range model.FundamentalFields {
		if base.Has(def.Name) {
			continue
		}
		v, ok := next.Get(def.Name)
		if !ok {
			continue
		}
		if def.Kind == model.KindCardinal {
			v = math.Round(v)
		}
		base.Set(def.Name, v)
		contributed = true
	}

	if base.Sector == "" && next.Sector != "" {
		base.Sector = next.Sector
		contributed = true
	}

	if contributed {
		for _, tag := range model.ProvenanceTags(next.Provenance) {
			base.Provenance = model.AppendProvenance(base.Provenance, tag)
		}
	}
	return base
}

func foldCashFlow(base, next *model.CashFlowRecord) {
	contributed := false
	for _, def := range model.CashFlowFields {
		if _, ok := base.Get(def.Name); ok {
			continue
		}
		v, ok := next.Get(def.Name)
		if !ok {
			continue
		}
		base.Set(def.Name, math.Round(v))
		contributed = true
	}
	if contributed {
		for _, tag := range model.ProvenanceTags(next.Provenance) {
			base.Provenance = model.AppendProvenance(base.Provenance, tag)
		}
	}
}

func cloneFundamental(rec *model.FundamentalRecord) *model.FundamentalRecord {
	out := *rec
	out.Values = make(map[string]float64, len(rec.Values))
	for _, def := range model.FundamentalFields {
		if v, ok := rec.Get(def.Name); ok {
			if def.Kind == model.KindCardinal {
				v = math.Round(v)
			}
			out.Values[def.Name] = v
		}
	}
	return &out
}

func cloneCashFlow(rec *model.CashFlowRecord) *model.CashFlowRecord {
	out := *rec
	out.Values = make(map[string]float64, len(rec.Values))
	for k, v := range rec.Values {
		out.Values[k] = math.Round(v)
	}
	return &out
}
