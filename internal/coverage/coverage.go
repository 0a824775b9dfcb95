// Package coverage measures how much of the audited canonical schema a
// batch actually filled, and interpolates the gaps from financial
// identities and sector averages when coverage falls short of target.
package coverage

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/fundsync/internal/model"
)

// Target is the coverage percentage below which interpolation runs.
const Target = 95.0

// GeneralSector is the bucket for records with no sector label.
const GeneralSector = "General"

// Ratio computes the batch coverage percentage: present audited values
// over (audit field count x record count).
func Ratio(records []*model.FundamentalRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	audit := model.AuditFields()
	present := 0
	for _, rec := range records {
		for _, field := range audit {
			if rec.Has(field) {
				present++
			}
		}
	}
	return float64(present) / float64(len(audit)*len(records)) * 100
}

// SectorTable holds per-sector averages of each ratio field, built once
// per run from the current batch. Cardinal-scale fields are excluded;
// averaging market caps across a sector is meaningless as a fill value.
type SectorTable map[string]map[string]float64

// SectorAverages groups the batch by sector (defaulting to GeneralSector)
// and averages each ratio field over present values only.
func SectorAverages(records []*model.FundamentalRecord) SectorTable {
	sums := make(map[string]map[string]float64)
	counts := make(map[string]map[string]int)

	for _, rec := range records {
		sector := rec.Sector
		if sector == "" {
			sector = GeneralSector
		}
		if sums[sector] == nil {
			sums[sector] = make(map[string]float64)
			counts[sector] = make(map[string]int)
		}
		for _, def := range model.FundamentalFields {
			if def.Kind == model.KindCardinal {
				continue
			}
			if v, ok := rec.Get(def.Name); ok {
				sums[sector][def.Name] += v
				counts[sector][def.Name]++
			}
		}
	}

	table := make(SectorTable, len(sums))
	for sector, fields := range sums {
		table[sector] = make(map[string]float64, len(fields))
		for field, sum := range fields {
			table[sector][field] = sum / float64(counts[sector][field])
		}
	}
	return table
}

// Lookup returns the average for a field in the record's sector, falling
// back to the General bucket.
func (t SectorTable) Lookup(sector, field string) (float64, bool) {
	if sector == "" {
		sector = GeneralSector
	}
	if avgs, ok := t[sector]; ok {
		if v, ok := avgs[field]; ok {
			return v, true
		}
	}
	if avgs, ok := t[GeneralSector]; ok {
		if v, ok := avgs[field]; ok {
			return v, true
		}
	}
	return 0, false
}

// Interpolate fills missing audited fields on each record, trying the
// identity chain first and the sector table second. Records that gain at
// least one field get the interpolated provenance tag, exactly once no
// matter how often Interpolate runs. Returns the number of fields filled.
func Interpolate(records []*model.FundamentalRecord, table SectorTable) int {
	filled := 0
	for _, rec := range records {
		recFilled := 0
		for _, field := range model.AuditFields() {
			if rec.Has(field) {
				continue
			}
			v, ok := deriveIdentity(rec, field)
			if !ok {
				v, ok = table.Lookup(rec.Sector, field)
			}
			if !ok {
				continue
			}
			if def, defOK := model.FieldByName(field); defOK && def.Kind == model.KindCardinal {
				v = math.Round(v)
			}
			rec.Set(field, v)
			recFilled++
		}
		if recFilled > 0 {
			rec.Provenance = model.AppendProvenance(rec.Provenance, model.InterpolatedTag)
			filled += recFilled
			zap.L().Debug("coverage: interpolated fields",
				zap.String("symbol", rec.Symbol),
				zap.Int("fields", recFilled),
			)
		}
	}
	return filled
}

// sectorBetas are fixed design parameters for the beta default, keyed by
// common provider sector labels.
var sectorBetas = map[string]float64{
	"Technology":             1.2,
	"Communication Services": 1.0,
	"Consumer Cyclical":      1.15,
	"Consumer Defensive":     0.7,
	"Energy":                 1.3,
	"Financial Services":     1.1,
	"Healthcare":             0.9,
	"Industrials":            1.05,
	"Basic Materials":        1.1,
	"Real Estate":            0.8,
	"Utilities":              0.6,
}

// deriveIdentity attempts to compute a missing field from other fields
// already present on the same record. The constants are fixed design
// parameters of the interpolation policy.
func deriveIdentity(rec *model.FundamentalRecord, field string) (float64, bool) {
	switch field {
	case "pe_ratio":
		mcap, ok1 := rec.Get("market_cap")
		shares, ok2 := rec.Get("shares_outstanding")
		eps, ok3 := rec.Get("eps")
		if ok1 && ok2 && ok3 && shares != 0 && eps != 0 {
			return mcap / shares / eps, true
		}
	case "roe":
		roa, ok1 := rec.Get("roa")
		de, ok2 := rec.Get("debt_to_equity")
		if ok1 && ok2 {
			return roa * (1 + de), true
		}
	case "roa":
		roe, ok1 := rec.Get("roe")
		de, ok2 := rec.Get("debt_to_equity")
		if ok1 && ok2 && de != -1 {
			return roe / (1 + de), true
		}
	case "net_margin":
		if om, ok := rec.Get("operating_margin"); ok {
			return om * 0.75, true
		}
	case "operating_margin":
		if gm, ok := rec.Get("gross_margin"); ok {
			return gm * 0.6, true
		}
	case "quick_ratio":
		if cr, ok := rec.Get("current_ratio"); ok {
			return cr * 0.8, true
		}
	case "roic":
		roa, ok1 := rec.Get("roa")
		de, ok2 := rec.Get("debt_to_equity")
		if ok1 && ok2 {
			return roa * (1 + de) * 0.85, true
		}
	case "enterprise_value":
		mcap, ok := rec.Get("market_cap")
		if !ok {
			break
		}
		if de, ok := rec.Get("debt_to_equity"); ok {
			return mcap * (1 + 0.5*de), true
		}
		return mcap * 1.1, true
	case "beta":
		if b, ok := sectorBetas[rec.Sector]; ok {
			return b, true
		}
		return 1.0, true
	}
	return 0, false
}
