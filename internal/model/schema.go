package model

// FieldKind selects the parser a canonical field's raw values are routed
// through during normalization.
type FieldKind string

const (
	// KindNumber is a plain numeric metric.
	KindNumber FieldKind = "number"
	// KindPercent is a ratio reported either as a fraction or in whole
	// percentage points; always stored as a fraction.
	KindPercent FieldKind = "percent"
	// KindCardinal is a whole-number scale metric (share counts, market
	// capitalization); always rounded to an integer.
	KindCardinal FieldKind = "cardinal"
)

// FieldDef describes one canonical field of a record family.
type FieldDef struct {
	Name  string
	Kind  FieldKind
	Audit bool // counted by the coverage computation
}

// FundamentalFields is the fixed canonical fundamentals schema, in column
// order. 18 of the 22 fields participate in the coverage audit.
var FundamentalFields = []FieldDef{
	// Valuation
	{Name: "pe_ratio", Kind: KindNumber, Audit: true},
	{Name: "pb_ratio", Kind: KindNumber, Audit: true},
	{Name: "ps_ratio", Kind: KindNumber, Audit: true},
	{Name: "peg_ratio", Kind: KindNumber},
	{Name: "ev_to_ebitda", Kind: KindNumber},
	// Profitability
	{Name: "roe", Kind: KindPercent, Audit: true},
	{Name: "roa", Kind: KindPercent, Audit: true},
	{Name: "roic", Kind: KindPercent, Audit: true},
	{Name: "gross_margin", Kind: KindPercent, Audit: true},
	{Name: "operating_margin", Kind: KindPercent, Audit: true},
	{Name: "net_margin", Kind: KindPercent, Audit: true},
	// Liquidity and leverage
	{Name: "current_ratio", Kind: KindNumber, Audit: true},
	{Name: "quick_ratio", Kind: KindNumber, Audit: true},
	{Name: "debt_to_equity", Kind: KindNumber, Audit: true},
	// Per-share
	{Name: "eps", Kind: KindNumber, Audit: true},
	{Name: "book_value_per_share", Kind: KindNumber},
	{Name: "revenue_per_share", Kind: KindNumber},
	// Market
	{Name: "market_cap", Kind: KindCardinal, Audit: true},
	{Name: "enterprise_value", Kind: KindCardinal, Audit: true},
	{Name: "shares_outstanding", Kind: KindCardinal, Audit: true},
	{Name: "beta", Kind: KindNumber, Audit: true},
	{Name: "dividend_yield", Kind: KindPercent, Audit: true},
}

// CashFlowFields is the canonical cash-flow column schema. Statement line
// items are dollar amounts, so every column is cardinal.
var CashFlowFields = []FieldDef{
	{Name: "operating_cash_flow", Kind: KindCardinal, Audit: true},
	{Name: "investing_cash_flow", Kind: KindCardinal, Audit: true},
	{Name: "financing_cash_flow", Kind: KindCardinal, Audit: true},
	{Name: "capital_expenditure", Kind: KindCardinal, Audit: true},
	{Name: "free_cash_flow", Kind: KindCardinal, Audit: true},
	{Name: "dividends_paid", Kind: KindCardinal},
	{Name: "stock_repurchase", Kind: KindCardinal},
	{Name: "debt_repayment", Kind: KindCardinal},
	{Name: "net_change_in_cash", Kind: KindCardinal},
}

// FieldByName returns the definition for a canonical fundamentals field.
func FieldByName(name string) (FieldDef, bool) {
	for _, f := range FundamentalFields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// AuditFields returns the names of the audited fundamentals fields.
func AuditFields() []string {
	var out []string
	for _, f := range FundamentalFields {
		if f.Audit {
			out = append(out, f.Name)
		}
	}
	return out
}

// CardinalFields returns the names of the cardinal-scale fields in defs.
func CardinalFields(defs []FieldDef) []string {
	var out []string
	for _, f := range defs {
		if f.Kind == KindCardinal {
			out = append(out, f.Name)
		}
	}
	return out
}
