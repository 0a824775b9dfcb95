package model

import "regexp"

// SymbolStatus is the terminal per-symbol outcome of an ingestion phase.
type SymbolStatus string

const (
	StatusSuccess SymbolStatus = "success"
	StatusSkipped SymbolStatus = "skipped"
	StatusError   SymbolStatus = "error"
	StatusNoData  SymbolStatus = "no_data"
)

// symbolRe accepts uppercase alphanumeric tickers with optional class or
// exchange separators, e.g. "BRK.B" or "RDS-A".
var symbolRe = regexp.MustCompile(`^[A-Z0-9.\-]{1,10}$`)

// ValidSymbol reports whether s is a well-formed ticker symbol.
func ValidSymbol(s string) bool {
	return symbolRe.MatchString(s)
}
