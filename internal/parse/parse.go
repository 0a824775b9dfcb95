// Package parse converts raw provider scalars into typed numbers.
// Providers disagree wildly on formatting: "$1,234.5M", "12.5%", "N/A",
// bare floats, or JSON numbers. Every parser returns an explicit
// present/absent flag instead of coercing bad input to zero.
package parse

import (
	"math"
	"strconv"
	"strings"
)

// absentTokens are the sentinel strings providers use for "no data".
var absentTokens = map[string]bool{
	"":     true,
	"n/a":  true,
	"none": true,
	"-":    true,
	"null": true,
}

// Number parses an arbitrary raw scalar into a float64. It returns
// ok=false for nil, sentinel tokens, unparseable strings, and non-finite
// results. Thousands separators, "$" and "%" are stripped; trailing
// K/M/B unit suffixes scale by 1e3/1e6/1e9.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		return parseString(n)
	default:
		return 0, false
	}
}

// Percent parses percentage-kind fields into fractions. The whole-point
// heuristic is deliberate policy: a "%" in the raw string always means
// whole points, and a bare numeric magnitude above 1 is assumed to be
// whole points too (providers report "45" for 45%). Values already in
// [-1, 1] pass through unchanged.
func Percent(v any) (float64, bool) {
	hadPercent := false
	if s, ok := v.(string); ok && strings.Contains(s, "%") {
		hadPercent = true
	}
	f, ok := Number(v)
	if !ok {
		return 0, false
	}
	if hadPercent || math.Abs(f) > 1 {
		return f / 100, true
	}
	return f, true
}

// Cardinal parses whole-number scale fields (market capitalization,
// enterprise value, share counts) and rounds to the nearest integer so
// they are always whole numbers on persistence.
func Cardinal(v any) (float64, bool) {
	f, ok := Number(v)
	if !ok {
		return 0, false
	}
	return math.Round(f), true
}

func parseString(s string) (float64, bool) {
	trimmed := strings.TrimSpace(s)
	if absentTokens[strings.ToLower(trimmed)] {
		return 0, false
	}

	cleaned := strings.NewReplacer(",", "", "$", "", "%", "").Replace(trimmed)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, false
	}

	scale := 1.0
	switch {
	case strings.HasSuffix(cleaned, "K"), strings.HasSuffix(cleaned, "k"):
		scale, cleaned = 1e3, cleaned[:len(cleaned)-1]
	case strings.HasSuffix(cleaned, "M"), strings.HasSuffix(cleaned, "m"):
		scale, cleaned = 1e6, cleaned[:len(cleaned)-1]
	case strings.HasSuffix(cleaned, "B"), strings.HasSuffix(cleaned, "b"):
		scale, cleaned = 1e9, cleaned[:len(cleaned)-1]
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return finite(f * scale)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
