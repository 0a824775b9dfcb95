package provider

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/sells-group/fundsync/internal/model"
)

// YahooConfig configures the Yahoo Finance adapter. The endpoint is
// keyless; Disabled turns the adapter off without removing it from the
// registry order.
type YahooConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Disabled bool   `yaml:"disabled" mapstructure:"disabled"`
}

// Yahoo serves quoteSummary module payloads (nested {raw, fmt} envelopes)
// and a cash-flow breakdown matrix keyed by fiscal date. It tolerates the
// largest batches of the four providers.
type Yahoo struct {
	cfg    YahooConfig
	client *client
}

// NewYahoo creates the adapter. BaseURL defaults to the public query host.
func NewYahoo(cfg YahooConfig) *Yahoo {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query1.finance.yahoo.com"
	}
	return &Yahoo{
		cfg:    cfg,
		client: newClient("yahoo", rate.Limit(2), 4),
	}
}

func (y *Yahoo) Name() string  { return "yahoo" }
func (y *Yahoo) Enabled() bool { return !y.cfg.Disabled }
func (y *Yahoo) BatchCap() int { return 50 }

const yahooModules = "defaultKeyStatistics,financialData,summaryDetail,assetProfile"

// FetchFundamentals pulls the quoteSummary modules and flattens the
// nested {raw, fmt} value envelopes into a single raw payload. Scalars
// stay unparsed; only the envelope structure is unwrapped.
func (y *Yahoo) FetchFundamentals(ctx context.Context, symbols []string) (*FetchResult, error) {
	if !y.Enabled() {
		return nil, nil
	}
	result := newFetchResult(y.Name())

	for _, symbol := range capSymbols(symbols, y.BatchCap()) {
		endpoint := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=%s",
			y.cfg.BaseURL, url.PathEscape(symbol), yahooModules)

		body, err := y.client.getJSON(ctx, endpoint)
		if err != nil {
			result.Errors[symbol] = err.Error()
			continue
		}

		payload := flattenQuoteSummary(body)
		if len(payload) == 0 {
			result.NoData = append(result.NoData, symbol)
			continue
		}
		result.Payloads[symbol] = payload
	}

	return result, nil
}

// FetchCashFlow pulls the statement breakdown matrix: an object keyed by
// fiscal date whose values are row-label maps.
func (y *Yahoo) FetchCashFlow(ctx context.Context, symbols []string, freq model.Frequency) (*StatementResult, error) {
	if !y.Enabled() {
		return nil, nil
	}
	result := newStatementResult(y.Name())

	for _, symbol := range capSymbols(symbols, y.BatchCap()) {
		endpoint := fmt.Sprintf("%s/v1/finance/cashflow/%s?frequency=%s",
			y.cfg.BaseURL, url.PathEscape(symbol), freq)

		body, err := y.client.getJSON(ctx, endpoint)
		if err != nil {
			result.Errors[symbol] = err.Error()
			continue
		}
		matrix, ok := asObject(body)
		if !ok || len(matrix) == 0 {
			result.NoData = append(result.NoData, symbol)
			continue
		}

		var stmts []model.StatementPayload
		for fiscalDate, rows := range matrix {
			rowMap, ok := asObject(rows)
			if !ok {
				continue
			}
			stmts = append(stmts, model.StatementPayload{
				FiscalDate: fiscalDate,
				Rows:       model.RawPayload(rowMap),
			})
		}
		if len(stmts) == 0 {
			result.NoData = append(result.NoData, symbol)
			continue
		}
		result.Statements[symbol] = stmts
	}

	return result, nil
}

// flattenQuoteSummary unwraps quoteSummary.result[0].<module>.<key> into
// a flat payload. Values that are {raw, fmt} envelopes contribute their
// raw member; plain scalars pass through.
func flattenQuoteSummary(body any) model.RawPayload {
	obj, ok := asObject(body)
	if !ok {
		return nil
	}
	qs, ok := asObject(obj["quoteSummary"])
	if !ok {
		return nil
	}
	results, ok := asList(qs["result"])
	if !ok || len(results) == 0 {
		return nil
	}

	payload := make(model.RawPayload)
	for _, module := range results[0] {
		moduleObj, ok := asObject(module)
		if !ok {
			continue
		}
		for key, value := range moduleObj {
			if _, exists := payload[key]; exists {
				continue
			}
			if env, ok := asObject(value); ok {
				if raw, ok := env["raw"]; ok {
					payload[key] = raw
					continue
				}
				continue // nested non-envelope objects are not scalar fields
			}
			payload[key] = value
		}
	}
	return payload
}
