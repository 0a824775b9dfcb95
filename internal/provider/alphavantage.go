package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/fundsync/internal/model"
)

// AlphaVantageConfig configures the Alpha Vantage adapter.
type AlphaVantageConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AlphaVantage serves flat keyed-object OVERVIEW payloads and CASH_FLOW
// report lists. The free tier allows 5 requests/minute, hence the small
// batch cap and the conservative limiter.
type AlphaVantage struct {
	cfg    AlphaVantageConfig
	client *client
}

// NewAlphaVantage creates the adapter. BaseURL defaults to the public API.
func NewAlphaVantage(cfg AlphaVantageConfig) *AlphaVantage {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.alphavantage.co"
	}
	return &AlphaVantage{
		cfg:    cfg,
		client: newClient("alphavantage", rate.Every(12*time.Second), 1),
	}
}

func (a *AlphaVantage) Name() string  { return "alphavantage" }
func (a *AlphaVantage) Enabled() bool { return a.cfg.APIKey != "" }
func (a *AlphaVantage) BatchCap() int { return 10 }

// FetchFundamentals pulls one OVERVIEW payload per symbol.
func (a *AlphaVantage) FetchFundamentals(ctx context.Context, symbols []string) (*FetchResult, error) {
	if !a.Enabled() {
		return nil, nil
	}
	result := newFetchResult(a.Name())

	for _, symbol := range capSymbols(symbols, a.BatchCap()) {
		endpoint := fmt.Sprintf("%s/query?function=OVERVIEW&symbol=%s&apikey=%s",
			a.cfg.BaseURL, url.QueryEscape(symbol), a.cfg.APIKey)

		payload, err := a.client.getJSON(ctx, endpoint)
		if err != nil {
			result.Errors[symbol] = err.Error()
			continue
		}
		obj, ok := asObject(payload)
		if !ok || len(obj) == 0 {
			result.NoData = append(result.NoData, symbol)
			continue
		}
		result.Payloads[symbol] = model.RawPayload(obj)
	}

	return result, nil
}

// FetchCashFlow pulls CASH_FLOW reports and reshapes each report into a
// statement period; the report keys double as breakdown labels.
func (a *AlphaVantage) FetchCashFlow(ctx context.Context, symbols []string, freq model.Frequency) (*StatementResult, error) {
	if !a.Enabled() {
		return nil, nil
	}
	result := newStatementResult(a.Name())

	reportKey := "annualReports"
	if freq == model.FrequencyQuarterly {
		reportKey = "quarterlyReports"
	}

	for _, symbol := range capSymbols(symbols, a.BatchCap()) {
		endpoint := fmt.Sprintf("%s/query?function=CASH_FLOW&symbol=%s&apikey=%s",
			a.cfg.BaseURL, url.QueryEscape(symbol), a.cfg.APIKey)

		payload, err := a.client.getJSON(ctx, endpoint)
		if err != nil {
			result.Errors[symbol] = err.Error()
			continue
		}
		obj, ok := asObject(payload)
		if !ok {
			result.NoData = append(result.NoData, symbol)
			continue
		}
		reports, ok := asList(obj[reportKey])
		if !ok || len(reports) == 0 {
			result.NoData = append(result.NoData, symbol)
			continue
		}

		var stmts []model.StatementPayload
		for _, report := range reports {
			fiscalDate, _ := report["fiscalDateEnding"].(string)
			if fiscalDate == "" {
				zap.L().Debug("alphavantage: report missing fiscalDateEnding",
					zap.String("symbol", symbol))
				continue
			}
			rows := make(model.RawPayload, len(report))
			for k, v := range report {
				if k == "fiscalDateEnding" || k == "reportedCurrency" {
					continue
				}
				rows[k] = v
			}
			stmts = append(stmts, model.StatementPayload{FiscalDate: fiscalDate, Rows: rows})
		}
		if len(stmts) == 0 {
			result.NoData = append(result.NoData, symbol)
			continue
		}
		result.Statements[symbol] = stmts
	}

	return result, nil
}
