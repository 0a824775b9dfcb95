package provider

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/sells-group/fundsync/internal/model"
)

// FinnhubConfig configures the Finnhub adapter.
type FinnhubConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// Finnhub serves a keyed-object metric response plus a company profile
// for the sector label. It offers no statement endpoint, so cash-flow
// requests report no_data rather than errors.
type Finnhub struct {
	cfg    FinnhubConfig
	client *client
}

// NewFinnhub creates the adapter. BaseURL defaults to the v1 API.
func NewFinnhub(cfg FinnhubConfig) *Finnhub {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://finnhub.io/api/v1"
	}
	return &Finnhub{
		cfg:    cfg,
		client: newClient("finnhub", rate.Limit(1), 2),
	}
}

func (f *Finnhub) Name() string  { return "finnhub" }
func (f *Finnhub) Enabled() bool { return f.cfg.APIKey != "" }
func (f *Finnhub) BatchCap() int { return 30 }

// FetchFundamentals merges the metric map and the profile into one raw
// payload per symbol.
func (f *Finnhub) FetchFundamentals(ctx context.Context, symbols []string) (*FetchResult, error) {
	if !f.Enabled() {
		return nil, nil
	}
	result := newFetchResult(f.Name())

	for _, symbol := range capSymbols(symbols, f.BatchCap()) {
		metricURL := fmt.Sprintf("%s/stock/metric?symbol=%s&metric=all&token=%s",
			f.cfg.BaseURL, url.QueryEscape(symbol), f.cfg.APIKey)

		body, err := f.client.getJSON(ctx, metricURL)
		if err != nil {
			result.Errors[symbol] = err.Error()
			continue
		}

		payload := make(model.RawPayload)
		if obj, ok := asObject(body); ok {
			if metric, ok := asObject(obj["metric"]); ok {
				for k, v := range metric {
					payload[k] = v
				}
			}
		}

		// Sector label lives on the profile endpoint; a profile failure
		// only costs the sector, not the symbol.
		profileURL := fmt.Sprintf("%s/stock/profile2?symbol=%s&token=%s",
			f.cfg.BaseURL, url.QueryEscape(symbol), f.cfg.APIKey)
		if body, err := f.client.getJSON(ctx, profileURL); err == nil {
			if obj, ok := asObject(body); ok {
				if sector, ok := obj["finnhubIndustry"].(string); ok && sector != "" {
					payload["finnhubIndustry"] = sector
				}
			}
		}

		if len(payload) == 0 {
			result.NoData = append(result.NoData, symbol)
			continue
		}
		result.Payloads[symbol] = payload
	}

	return result, nil
}

// FetchCashFlow reports no_data for every symbol: Finnhub's statement
// API is not wired into this pipeline.
func (f *Finnhub) FetchCashFlow(ctx context.Context, symbols []string, _ model.Frequency) (*StatementResult, error) {
	if !f.Enabled() {
		return nil, nil
	}
	result := newStatementResult(f.Name())
	result.NoData = append(result.NoData, capSymbols(symbols, f.BatchCap())...)
	return result, nil
}
