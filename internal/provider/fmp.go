package provider

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/sells-group/fundsync/internal/model"
)

// FMPConfig configures the Financial Modeling Prep adapter.
type FMPConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FMP serves list-of-objects responses: company profile, trailing-twelve-
// month ratios, and full cash-flow statements.
type FMP struct {
	cfg    FMPConfig
	client *client
}

// NewFMP creates the adapter. BaseURL defaults to the v3 API.
func NewFMP(cfg FMPConfig) *FMP {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://financialmodelingprep.com/api/v3"
	}
	return &FMP{
		cfg:    cfg,
		client: newClient("fmp", rate.Limit(4), 4),
	}
}

func (f *FMP) Name() string  { return "fmp" }
func (f *FMP) Enabled() bool { return f.cfg.APIKey != "" }
func (f *FMP) BatchCap() int { return 20 }

// FetchFundamentals combines the profile and ratios-ttm endpoints into
// one raw payload per symbol. Either endpoint failing alone still yields
// a partial payload; both failing records a per-symbol error.
func (f *FMP) FetchFundamentals(ctx context.Context, symbols []string) (*FetchResult, error) {
	if !f.Enabled() {
		return nil, nil
	}
	result := newFetchResult(f.Name())

	for _, symbol := range capSymbols(symbols, f.BatchCap()) {
		payload := make(model.RawPayload)
		var firstErr error

		for _, path := range []string{"profile", "ratios-ttm"} {
			endpoint := fmt.Sprintf("%s/%s/%s?apikey=%s",
				f.cfg.BaseURL, path, url.PathEscape(symbol), f.cfg.APIKey)

			body, err := f.client.getJSON(ctx, endpoint)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			list, ok := asList(body)
			if !ok || len(list) == 0 {
				continue
			}
			for k, v := range list[0] {
				if _, exists := payload[k]; !exists {
					payload[k] = v
				}
			}
		}

		switch {
		case len(payload) > 0:
			result.Payloads[symbol] = payload
		case firstErr != nil:
			result.Errors[symbol] = firstErr.Error()
		default:
			result.NoData = append(result.NoData, symbol)
		}
	}

	return result, nil
}

// FetchQuarterlyFundamentals pulls the latest quarterly ratios row per
// symbol. The quarterly endpoint reports the same ratios without the TTM
// key suffix, which the alias tables resolve as a lower-priority match.
func (f *FMP) FetchQuarterlyFundamentals(ctx context.Context, symbols []string) (*FetchResult, error) {
	if !f.Enabled() {
		return nil, nil
	}
	result := newFetchResult(f.Name())

	for _, symbol := range capSymbols(symbols, f.BatchCap()) {
		endpoint := fmt.Sprintf("%s/ratios/%s?period=quarter&limit=1&apikey=%s",
			f.cfg.BaseURL, url.PathEscape(symbol), f.cfg.APIKey)

		body, err := f.client.getJSON(ctx, endpoint)
		if err != nil {
			result.Errors[symbol] = err.Error()
			continue
		}
		list, ok := asList(body)
		if !ok || len(list) == 0 {
			result.NoData = append(result.NoData, symbol)
			continue
		}
		result.Payloads[symbol] = model.RawPayload(list[0])
	}

	return result, nil
}

// FetchCashFlow pulls the cash-flow-statement list; each element is one
// fiscal period whose keys double as breakdown labels.
func (f *FMP) FetchCashFlow(ctx context.Context, symbols []string, freq model.Frequency) (*StatementResult, error) {
	if !f.Enabled() {
		return nil, nil
	}
	result := newStatementResult(f.Name())

	period := "annual"
	if freq == model.FrequencyQuarterly {
		period = "quarter"
	}

	for _, symbol := range capSymbols(symbols, f.BatchCap()) {
		endpoint := fmt.Sprintf("%s/cash-flow-statement/%s?period=%s&limit=8&apikey=%s",
			f.cfg.BaseURL, url.PathEscape(symbol), period, f.cfg.APIKey)

		body, err := f.client.getJSON(ctx, endpoint)
		if err != nil {
			result.Errors[symbol] = err.Error()
			continue
		}
		list, ok := asList(body)
		if !ok || len(list) == 0 {
			result.NoData = append(result.NoData, symbol)
			continue
		}

		var stmts []model.StatementPayload
		for _, obj := range list {
			fiscalDate, _ := obj["date"].(string)
			if fiscalDate == "" {
				continue
			}
			rows := make(model.RawPayload, len(obj))
			for k, v := range obj {
				switch k {
				case "date", "symbol", "reportedCurrency", "cik", "fillingDate", "acceptedDate", "calendarYear", "period", "link", "finalLink":
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
