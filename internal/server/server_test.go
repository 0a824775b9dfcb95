package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fundsync/internal/model"
	"github.com/sells-group/fundsync/internal/scheduler"
)

type fakeRunner struct {
	fundReport *scheduler.Report
	fundErr    error
	cfReport   *scheduler.Report
	cfErr      error

	fundOpts []scheduler.Options
	cfOpts   []scheduler.Options
}

func (f *fakeRunner) RunFundamentals(_ context.Context, opts scheduler.Options) (*scheduler.Report, error) {
	f.fundOpts = append(f.fundOpts, opts)
	return f.fundReport, f.fundErr
}

func (f *fakeRunner) RunCashFlow(_ context.Context, opts scheduler.Options) (*scheduler.Report, error) {
	f.cfOpts = append(f.cfOpts, opts)
	return f.cfReport, f.cfErr
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func okReport(saved int) *scheduler.Report {
	return &scheduler.Report{
		RunID:        "run-1",
		Kind:         model.RunKindFundamentals,
		Success:      true,
		RecordsSaved: saved,
		Statuses:     map[string]model.SymbolStatus{"AAPL": model.StatusSuccess},
	}
}

func newTestServer(runner *fakeRunner, pinger *fakePinger) *httptest.Server {
	if pinger == nil {
		pinger = &fakePinger{}
	}
	return httptest.NewServer(New(runner, pinger).Router())
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealth_DegradedWhenStoreUnreachable(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, &fakePinger{err: eris.New("connection refused")})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestIngest_PostWithBody(t *testing.T) {
	runner := &fakeRunner{fundReport: okReport(3)}
	srv := newTestServer(runner, nil)
	defer srv.Close()

	body := `{"symbols":["AAPL","MSFT"],"forceRefresh":true,"maxSymbols":2}`
	resp, err := http.Post(srv.URL+"/api/v1/ingest", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, runner.fundOpts, 1)
	assert.Equal(t, []string{"AAPL", "MSFT"}, runner.fundOpts[0].Symbols)
	assert.True(t, runner.fundOpts[0].ForceRefresh)
	assert.Equal(t, 2, runner.fundOpts[0].MaxSymbols)

	var rep scheduler.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	assert.Equal(t, 3, rep.RecordsSaved)
	assert.True(t, rep.Success)
}

func TestIngest_GetWithQuerySymbols(t *testing.T) {
	runner := &fakeRunner{fundReport: okReport(1)}
	srv := newTestServer(runner, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/ingest?symbols=AAPL,%20MSFT&forceRefresh=true")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, runner.fundOpts, 1)
	assert.Equal(t, []string{"AAPL", "MSFT"}, runner.fundOpts[0].Symbols)
	assert.True(t, runner.fundOpts[0].ForceRefresh)
}

func TestIngest_PartialContentWhenNothingSaved(t *testing.T) {
	runner := &fakeRunner{fundReport: okReport(0)}
	srv := newTestServer(runner, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/ingest")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
}

func TestIngest_MalformedBody(t *testing.T) {
	runner := &fakeRunner{fundReport: okReport(1)}
	srv := newTestServer(runner, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/ingest", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, runner.fundOpts, "a bad body never reaches the scheduler")
}

func TestIngest_RunLevelFault(t *testing.T) {
	runner := &fakeRunner{fundErr: eris.New("scheduler: load universe: connection refused")}
	srv := newTestServer(runner, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/ingest")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestCashFlow_RoutesToStatementRun(t *testing.T) {
	rep := okReport(2)
	rep.Kind = model.RunKindCashFlow
	runner := &fakeRunner{cfReport: rep}
	srv := newTestServer(runner, nil)
	defer srv.Close()

	body := `{"symbols":["AAPL"],"skipAnnual":true}`
	resp, err := http.Post(srv.URL+"/api/v1/ingest/cashflow", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, runner.cfOpts, 1)
	assert.True(t, runner.cfOpts[0].SkipAnnual)
	assert.Empty(t, runner.fundOpts)
}
