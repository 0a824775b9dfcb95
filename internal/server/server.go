// Package server exposes the ingestion trigger over HTTP. Per-symbol
// failures travel inside the report body; the only error statuses are
// for an unreadable request body and for run-level faults such as an
// unreachable universe table.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/fundsync/internal/scheduler"
)

// Runner is the scheduler surface the server needs.
type Runner interface {
	RunFundamentals(ctx context.Context, opts scheduler.Options) (*scheduler.Report, error)
	RunCashFlow(ctx context.Context, opts scheduler.Options) (*scheduler.Report, error)
}

// Pinger reports storage connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server routes ingestion triggers to the scheduler.
type Server struct {
	runner Runner
	store  Pinger
}

func New(runner Runner, store Pinger) *Server {
	return &Server{runner: runner, store: store}
}

// Router builds the chi mux with CORS and request logging applied.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ingest", s.handleFundamentals)
		r.Post("/ingest", s.handleFundamentals)
		r.Get("/ingest/cashflow", s.handleCashFlow)
		r.Post("/ingest/cashflow", s.handleCashFlow)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("server: store ping failed", zap.Error(err))
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (s *Server) handleFundamentals(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	rep, err := s.runner.RunFundamentals(r.Context(), opts)
	s.writeReport(w, rep, err)
}

func (s *Server) handleCashFlow(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	rep, err := s.runner.RunCashFlow(r.Context(), opts)
	s.writeReport(w, rep, err)
}

// writeReport maps a run outcome to its HTTP shape: run-level faults are
// the only 5xx; otherwise 200 when any records landed, 206 when none did.
func (s *Server) writeReport(w http.ResponseWriter, rep *scheduler.Report, err error) {
	if err != nil {
		zap.L().Error("server: ingestion run failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	code := http.StatusOK
	if rep.RecordsSaved == 0 {
		code = http.StatusPartialContent
	}
	writeJSON(w, code, rep)
}

// parseOptions reads run options from the JSON body when one is present,
// otherwise from the symbols query parameter. An empty request means a
// default universe-driven run.
func parseOptions(r *http.Request) (scheduler.Options, error) {
	var opts scheduler.Options

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return opts, err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &opts); err != nil {
			return opts, err
		}
		return opts, nil
	}

	if raw := r.URL.Query().Get("symbols"); raw != "" {
		for _, sym := range strings.Split(raw, ",") {
			if sym = strings.TrimSpace(sym); sym != "" {
				opts.Symbols = append(opts.Symbols, sym)
			}
		}
	}
	if r.URL.Query().Get("forceRefresh") == "true" {
		opts.ForceRefresh = true
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		zap.L().Warn("server: response encode failed", zap.Error(err))
	}
}

// ListenAndServe runs the server until the context ends, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("server: listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
