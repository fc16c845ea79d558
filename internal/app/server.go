package app

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxrow/voxrow/internal/ctxlog"
	"github.com/voxrow/voxrow/pkg/pipeline"
)

// Handler returns the trigger API: one authenticated GET route per pipeline
// plus an unauthenticated health check.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.healthHandler)
	mux.Handle("GET /bps/inflation", a.requireToken(http.HandlerFunc(a.bpsInflationHandler)))
	mux.Handle("GET /idx/stock-summary", a.requireToken(http.HandlerFunc(a.idxStockSummaryHandler)))
	return a.logRequests(mux)
}

// Serve runs the trigger server until ctx is done, then shuts it down
// gracefully.
func (a *App) Serve(ctx context.Context) error {
	if a.settings.CronSecret == "" {
		return &pipeline.ConfigurationError{Msg: "CRON_SECRET is not set"}
	}
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout.Duration(),
		BaseContext:       func(_ net.Listener) context.Context { return a.Context(context.WithoutCancel(ctx)) },
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Trigger server starting.", "address", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("trigger server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Trigger server shutting down.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("trigger server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(r.Context()).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) bpsInflationHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := a.ExtractBPSInflation(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) idxStockSummaryHandler(w http.ResponseWriter, r *http.Request) {
	day := a.Today()
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := a.ParseDate(s)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		day = d
	}
	if err := a.ExtractIDXStockSummary(r.Context(), day, nil); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireToken accepts "Authorization: Bearer <CRON_SECRET>" only.
func (a *App) requireToken(next http.Handler) http.Handler {
	secret := []byte(a.settings.CronSecret.Reveal())
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || len(secret) == 0 || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), secret) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// fail logs the pipeline error and answers 500 without exposing it.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctxlog.FromContext(r.Context()).Error("Pipeline failed.", "error", err)
	writeDetail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logRequests gives every request its own run id and logs its outcome.
func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID := uuid.NewString()
		ctx := pipeline.WithRunID(a.Context(r.Context()), runID)
		ctx = ctxlog.With(ctx, "run_id", runID, "method", r.Method, "path", r.URL.Path)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		ctxlog.FromContext(ctx).Info("Request handled.", "status", rec.status, "duration", time.Since(start))
	})
}
