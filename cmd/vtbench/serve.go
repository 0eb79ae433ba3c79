// File: cmd/vtbench/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentics/hioload-vt/api"
	"github.com/momentics/hioload-vt/facade"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr, namespace string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve scheduler stats, debug state and Prometheus metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			s, err := facade.New(cfg, facade.WithLogger(logger), facade.WithMetrics(reg, namespace))
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, addr, newRouter(s, reg), logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "Listen address")
	cmd.Flags().StringVar(&namespace, "namespace", "hioload_vt", "Prometheus metric namespace")
	return cmd
}

func newRouter(s *facade.Scheduler, gatherer prometheus.Gatherer) http.Handler {
	h := &handlers{sched: s}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/stats", h.stats)
	r.Get("/debug/state", h.debugState)
	r.Route("/config", func(r chi.Router) {
		r.Get("/", h.getConfig)
		r.Put("/", h.setConfig)
	})
	r.Post("/workload/squares/{n}", h.squares)
	return r
}

func serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type handlers struct {
	sched *facade.Scheduler
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	if !h.sched.Stats().Running {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopped"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Stats())
}

func (h *handlers) debugState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Control().DumpState())
}

func (h *handlers) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Control().GetConfig())
}

func (h *handlers) setConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.sched.Control().SetConfig(patch); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, api.ErrConfig) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sched.Control().GetConfig())
}

// squares maps x*x over [0, n) and returns the sum.
func (h *handlers) squares(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid item count %q", chi.URLParam(r, "n")))
		return
	}
	items := make([]int64, n)
	for i := range items {
		items[i] = int64(i)
	}
	start := time.Now()
	squares, err := facade.Map(r.Context(), h.sched, func(_ context.Context, x int64) (int64, error) {
		return x * x, nil
	}, items)
	if err == nil {
		var sum int64
		sum, err = facade.Reduce(r.Context(), h.sched, func(_ context.Context, a, b int64) (int64, error) {
			return a + b, nil
		}, squares, 0)
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{"items": n, "sum": sum, "elapsed": time.Since(start).String()})
			return
		}
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, api.ErrPoolShutdown):
		status = http.StatusServiceUnavailable
	case errors.Is(err, api.ErrCancelled), errors.Is(err, context.Canceled):
		status = http.StatusRequestTimeout
	}
	writeError(w, status, err)
}
