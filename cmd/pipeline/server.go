package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/pipeline"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/runlog"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type statsSource interface {
	Statistics(ctx context.Context) (*pipeline.Statistics, error)
}

func (a *app) adminHandler() http.Handler {
	return createAdminHandler(a.store, a.runner, a.recorder,
		promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		a.cfg.Metrics.Path, a.logger)
}

// createAdminHandler creates the HTTP handler for health, statistics, run
// history and metrics.
func createAdminHandler(db pinger, stats statsSource, runs runlog.Recorder, metricsHandler http.Handler, metricsPath string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	mux.Handle(metricsPath, metricsHandler)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		// Last run
		recent, err := runs.Recent(ctx, 1)
		switch {
		case err != nil:
			health.Components["last_run"] = map[string]string{"error": err.Error()}
		case len(recent) == 0:
			health.Components["last_run"] = "none"
		default:
			last := recent[0]
			health.Components["last_run"] = map[string]interface{}{
				"run_id":       last.ID,
				"mode":         last.Mode,
				"ended_at":     last.EndedAt,
				"success_rate": last.SuccessRate(),
				"aborted":      last.Aborted,
			}
			if health.Status == "healthy" && (last.Aborted || len(last.Succeeded) == 0) {
				health.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		s, err := stats.Statistics(ctx)
		if err != nil {
			logger.Error("statistics request failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s)
	})

	mux.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 500 {
				writeJSONError(w, http.StatusBadRequest, errInvalidLimit)
				return
			}
			limit = n
		}

		list, err := runs.Recent(r.Context(), limit)
		if err != nil {
			logger.Error("run history request failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count": len(list),
			"runs":  list,
		})
	})

	return mux
}

type apiError string

func (e apiError) Error() string { return string(e) }

const errInvalidLimit = apiError("limit must be an integer between 1 and 500")

func writeJSONError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
