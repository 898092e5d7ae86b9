// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

// Package server is the operational HTTP endpoint of serve mode. It exposes
// Prometheus metrics on /metrics and a health check on /healthz.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/logging"
	"github.com/tomtom215/buffalogs/internal/models"
)

// pingTimeout bounds the database check of /healthz.
const pingTimeout = 2 * time.Second

// Store is what the health check reads. *store.DB implements it.
type Store interface {
	Ping(ctx context.Context) error
	GetTask(ctx context.Context, name string, mode models.ExecutionMode) (*models.TaskSettings, error)
}

// Health is the /healthz body.
type Health struct {
	Status           string     `json:"status"` // healthy or degraded
	Database         bool       `json:"database"`
	LastWindowEnd    *time.Time `json:"last_window_end,omitempty"`
	LastWindowStatus string     `json:"last_window_status,omitempty"`
	LastNotifyRun    *time.Time `json:"last_notify_run,omitempty"`
	UptimeSeconds    float64    `json:"uptime_seconds"`
	Version          string     `json:"version,omitempty"`
}

// Handler serves the operational routes.
type Handler struct {
	store   Store
	started time.Time
	version string
}

// NewHandler creates the route handlers.
func NewHandler(st Store, version string) *Handler {
	return &Handler{store: st, started: time.Now(), version: version}
}

// Router builds the chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(Metrics)

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Healthz reports database connectivity and the last automatic runs.
// A failed database ping answers 503.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	health := Health{
		Status:        "healthy",
		Database:      h.store.Ping(ctx) == nil,
		UptimeSeconds: time.Since(h.started).Seconds(),
		Version:       h.version,
	}
	if !health.Database {
		health.Status = "degraded"
	} else {
		if t, err := h.store.GetTask(ctx, models.TaskProcessLogs, models.ModeAutomatic); err == nil {
			end := t.EndDate
			health.LastWindowEnd = &end
			health.LastWindowStatus = string(t.Status)
		}
		if t, err := h.store.GetTask(ctx, models.TaskNotifyAlerts, models.ModeAutomatic); err == nil {
			at := t.UpdatedAt
			health.LastNotifyRun = &at
		}
	}

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(r.Context(), w, status, health)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to write response")
	}
}

// New returns the http.Server for cfg.Addr.
func New(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
