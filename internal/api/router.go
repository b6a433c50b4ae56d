// Package api serves the HTTP API, the websocket feed and the dashboard page.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"warehouse.dev/monitor/internal/auth"
	"warehouse.dev/monitor/internal/events"
	"warehouse.dev/monitor/internal/store"
	"warehouse.dev/monitor/pkg/metrics"
)

// RouterConfig holds the dependencies of the HTTP handlers.
type RouterConfig struct {
	Logger  *slog.Logger
	Store   *store.Store
	Hub     *events.Hub
	Issuer  *auth.Issuer
	Metrics *metrics.APIMetrics

	// InternalAPIKey guards POST /api/alerts/notify. Empty disables the route.
	InternalAPIKey string

	// Now defaults to time.Now.
	Now func() time.Time
}

type handler struct {
	logger      *slog.Logger
	store       *store.Store
	hub         *events.Hub
	metrics     *metrics.APIMetrics
	now         func() time.Time
	internalKey string
}

// NewRouter builds the route tree.
func NewRouter(cfg *RouterConfig) (http.Handler, error) {
	if cfg == nil {
		return nil, errors.New("router config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Hub == nil {
		return nil, errors.New("hub cannot be nil")
	}
	if cfg.Issuer == nil {
		return nil, errors.New("token issuer cannot be nil")
	}

	h := &handler{
		logger:      cfg.Logger,
		store:       cfg.Store,
		hub:         cfg.Hub,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
		internalKey: cfg.InternalAPIKey,
	}
	if h.now == nil {
		h.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(logRequests(h.logger))
	r.Use(instrument(h.metrics))

	r.Get("/health", h.health)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", h.hub.ServeWS)
	r.Get("/", h.dashboardPage)

	authn := authenticate(cfg.Issuer, h.logger)
	can := func(a auth.Action) func(http.Handler) http.Handler {
		return require(a, h.logger)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/alerts", func(r chi.Router) {
			if h.internalKey != "" {
				r.With(internalOnly(h.internalKey, h.logger)).Post("/notify", h.notifyAlert)
			}
			r.With(authn, can(auth.ViewAlerts)).Get("/", h.listAlerts)
			r.With(authn, can(auth.AcknowledgeAlert)).Put("/{id}/acknowledge", h.acknowledgeAlert)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(authn, can(auth.ViewDashboard))
			r.Get("/latest", h.latestReadings)
			r.Get("/history/{sensorId}", h.readingHistory)
			r.Get("/aggregates/{sensorId}", h.readingAggregates)
		})

		r.With(authn, can(auth.IngestReading)).Post("/ingest", h.ingestReading)

		r.Route("/zones", func(r chi.Router) {
			r.Use(authn)
			r.With(can(auth.ViewZones)).Get("/", h.listZones)
			r.With(can(auth.ViewZones)).Get("/{id}", h.getZone)
			r.With(can(auth.ManageZones)).Post("/", h.createZone)
			r.With(can(auth.ManageZones)).Put("/{id}", h.updateZone)
			r.With(can(auth.ManageZones)).Delete("/{id}", h.deleteZone)
		})

		r.Route("/sensors", func(r chi.Router) {
			r.Use(authn, can(auth.ManageSensors))
			r.Get("/", h.listSensors)
			r.Post("/", h.createSensor)
			r.Put("/{id}", h.updateSensor)
			r.Delete("/{id}", h.deleteSensor)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(authn, can(auth.ManageUsers))
			r.Get("/", h.listUsers)
			r.Post("/", h.createUser)
			r.Put("/{id}/zones", h.assignZones)
		})
	})

	return r, nil
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		h.logger.Error("failed to write health response", "error", err)
	}
}
