// Package router wires the HTTP surface of the booking service.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pearldental/clinic-platform/internal/http/handlers"
	httpmiddleware "github.com/pearldental/clinic-platform/internal/http/middleware"
	"github.com/pearldental/clinic-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Appointments       *handlers.AppointmentsHandler
	Sync               *handlers.SyncHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Requests per second per IP on the booking write endpoints; zero
	// disables rate limiting.
	WriteRateLimit float64
	WriteBurst     int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/appointments", func(appts chi.Router) {
		appts.Get("/", cfg.Appointments.List)

		writes := appts
		if cfg.WriteRateLimit > 0 {
			writes = appts.With(httpmiddleware.RateLimit(cfg.WriteRateLimit, cfg.WriteBurst))
		}
		writes.Post("/", cfg.Appointments.Create)
		writes.Post("/{id}/reschedule", cfg.Appointments.Reschedule)
		writes.Post("/{id}/cancel", cfg.Appointments.Cancel)
		writes.Delete("/{id}", cfg.Appointments.Delete)
	})

	r.Get("/availability", cfg.Appointments.Availability)

	if cfg.Sync != nil {
		r.Route("/sync", func(sync chi.Router) {
			sync.Get("/status", cfg.Sync.Status)
			sync.Post("/drain", cfg.Sync.Drain)
		})
	}

	return r
}
