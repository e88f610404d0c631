package server

import (
	"net/http"

	"github.com/emrgen/docview/internal/module"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the public viewer API and the admin API under /v1.
func NewRouter(h *Handler, issuer *module.CapabilityIssuer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestTimeMiddleware)

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(module.Middleware(issuer))

		// viewer
		r.Get("/view/{token}", h.view)
		r.Post("/view/{token}/sessions", h.openSession)
		r.Post("/events", h.event)
		r.Post("/sessions/{sessionToken}/activity", h.recordActivity)
		r.Post("/sessions/{sessionToken}/complete", h.completeSession)

		// admin
		r.Get("/dashboard", h.dashboard)
		r.Get("/sessions/{sessionToken}", h.sessionDetail)
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", h.registerDocument)
			r.Get("/", h.listDocuments)
			r.Route("/{docID}", func(r chi.Router) {
				r.Get("/", h.getDocument)
				r.Delete("/", h.deleteDocument)
				r.Put("/pages", h.setPageCount)
				r.Post("/links", h.issueLink)
				r.Get("/links/current", h.currentLink)
				r.Post("/preview", h.previewSession)
				r.Get("/sessions", h.listSessions)
				r.Get("/analytics", h.analytics)
			})
		})
	})

	return r
}
