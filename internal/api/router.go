package api

import (
	"net/http"

	"github.com/LeventeLantos/kiosk-messaging/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Router mounts the kiosk API, the operator endpoints and /metrics. mws run
// after request ids are assigned and before routing.
func Router(h *Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	for _, mw := range mws {
		r.Use(mw)
	}
	r.Use(metrics.HTTPMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/scheduleSms", h.ScheduleSMS)

		r.Route("/checkins", func(r chi.Router) {
			r.Get("/", h.Waitlist)
			r.Post("/", h.CheckIn)
			r.Post("/{id}/checkout", h.Checkout)
			r.Post("/{id}/no-show", h.NoShow)
		})
		r.Get("/checkouts/daily", h.DailyCheckouts)

		r.Route("/stores", func(r chi.Router) {
			r.Post("/", h.CreateStore)
			r.Get("/{storeID}", h.GetStore)
			r.Put("/{storeID}/settings", h.UpdateStoreSettings)
			r.Post("/{storeID}/bulk-sms", h.BulkSMS)
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/scheduler/status", h.SchedulerStatus)
		r.Post("/scheduler/start", h.SchedulerStart)
		r.Post("/scheduler/stop", h.SchedulerStop)
		r.Post("/scheduler/trigger", h.SchedulerTrigger)
		r.Post("/scheduler/run", h.SchedulerRun)
		r.Post("/scheduler/jobs/{name}/run", h.RunJob)

		r.Get("/messages", h.ListMessages)
		r.Get("/messages/{id}/delivery", h.MessageDelivery)
		r.Get("/stores/{storeID}/sent", h.StoreSentCount)
	})

	r.Handle("/metrics", metrics.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("kiosk-messaging"))
	})

	return r
}
