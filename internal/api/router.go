package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	if app.Uploads != nil {
		r.Get("/uploads/{key}", app.ServeUploadHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/scans", app.SubmitScansHandler)

		r.Route("/live", func(r chi.Router) {
			r.Get("/status", app.LiveStatusHandler)
			r.Post("/camera", app.AcquireCameraHandler)
			r.Delete("/camera", app.ReleaseCameraHandler)
			r.Post("/capture", app.CaptureHandler)
			r.Post("/recording", app.StartRecordingHandler)
			r.Delete("/recording", app.StopRecordingHandler)
		})

		r.Post("/classify", app.ClassifyHandler)

		r.Route("/model", func(r chi.Router) {
			r.Get("/", app.ModelStatusHandler)
			r.Put("/", app.SelectModelHandler)
			r.Post("/load", app.LoadModelHandler)
			r.Get("/acceleration", app.AccelerationHandler)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", app.CartHandler)
			r.Post("/items", app.AddCartItemHandler)
			r.Patch("/items/{id}", app.UpdateCartItemHandler)
			r.Delete("/items/{id}", app.RemoveCartItemHandler)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", app.CheckoutStateHandler)
			r.Post("/next", app.CheckoutNextHandler)
			r.Post("/back", app.CheckoutBackHandler)
			r.Put("/delivery", app.CheckoutDeliveryHandler)
			r.Put("/payment", app.CheckoutPaymentHandler)
			r.Post("/order", app.PlaceOrderHandler)
		})

		r.Get("/reports/recent", app.RecentReportsHandler)
		r.Get("/alerts/recent", app.RecentAlertsHandler)
	})

	return r
}
