package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/metrics"
)

func NewRouter(h *Handler, logger logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/products/add/", h.AddProduct)

	r.Route("/storage", func(r chi.Router) {
		r.Get("/", h.ListInventory)
		r.Post("/{handle}/add/", h.AddStock)
	})

	return r
}
