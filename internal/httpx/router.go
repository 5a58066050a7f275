package httpx

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vladislavdragonenkov/orderflow/internal/health"
)

const requestTimeout = 15 * time.Second

// Handlers собирает все HTTP-обработчики сервиса.
type Handlers struct {
	Orders    *OrderHandler
	Inventory *InventoryHandler
	Chat      *ChatHandler
	Cart      *CartHandler
	Health    *health.Handler
}

// NewRouter собирает chi-роутер: служебные эндпоинты в корне,
// бизнес-API под /api/v1.
func NewRouter(handlers Handlers) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/livez", health.LivenessHandler)
	if handlers.Health != nil {
		r.Get("/healthz", handlers.Health.ServeHTTP)
		r.Get("/readyz", handlers.Health.ReadinessHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		if handlers.Orders != nil {
			handlers.Orders.Register(api)
		}
		if handlers.Inventory != nil {
			handlers.Inventory.Register(api)
		}
		if handlers.Chat != nil {
			handlers.Chat.Register(api)
		}
		if handlers.Cart != nil {
			handlers.Cart.Register(api)
		}
	})

	return r
}
