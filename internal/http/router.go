package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	AdminIdentity      string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	ServiceName        string
}

type Services struct {
	Carts   CartService
	Orders  OrderService
	Menu    MenuService
	Devices DeviceService
}

// NewRouter wires the REST API under /api, the realtime endpoint at /ws and /health.
func NewRouter(cfg RouterConfig, svc Services, realtime http.Handler, logger *slog.Logger) http.Handler {
	cartHandler := NewCartHandler(svc.Carts, cfg.RequestTimeout, logger)
	ordersHandler := NewOrdersHandler(svc.Orders, cfg.RequestTimeout, logger)
	menuHandler := NewMenuHandler(svc.Menu, cfg.RequestTimeout, logger)
	deviceHandler := NewDeviceHandler(svc.Devices, cfg.RequestTimeout, logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// long-lived, so outside the request timeout
	if realtime != nil {
		r.Handle("/ws", realtime)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
		r.Use(IdentityMiddleware(CallerResolver(cfg.AdminIdentity)))

		r.Route("/items", func(r chi.Router) {
			r.Get("/", menuHandler.List)
			r.Get("/{id}", menuHandler.Get)
			r.With(RequireAdmin).Post("/", menuHandler.Create)
			r.With(RequireAdmin).Delete("/{id}", menuHandler.Delete)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Post("/", cartHandler.AddItem)
			r.Put("/update", cartHandler.UpdateQuantity)
			r.Get("/{owner}", cartHandler.GetCart)
			r.Delete("/{owner}", cartHandler.DeleteCart)
			r.Delete("/{owner}/items/{itemId}", cartHandler.RemoveItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordersHandler.PlaceOrder)
			r.With(RequireAdmin).Get("/", ordersHandler.ListAllOrders)
			r.Get("/user/{ownerIdentity}", ordersHandler.ListOrders)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", ordersHandler.GetOrder)
				r.Put("/collected", ordersHandler.MarkCollected)
				r.Put("/received", ordersHandler.MarkReceived)
				r.Put("/item/feedback", ordersHandler.SubmitFeedback)

				r.Group(func(r chi.Router) {
					r.Use(RequireAdmin)
					r.Put("/accept", ordersHandler.Accept)
					r.Put("/reject", ordersHandler.Reject)
					r.Put("/ready", ordersHandler.MarkReady)
					r.Delete("/", ordersHandler.DeleteOrder)
				})
			})
		})
		r.With(RequireAdmin).Post("/reject/{id}", ordersHandler.Reject)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/save-fcm-token", deviceHandler.SaveToken)
			r.Delete("/fcm-token", deviceHandler.RemoveToken)
		})
	})

	return otelhttp.NewHandler(r, cfg.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
