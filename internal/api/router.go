package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/youngleee/thesis/internal/api/middleware"
	"github.com/youngleee/thesis/internal/auth"
	"github.com/youngleee/thesis/internal/metrics"
	"go.uber.org/zap"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	Handlers     *Handlers
	AuthHandlers *AuthHandlers
	Realtime     http.Handler
	Tokens       *auth.Tokens
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	// Gatherer serves /metrics when set.
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.Use(
		middleware.Observability(cfg.Logger, cfg.Metrics),
		middleware.Recover(cfg.Logger),
	)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.OptionalAuthMiddleware(cfg.Tokens))

	h := cfg.Handlers

	// Debug
	api.HandleFunc("/debug", h.Debug).Methods(http.MethodGet)
	api.HandleFunc("/debug/cart", h.DebugCart).Methods(http.MethodGet)

	// Products
	api.HandleFunc("/products", h.GetProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}/stock", h.SetStock).Methods(http.MethodPut)

	// Cart
	api.HandleFunc("/cart", h.GetCart).Methods(http.MethodGet)
	api.HandleFunc("/cart", h.AddToCart).Methods(http.MethodPost)
	api.HandleFunc("/cart", h.ClearCart).Methods(http.MethodDelete)
	api.HandleFunc("/cart/{lineId}", h.UpdateCartItem).Methods(http.MethodPut)
	api.HandleFunc("/cart/{lineId}", h.RemoveCartItem).Methods(http.MethodDelete)

	// Auth
	if a := cfg.AuthHandlers; a != nil {
		api.HandleFunc("/auth/register", a.Register).Methods(http.MethodPost)
		api.HandleFunc("/auth/login", a.Login).Methods(http.MethodPost)
		api.HandleFunc("/auth/logout", a.Logout).Methods(http.MethodPost)
	}

	// Realtime
	if cfg.Realtime != nil {
		api.Handle("/ws", cfg.Realtime).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSONError(w, "Not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	return middleware.CORS(cfg.CORSOrigins)(r)
}
