package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/climate-dashboard/internal/observability"
)

// RouterConfig carries the middleware settings for NewRouter.
type RouterConfig struct {
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewRouter wires every dashboard route with its middleware. Session routes
// are rate limited; loading a new dashboard also gets the request timeout.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	load := router.Path("/").Subrouter()
	load.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		load.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	load.Methods(http.MethodGet).HandlerFunc(h.CreateDashboard)

	dash := router.PathPrefix("/dashboards/{id}").Subrouter()
	dash.Use(RateLimitMiddleware(cfg.Limiter))
	dash.HandleFunc("", h.GetDashboard).Methods(http.MethodGet)
	dash.HandleFunc("", h.DeleteDashboard).Methods(http.MethodDelete)
	dash.HandleFunc("/summary", h.GetSummary).Methods(http.MethodGet)
	dash.HandleFunc("/range", h.PostRange).Methods(http.MethodPost)
	dash.HandleFunc("/charts/{kind}.svg", h.GetChart).Methods(http.MethodGet)
	dash.HandleFunc("/notice/dismiss", h.PostDismissNotice).Methods(http.MethodPost)
	return router
}
