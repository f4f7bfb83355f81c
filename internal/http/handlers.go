package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-dashboard/internal/chart"
	"github.com/kjstillabower/climate-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/climate-dashboard/internal/dashboard"
	"github.com/kjstillabower/climate-dashboard/internal/lifecycle"
	"github.com/kjstillabower/climate-dashboard/internal/models"
	"github.com/kjstillabower/climate-dashboard/internal/reqctx"
	"github.com/kjstillabower/climate-dashboard/internal/traffic"
	"github.com/kjstillabower/climate-dashboard/internal/validation"
)

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// Breaker, when set, reports the upstream circuit state.
	Breaker *circuitbreaker.CircuitBreaker
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions         *dashboard.Registry
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(sessions *dashboard.Registry, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions:     sessions,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// CreateDashboard handles GET /. It creates a session, loads it and redirects
// to the dashboard page. A failed load still redirects; the page shows the
// error notice.
func (h *Handler) CreateDashboard(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	if err := s.Load(r.Context()); err != nil {
		reqctx.Logger(r.Context(), h.logger).Debug("dashboard load failed", zap.String("session_id", s.ID), zap.Error(err))
	}
	http.Redirect(w, r, "/dashboards/"+s.ID, http.StatusSeeOther)
}

// GetDashboard handles GET /dashboards/{id}.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := renderDashboardPage(&buf, s.View()); err != nil {
		reqctx.Logger(r.Context(), h.logger).Error("render dashboard page", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "RENDER_FAILED", "Unable to render dashboard")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// GetSummary handles GET /dashboards/{id}/summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(s.View()))
}

type noticeResponse struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type summaryResponse struct {
	ID       string             `json:"id"`
	State    string             `json:"state"`
	Selected *models.YearRange  `json:"selected,omitempty"`
	Summary  *dashboard.Summary `json:"summary,omitempty"`
	Notice   *noticeResponse    `json:"notice,omitempty"`
	Charts   map[string]string  `json:"charts"`
}

func newSummaryResponse(v dashboard.View) summaryResponse {
	resp := summaryResponse{
		ID:     v.ID,
		State:  v.State.String(),
		Charts: make(map[string]string, len(v.Charts)),
	}
	if v.State == dashboard.StateReady || v.State == dashboard.StateUpdating {
		sel, sum := v.Selected, v.Summary
		resp.Selected, resp.Summary = &sel, &sum
	}
	if v.Notice != nil {
		resp.Notice = &noticeResponse{Level: string(v.Notice.Level), Message: v.Notice.Message}
	}
	for kind, c := range v.Charts {
		resp.Charts[string(kind)] = c.ID
	}
	return resp
}

// PostRange handles POST /dashboards/{id}/range with form or query values
// start and end. Browsers are redirected back to the page; JSON clients get
// the updated summary.
func (h *Handler) PostRange(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	yr, err := validation.ParseYearRange(r.FormValue("start"), r.FormValue("end"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_YEAR", err.Error())
		return
	}

	err = s.ChangeRange(r.Context(), yr)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInvalidRange):
		if wantsJSON(r) {
			writeError(w, r, http.StatusUnprocessableEntity, "INVALID_RANGE", dashboard.InvalidRangeMessage)
			return
		}
	case errors.Is(err, dashboard.ErrNotReady), errors.Is(err, dashboard.ErrDisposed):
		writeError(w, r, http.StatusConflict, "NOT_READY", "Dashboard is not ready")
		return
	default:
		writeServiceError(w, r, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, newSummaryResponse(s.View()))
		return
	}
	http.Redirect(w, r, "/dashboards/"+s.ID+"#custom", http.StatusSeeOther)
}

// GetChart handles GET /dashboards/{id}/charts/{kind}.svg.
func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	kind, ok := chart.ParseKind(mux.Vars(r)["kind"])
	if !ok {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_CHART", "unknown chart: "+mux.Vars(r)["kind"])
		return
	}
	svg, err := s.ChartSVG(kind)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "CHART_UNAVAILABLE", "Chart is not available")
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(svg)
}

// PostDismissNotice handles POST /dashboards/{id}/notice/dismiss.
func (h *Handler) PostDismissNotice(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.DismissNotice()
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/dashboards/"+s.ID, http.StatusSeeOther)
}

// DeleteDashboard handles DELETE /dashboards/{id}, tearing down its charts.
func (h *Handler) DeleteDashboard(w http.ResponseWriter, r *http.Request) {
	h.sessions.Remove(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*dashboard.Session, bool) {
	s, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "SESSION_NOT_FOUND", "Dashboard not found or expired")
		return nil, false
	}
	return s, true
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	checks["climateApi"] = "healthy"
	if result.reason == "circuit_open" || result.reason == "error_rate_breach" {
		checks["climateApi"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "climate-dashboard",
		"version":   "dev",
		"checks":    checks,
		"sessions":  h.sessions.Len(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if since := lifecycle.DrainingSince(); !since.IsZero() {
		resp["drainingSince"] = since.UTC().Format(time.RFC3339)
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > circuit open > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(_ context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if cb := h.healthConfig.Breaker; cb != nil && cb.State() == circuitbreaker.StateOpen {
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open"}
	}
	if h.healthConfig.RateLimitRPS > 0 && h.healthConfig.OverloadWindow > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.OverloadWindow.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
		if float64(traffic.RequestCount(h.healthConfig.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		failed, total := traffic.FailureRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(failed) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": reqctx.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError writes a 503 for failures while rebuilding charts.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "RENDER_UNAVAILABLE", "Unable to update chart")
	reqctx.Logger(r.Context(), nil).Debug("range change failed", zap.Error(err))
}
