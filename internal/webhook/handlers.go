// Package webhook is the HTTP surface of the Connect callback service:
// notification intake, health, and metrics.
package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/esignworks/signflow/internal/callback"
	"github.com/esignworks/signflow/internal/health"
	"github.com/esignworks/signflow/internal/lifecycle"
	"github.com/esignworks/signflow/internal/observability"
)

// maxCallbackBody bounds notification bodies. Connect payloads without
// documents are a few KB; include-documents payloads are excluded by the
// event subscription.
const maxCallbackBody = 5 << 20

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	MinSamples       int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	healthConfig *HealthConfig
	logger       *zap.Logger

	// callbackToken, when non-empty, must match the X-Callback-Token header
	// on every notification.
	callbackToken string
}

// NewHandler returns a new Handler.
func NewHandler(healthConfig *HealthConfig, logger *zap.Logger, callbackToken string) *Handler {
	return &Handler{
		healthConfig:  healthConfig,
		logger:        logger,
		callbackToken: callbackToken,
	}
}

// NewRouter builds the service router with middleware applied. limiter may
// be nil to disable rate limiting on the callback route.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter) *mux.Router {
	r := mux.NewRouter()
	r.Use(CorrelationIDMiddleware(logger))
	r.Use(MetricsMiddleware)

	cb := r.Path("/callback").Subrouter()
	cb.Use(RateLimitMiddleware(limiter))
	cb.Methods(http.MethodPost).HandlerFunc(h.PostCallback)

	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	return r
}

// PostCallback handles POST /callback: a Connect XML status notification.
func (h *Handler) PostCallback(w http.ResponseWriter, r *http.Request) {
	if h.callbackToken != "" {
		token := r.Header.Get("X-Callback-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.callbackToken)) != 1 {
			writeError(w, r, http.StatusUnauthorized, "INVALID_TOKEN", "callback token mismatch")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "UNREADABLE_BODY", "could not read notification body")
		return
	}

	n, err := callback.Parse(body)
	if err != nil {
		observability.CallbackParseFailuresTotal.Inc()
		health.RecordError()
		if logger := loggerFrom(r); logger != nil {
			logger.Warn("callback parse failed", zap.Error(err), zap.Int("bodyBytes", len(body)))
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_NOTIFICATION", "notification did not parse")
		return
	}

	status := n.EnvelopeStatus()
	observability.CallbacksReceivedTotal.WithLabelValues(status).Inc()
	health.RecordSuccess()

	if logger := loggerFrom(r); logger != nil {
		fields := []zap.Field{
			zap.String("envelopeId", n.EnvelopeID()),
			zap.String("envelopeStatus", status),
			zap.Int("recipients", len(n.Recipients())),
		}
		if t, err := n.EnvelopeStatusTime(status); err == nil {
			fields = append(fields, zap.Time("statusTime", t))
		}
		logger.Info("envelope status notification", fields...)
		for _, rec := range n.Recipients() {
			logger.Debug("recipient status",
				zap.String("envelopeId", n.EnvelopeID()),
				zap.String("recipientId", rec.ID),
				zap.String("recipientStatus", rec.Status))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"envelopeId":     n.EnvelopeID(),
		"envelopeStatus": status,
	})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["processing"] = "unhealthy"
	} else {
		checks["processing"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
			if result.status == "healthy" {
				result = healthResult{"degraded", http.StatusServiceUnavailable, "cache_unreachable"}
			}
		}
	}

	if result.reason != "" {
		h.logger.Info("health check not healthy",
			zap.String("status", result.status),
			zap.String("reason", result.reason))
	}

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "signflow",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		minSamples := h.healthConfig.MinSamples
		if minSamples <= 0 {
			minSamples = 1
		}
		if health.Degraded(h.healthConfig.DegradedWindow, float64(h.healthConfig.DegradedErrorPct), minSamples) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func loggerFrom(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok {
		return logger
	}
	return nil
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
