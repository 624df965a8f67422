package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/smart-farm-service/internal/cache"
	"github.com/kjstillabower/smart-farm-service/internal/ingest"
	"github.com/kjstillabower/smart-farm-service/internal/lifecycle"
	"github.com/kjstillabower/smart-farm-service/internal/models"
	"github.com/kjstillabower/smart-farm-service/internal/observability"
	"github.com/kjstillabower/smart-farm-service/internal/price"
	"github.com/kjstillabower/smart-farm-service/internal/recommend"
	"github.com/kjstillabower/smart-farm-service/internal/reqctx"
	"github.com/kjstillabower/smart-farm-service/internal/store"
)

// APIKeyHeader carries the shared device key on POST /sensor.
const APIKeyHeader = "X-API-KEY"

const maxSensorBody = 1 << 20

// Ingester runs the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, p ingest.Payload) (models.Snapshot, error)
}

// ReadingStore is the subset of the store the handlers read from.
type ReadingStore interface {
	RecentReadings(ctx context.Context, limit int) ([]models.Reading, error)
	AllReadings(ctx context.Context) ([]models.Reading, error)
	ListAlerts(ctx context.Context) ([]models.Alert, error)
	ResolveAlert(ctx context.Context, id uint) error
}

// Sessions gates the admin pages.
type Sessions interface {
	Login(ctx context.Context, w http.ResponseWriter, password string) error
	Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	Authenticated(r *http.Request) bool
}

// HealthCheck is one dependency checked by GET /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HandlerConfig holds handler dependencies.
type HandlerConfig struct {
	APIKey       string
	Location     *time.Location
	Ingester     Ingester
	Cache        cache.Cache
	Store        ReadingStore
	Sessions     Sessions
	Predictor    *price.Predictor
	Lifecycle    *lifecycle.State
	HealthChecks []HealthCheck
	// Now defaults to time.Now; the price page derives its year range from it.
	Now func() time.Time
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cfg              HandlerConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(cfg HandlerConfig, logger *zap.Logger) *Handler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Lifecycle == nil {
		cfg.Lifecycle = lifecycle.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cfg: cfg, logger: logger}
}

// RequireAPIKey rejects requests without the device key before the body is
// read. It wraps the rate limiter, so only keyed requests take a token.
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.cfg.APIKey)) != 1 {
			observability.ReadingsIngestedTotal.WithLabelValues("unauthorized").Inc()
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PostSensor handles POST /sensor behind RequireAPIKey.
func (h *Handler) PostSensor(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSensorBody))
	if err != nil {
		observability.ReadingsIngestedTotal.WithLabelValues("invalid_json").Inc()
		writeError(w, r, http.StatusBadRequest, ingest.ErrInvalidJSON.Error())
		return
	}
	p, err := ingest.ParsePayload(body)
	switch {
	case errors.Is(err, ingest.ErrInvalidJSON):
		observability.ReadingsIngestedTotal.WithLabelValues("invalid_json").Inc()
		writeError(w, r, http.StatusBadRequest, ingest.ErrInvalidJSON.Error())
		return
	case err != nil:
		observability.ReadingsIngestedTotal.WithLabelValues("bad_values").Inc()
		writeError(w, r, http.StatusBadRequest, ingest.ErrBadValues.Error())
		return
	}

	if _, err := h.cfg.Ingester.Ingest(r.Context(), p); err != nil {
		reqctx.Logger(r.Context(), h.logger).Error("ingest failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetLatest handles GET /latest-sensor.
func (h *Handler) GetLatest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.latest(r))
}

// latest reads the cache and falls back to the newest stored row, then to the
// empty snapshot.
func (h *Handler) latest(r *http.Request) models.Snapshot {
	ctx := r.Context()
	snap, err := h.cfg.Cache.Latest(ctx)
	if err == nil {
		return snap
	}
	logger := reqctx.Logger(ctx, h.logger)
	logger.Warn("cache latest failed", zap.Error(err))
	rows, err := h.cfg.Store.RecentReadings(ctx, 1)
	if err != nil {
		logger.Error("store latest failed", zap.Error(err))
		return models.EmptySnapshot()
	}
	if len(rows) == 0 {
		return models.EmptySnapshot()
	}
	return ingest.StoredSnapshot(rows[0], h.cfg.Location)
}

// GetHistory handles GET /history: the cache window when non-empty, else the
// newest stored rows.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := reqctx.Logger(ctx, h.logger)

	recent, err := h.cfg.Cache.Recent(ctx)
	if err != nil {
		logger.Warn("cache history failed", zap.Error(err))
	}
	if err == nil && len(recent) > 0 {
		writeJSON(w, http.StatusOK, recent)
		return
	}

	observability.HistoryFallbackTotal.Inc()
	rows, err := h.cfg.Store.RecentReadings(ctx, store.HistoryLimit)
	if err != nil {
		logger.Error("store history failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "storage failure")
		return
	}
	out := make([]models.Snapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, ingest.StoredSnapshot(row, h.cfg.Location))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetRecommend handles GET /recommend: the latest snapshot with the crop
// suggestion fields merged in.
func (h *Handler) GetRecommend(w http.ResponseWriter, r *http.Request) {
	snap := h.latest(r)
	writeJSON(w, http.StatusOK, struct {
		models.Snapshot
		models.Recommendation
	}{snap, recommend.ForSnapshot(snap)})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
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

	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":        result.status,
		"service":       "smart-farm-service",
		"version":       "dev",
		"checks":        result.checks,
		"uptimeSeconds": int64(h.cfg.Lifecycle.Uptime().Seconds()),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus returns shutting-down while draining, degraded when any
// dependency check fails, else healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := make(map[string]string, len(h.cfg.HealthChecks))
	if h.cfg.Lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result := healthResult{"healthy", http.StatusOK, "", checks}
	for _, c := range h.cfg.HealthChecks {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = "unhealthy"
			result.status = "degraded"
			result.statusCode = http.StatusServiceUnavailable
			result.reason = c.Name + "_unreachable"
			continue
		}
		checks[c.Name] = "healthy"
	}
	return result
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"status":"error","message":...} with the correlation id
// as requestId.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":    "error",
		"message":   message,
		"requestId": reqctx.CorrelationID(r.Context()),
	})
}
