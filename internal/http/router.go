package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/smart-farm-service/internal/observability"
)

// NewRouter wires every route. limiter applies to keyed POST /sensor
// requests only; requestTimeout bounds the read endpoints.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	timeout := TimeoutMiddleware(requestTimeout)

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	sensor := RateLimitMiddleware(limiter)(http.HandlerFunc(h.PostSensor))
	router.Handle("/sensor", h.RequireAPIKey(sensor)).Methods(http.MethodPost)

	router.Handle("/latest-sensor", timeout(http.HandlerFunc(h.GetLatest))).Methods(http.MethodGet)
	router.Handle("/history", timeout(http.HandlerFunc(h.GetHistory))).Methods(http.MethodGet)
	router.Handle("/recommend", timeout(http.HandlerFunc(h.GetRecommend))).Methods(http.MethodGet)
	router.Handle("/download-history", timeout(http.HandlerFunc(h.GetDownloadHistory))).Methods(http.MethodGet)

	router.HandleFunc("/", h.GetIndex).Methods(http.MethodGet)
	router.Handle("/admin", timeout(http.HandlerFunc(h.GetAdmin))).Methods(http.MethodGet)
	router.HandleFunc("/admin/login", h.PostAdminLogin).Methods(http.MethodPost)
	router.HandleFunc("/admin/logout", h.GetAdminLogout).Methods(http.MethodGet)
	router.Handle("/admin/resolve_alert/{id:[0-9]+}", timeout(http.HandlerFunc(h.PostResolveAlert))).Methods(http.MethodPost)
	router.HandleFunc("/price", h.Price).Methods(http.MethodGet, http.MethodPost)

	return router
}
