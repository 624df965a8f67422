package http

import (
	"bytes"
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/smart-farm-service/internal/models"
	"github.com/kjstillabower/smart-farm-service/internal/observability"
	"github.com/kjstillabower/smart-farm-service/internal/reqctx"
	"github.com/kjstillabower/smart-farm-service/internal/session"
	"github.com/kjstillabower/smart-farm-service/internal/store"
)

const (
	adminPath       = "/admin"
	historyFilename = "sensor_history.csv"
)

var historyHeader = []string{"timestamp", "temperature", "humidity", "soil", "soil_status"}

type adminAlert struct {
	ID        uint
	Message   string
	CreatedAt string
	Resolved  bool
	Status    string
}

type adminPage struct {
	Authenticated bool
	Error         string
	Alerts        []adminAlert
}

// GetAdmin handles GET /admin: alerts for a signed-in admin, the login form otherwise.
func (h *Handler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	page := adminPage{Authenticated: h.cfg.Sessions.Authenticated(r)}
	if r.URL.Query().Get("error") == "invalid" {
		page.Error = "Invalid password"
	}
	if page.Authenticated {
		alerts, err := h.cfg.Store.ListAlerts(r.Context())
		if err != nil {
			reqctx.Logger(r.Context(), h.logger).Error("list alerts failed", zap.Error(err))
			http.Error(w, "storage failure", http.StatusInternalServerError)
			return
		}
		page.Alerts = make([]adminAlert, 0, len(alerts))
		for _, a := range alerts {
			page.Alerts = append(page.Alerts, adminAlert{
				ID:        a.ID,
				Message:   a.Message,
				CreatedAt: models.LocalTime(a.CreatedAt, h.cfg.Location),
				Resolved:  a.Resolved,
				Status:    a.Status(),
			})
		}
	}
	h.render(w, r, "admin.html", page)
}

// PostAdminLogin handles POST /admin/login.
func (h *Handler) PostAdminLogin(w http.ResponseWriter, r *http.Request) {
	logger := reqctx.Logger(r.Context(), h.logger)
	if err := r.ParseForm(); err != nil {
		observability.AdminLoginsTotal.WithLabelValues("failure").Inc()
		http.Redirect(w, r, adminPath+"?error=invalid", http.StatusFound)
		return
	}
	err := h.cfg.Sessions.Login(r.Context(), w, r.PostForm.Get("password"))
	switch {
	case errors.Is(err, session.ErrInvalidPassword):
		observability.AdminLoginsTotal.WithLabelValues("failure").Inc()
		logger.Info("admin login rejected")
		http.Redirect(w, r, adminPath+"?error=invalid", http.StatusFound)
	case err != nil:
		observability.AdminLoginsTotal.WithLabelValues("error").Inc()
		logger.Error("admin login failed", zap.Error(err))
		http.Error(w, "session failure", http.StatusInternalServerError)
	default:
		observability.AdminLoginsTotal.WithLabelValues("success").Inc()
		logger.Info("admin logged in")
		http.Redirect(w, r, adminPath, http.StatusFound)
	}
}

// GetAdminLogout handles GET /admin/logout.
func (h *Handler) GetAdminLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Sessions.Logout(r.Context(), w, r); err != nil {
		reqctx.Logger(r.Context(), h.logger).Warn("session delete failed", zap.Error(err))
	}
	http.Redirect(w, r, adminPath, http.StatusFound)
}

// PostResolveAlert handles POST /admin/resolve_alert/{id}. Resolving twice is not an error.
func (h *Handler) PostResolveAlert(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Sessions.Authenticated(r) {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	err = h.cfg.Store.ResolveAlert(r.Context(), uint(id))
	switch {
	case errors.Is(err, store.ErrAlertNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case err != nil:
		reqctx.Logger(r.Context(), h.logger).Error("resolve alert failed", zap.Uint64("alert_id", id), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "storage failure")
	default:
		reqctx.Logger(r.Context(), h.logger).Info("alert resolved", zap.Uint64("alert_id", id))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// GetDownloadHistory handles GET /download-history: every stored reading,
// newest first, as CSV. Anonymous callers are sent to the login page.
func (h *Handler) GetDownloadHistory(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Sessions.Authenticated(r) {
		http.Redirect(w, r, adminPath, http.StatusFound)
		return
	}
	rows, err := h.cfg.Store.AllReadings(r.Context())
	if err != nil {
		reqctx.Logger(r.Context(), h.logger).Error("export readings failed", zap.Error(err))
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write(historyHeader)
	for _, row := range rows {
		_ = cw.Write([]string{
			models.LocalTime(row.Timestamp, h.cfg.Location),
			formatFloat(row.Temperature),
			formatFloat(row.Humidity),
			strconv.Itoa(row.Soil),
			row.SoilStatus,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		http.Error(w, "export failure", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+historyFilename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// formatFloat keeps one decimal place on whole numbers (60 -> "60.0").
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if strings.ContainsAny(s, ".NI") {
		return s
	}
	return s + ".0"
}
