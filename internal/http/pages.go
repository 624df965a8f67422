package http

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/smart-farm-service/internal/price"
	"github.com/kjstillabower/smart-farm-service/internal/reqctx"
	"github.com/kjstillabower/smart-farm-service/internal/validation"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"money": func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
}).ParseFS(templateFS, "templates/*.html"))

// render buffers the page; a template error becomes a 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		reqctx.Logger(r.Context(), h.logger).Error("render failed", zap.String("template", name), zap.Error(err))
		http.Error(w, "render failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// GetIndex handles GET /.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "index.html", nil)
}

type pricePage struct {
	Crops        []string
	Years        []int
	SelectedYear int
	SelectedCrop string
	Rainfall     string
	Prediction   *price.Prediction
	Error        string
}

// Price handles GET and POST /price.
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	current := h.cfg.Now().Year()
	page := pricePage{
		Crops:        h.cfg.Predictor.Crops(),
		Years:        price.YearRange(current),
		SelectedYear: current,
	}
	if r.Method == http.MethodPost {
		h.predict(r, &page)
	}
	h.render(w, r, "price.html", &page)
}

func (h *Handler) predict(r *http.Request, page *pricePage) {
	if err := r.ParseForm(); err != nil {
		page.Error = "Error making prediction: " + err.Error()
		return
	}
	page.SelectedCrop = strings.TrimSpace(r.PostForm.Get("crop"))
	if _, err := validation.CropName(page.SelectedCrop); err != nil {
		page.Error = "Error making prediction: " + err.Error()
		return
	}
	page.Rainfall = strings.TrimSpace(r.PostForm.Get("rainfall"))

	rainfall, err := strconv.ParseFloat(page.Rainfall, 64)
	if err != nil {
		page.Error = "Error making prediction: rainfall must be a number"
		return
	}
	if y := strings.TrimSpace(r.PostForm.Get("year")); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			page.Error = "Error making prediction: year must be a number"
			return
		}
		page.SelectedYear = year
	}

	pred, err := h.cfg.Predictor.Predict(page.SelectedCrop, rainfall, page.SelectedYear)
	if errors.Is(err, price.ErrNoModel) {
		page.Error = "No model found for " + page.SelectedCrop
		return
	}
	if err != nil {
		page.Error = "Error making prediction: " + err.Error()
		return
	}
	page.Prediction = &pred
}
