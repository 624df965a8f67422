package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/smart-farm-service/internal/alerting"
	"github.com/kjstillabower/smart-farm-service/internal/cache"
	"github.com/kjstillabower/smart-farm-service/internal/ingest"
	"github.com/kjstillabower/smart-farm-service/internal/lifecycle"
	"github.com/kjstillabower/smart-farm-service/internal/models"
	"github.com/kjstillabower/smart-farm-service/internal/price"
	"github.com/kjstillabower/smart-farm-service/internal/session"
	"github.com/kjstillabower/smart-farm-service/internal/store"
)

const (
	testAPIKey   = "device-secret"
	testPassword = "admin-secret"
)

type recordingNotifier struct {
	mu       sync.Mutex
	name     string
	err      error
	messages []string
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Notify(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

// failingCache errors on every call.
type failingCache struct{}

func (failingCache) Push(ctx context.Context, s models.Snapshot) error { return errors.New("cache down") }
func (failingCache) Latest(ctx context.Context) (models.Snapshot, error) {
	return models.Snapshot{}, errors.New("cache down")
}
func (failingCache) Recent(ctx context.Context) ([]models.Snapshot, error) {
	return nil, errors.New("cache down")
}
func (failingCache) Len(ctx context.Context) (int, error) { return 0, errors.New("cache down") }

type testEnv struct {
	router    http.Handler
	handler   *Handler
	store     *store.Store
	cache     cache.Cache
	email     *recordingNotifier
	sms       *recordingNotifier
	lifecycle *lifecycle.State
	logs      *observer.ObservedLogs
}

type envOption func(*HandlerConfig)

func withCache(c cache.Cache) envOption { return func(cfg *HandlerConfig) { cfg.Cache = c } }

func withHealthCheck(name string, err error) envOption {
	return func(cfg *HandlerConfig) {
		cfg.HealthChecks = append(cfg.HealthChecks, HealthCheck{Name: name, Check: func(context.Context) error { return err }})
	}
}

// newTestEnv wires real components: temp-file SQLite, ring cache, evaluator
// with recording notifiers, memory sessions and a one-crop price catalog.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	s, err := store.Open(store.Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "farm.db")})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	email := &recordingNotifier{name: "email"}
	sms := &recordingNotifier{name: "sms", err: errors.New("twilio down")}
	evaluator := alerting.NewEvaluator(s, []alerting.Notifier{email, sms}, 25, 0, logger)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	sessions, err := session.NewManager(session.NewMemoryStore(), hash, time.Hour, false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	modelsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(modelsDir, "Ragi_rainfall_model.pkl"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	if err := price.WriteThresholds(modelsDir, "Ragi", price.Thresholds{MeanRainfall: 100, StdRainfall: 20}); err != nil {
		t.Fatalf("WriteThresholds() error = %v", err)
	}
	catalog, err := price.LoadCatalog(modelsDir)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}

	state := lifecycle.New()
	cfg := HandlerConfig{
		APIKey:    testAPIKey,
		Location:  time.FixedZone("IST", 5*3600+1800),
		Cache:     cache.NewRingCache(cache.DefaultCapacity),
		Store:     s,
		Sessions:  sessions,
		Predictor: price.NewPredictor(catalog, rand.New(rand.NewSource(7))),
		Lifecycle: state,
		Now:       func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.Ingester = ingest.NewService(s, cfg.Cache, evaluator, cfg.Location, logger)

	h := NewHandler(cfg, logger)
	return &testEnv{
		router:    NewRouter(h, logger, nil, 5*time.Second),
		handler:   h,
		store:     s,
		cache:     cfg.Cache,
		email:     email,
		sms:       sms,
		lifecycle: state,
		logs:      logs,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postSensor(t *testing.T, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/sensor", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	return e.do(req)
}

// login returns the session cookie of a successful admin login.
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(url.Values{"password": {testPassword}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := e.do(req)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/admin" {
		t.Fatalf("login status = %d location = %q", w.Code, w.Header().Get("Location"))
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&m); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return m
}

// TestHandler_PostSensor_Success verifies a valid submission is stored, cached
// and visible through /latest-sensor with rounded values.
func TestHandler_PostSensor_Success(t *testing.T) {
	// Arrange
	env := newTestEnv(t)

	// Act
	w := env.postSensor(t, testAPIKey, `{"temp":"31.25","hum":64.5,"soil":55,"soil_status":"Wet","heat_index":35.25}`)

	// Assert
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if got := decodeMap(t, w); got["status"] != "ok" {
		t.Errorf("body = %v, want status ok", got)
	}
	rows, err := env.store.AllReadings(context.Background())
	if err != nil || len(rows) != 1 {
		t.Fatalf("AllReadings() = %d rows, err %v; want 1", len(rows), err)
	}

	latest := decodeMap(t, env.do(httptest.NewRequest(http.MethodGet, "/latest-sensor", nil)))
	if latest["temperature"] != 31.2 || latest["humidity"] != 64.0 || latest["heat_index"] != 35.2 {
		t.Errorf("latest = %v, want temperature 31.2 humidity 64 heat_index 35.2 (half to even)", latest)
	}
	if latest["soil_status"] != "Wet" {
		t.Errorf("soil_status = %v, want Wet", latest["soil_status"])
	}
	if env.email.count() != 0 {
		t.Error("soil 55 should not notify")
	}
}

// TestHandler_PostSensor_Unauthorized verifies the key is checked before the
// body and nothing is stored.
func TestHandler_PostSensor_Unauthorized(t *testing.T) {
	env := newTestEnv(t)
	for _, key := range []string{"", "wrong", testAPIKey + "x"} {
		w := env.postSensor(t, key, `not json at all`)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("key %q: status = %d, want 401", key, w.Code)
		}
		body := decodeMap(t, w)
		if body["status"] != "error" || body["message"] != "unauthorized" {
			t.Errorf("key %q: body = %v", key, body)
		}
	}
	if rows, _ := env.store.AllReadings(context.Background()); len(rows) != 0 {
		t.Errorf("stored %d rows, want 0", len(rows))
	}
	if n, err := env.cache.Len(context.Background()); err != nil || n != 0 {
		t.Errorf("cache Len() = %d, %v; want 0", n, err)
	}
	latest := decodeMap(t, env.do(httptest.NewRequest(http.MethodGet, "/latest-sensor", nil)))
	if latest["soil_status"] != "Unknown" || latest["time"] != nil || latest["temperature"] != 0.0 {
		t.Errorf("latest = %v, want the empty snapshot", latest)
	}
}

// TestHandler_PostSensor_BadRequests verifies invalid json and bad values map to 400.
func TestHandler_PostSensor_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty body", ``, "invalid json"},
		{"empty object", `{}`, "invalid json"},
		{"not json", `temp=3`, "invalid json"},
		{"non-numeric temperature", `{"temperature":"hot"}`, "bad values"},
		{"fractional soil string", `{"soil":"12.5"}`, "bad values"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.postSensor(t, testAPIKey, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if got := decodeMap(t, w)["message"]; got != tt.want {
				t.Errorf("message = %v, want %q", got, tt.want)
			}
		})
	}
}

// TestHandler_PostSensor_LowSoilRaisesAlert verifies one alert per low reading
// and that a failing channel does not stop the others or the response.
func TestHandler_PostSensor_LowSoilRaisesAlert(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		if w := env.postSensor(t, testAPIKey, `{"temperature":30,"humidity":40,"soil":12,"soil_status":"Dry"}`); w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	}

	alerts, err := env.store.ListAlerts(context.Background())
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want 2 (no dedup)", len(alerts))
	}
	if !strings.HasPrefix(alerts[0].Message, "Low soil moisture: 12% at ") {
		t.Errorf("message = %q", alerts[0].Message)
	}
	if env.email.count() != 2 || env.sms.count() != 2 {
		t.Errorf("notifications email=%d sms=%d, want 2 each", env.email.count(), env.sms.count())
	}
	if env.logs.FilterMessage("notification failed").Len() != 2 {
		t.Errorf("expected 2 notification failure logs")
	}
}

// TestHandler_PostSensor_RateLimited verifies 429 once the bucket is empty.
func TestHandler_PostSensor_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.handler, zap.NewNop(), rate.NewLimiter(rate.Every(time.Hour), 1), 0)

	body := `{"soil":60}`
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/sensor", strings.NewReader(body))
		req.Header.Set(APIKeyHeader, testAPIKey)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}

// TestHandler_PostSensor_UnauthorizedDoesNotConsumeTokens verifies anonymous
// callers are turned away before the limiter.
func TestHandler_PostSensor_UnauthorizedDoesNotConsumeTokens(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.handler, zap.NewNop(), rate.NewLimiter(rate.Every(time.Hour), 1), 0)

	post := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/sensor", strings.NewReader(`{"soil":60}`))
		if key != "" {
			req.Header.Set(APIKeyHeader, key)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}
	for i := 0; i < 5; i++ {
		if code := post("wrong"); code != http.StatusUnauthorized {
			t.Fatalf("anonymous request %d status = %d, want 401", i, code)
		}
	}
	if code := post(testAPIKey); code != http.StatusOK {
		t.Errorf("keyed request status = %d, want 200", code)
	}
}

// TestHandler_GetLatest_Empty verifies the zero snapshot before any ingestion.
func TestHandler_GetLatest_Empty(t *testing.T) {
	env := newTestEnv(t)
	got := decodeMap(t, env.do(httptest.NewRequest(http.MethodGet, "/latest-sensor", nil)))
	if got["temperature"] != 0.0 || got["soil"] != 0.0 || got["soil_status"] != "Unknown" {
		t.Errorf("latest = %v", got)
	}
	if got["heat_index"] != nil || got["time"] != nil {
		t.Errorf("heat_index and time should be null, got %v / %v", got["heat_index"], got["time"])
	}
}

// TestHandler_GetHistory_FromCache verifies newest-first cache contents.
func TestHandler_GetHistory_FromCache(t *testing.T) {
	env := newTestEnv(t)
	for _, soil := range []string{"40", "50", "60"} {
		env.postSensor(t, testAPIKey, `{"soil":`+soil+`}`)
	}

	w := env.do(httptest.NewRequest(http.MethodGet, "/history", nil))
	var got []models.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 3 || got[0].Soil != 60 || got[2].Soil != 40 {
		t.Errorf("history = %+v, want soils 60,50,40", got)
	}
}

// TestHandler_GetHistory_StoreFallback verifies that an empty cache falls back
// to stored rows in the display timezone with no heat index.
func TestHandler_GetHistory_StoreFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := &models.Reading{Temperature: 20.25, Humidity: 50, Soil: 30 + i, SoilStatus: "Wet", Timestamp: ts.Add(time.Duration(i) * time.Minute)}
		if err := env.store.CreateReading(ctx, r); err != nil {
			t.Fatalf("CreateReading() error = %v", err)
		}
	}

	w := env.do(httptest.NewRequest(http.MethodGet, "/history", nil))
	var got []map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0]["soil"] != 32.0 || got[0]["time"] != "2024-06-01 15:32:00" {
		t.Errorf("first = %v, want soil 32 at 2024-06-01 15:32:00", got[0])
	}
	if got[0]["heat_index"] != nil {
		t.Errorf("heat_index = %v, want null", got[0]["heat_index"])
	}
	if got[0]["temperature"] != 20.25 {
		t.Errorf("temperature = %v, stored values are not rounded", got[0]["temperature"])
	}
}

// TestHandler_GetHistory_EmptyIsArray verifies an empty history encodes as [].
func TestHandler_GetHistory_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(httptest.NewRequest(http.MethodGet, "/history", nil))
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

// TestHandler_CacheFailure verifies cache errors degrade to the store.
func TestHandler_CacheFailure(t *testing.T) {
	env := newTestEnv(t, withCache(failingCache{}))

	if w := env.postSensor(t, testAPIKey, `{"soil":44,"soil_status":"Wet"}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite cache failure", w.Code)
	}
	latest := decodeMap(t, env.do(httptest.NewRequest(http.MethodGet, "/latest-sensor", nil)))
	if latest["soil"] != 44.0 {
		t.Errorf("latest soil = %v, want 44 from store", latest["soil"])
	}
	var hist []models.Snapshot
	if err := json.NewDecoder(env.do(httptest.NewRequest(http.MethodGet, "/history", nil)).Body).Decode(&hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("history len = %d, want 1", len(hist))
	}
}

// TestHandler_GetRecommend verifies the merged snapshot and recommendation.
func TestHandler_GetRecommend(t *testing.T) {
	env := newTestEnv(t)
	env.postSensor(t, testAPIKey, `{"temperature":25,"humidity":70,"soil":80,"soil_status":"Wet"}`)

	got := decodeMap(t, env.do(httptest.NewRequest(http.MethodGet, "/recommend", nil)))
	if name, _ := got["name"].(string); !strings.HasPrefix(name, "Rice") {
		t.Errorf("name = %v, want Rice", got["name"])
	}
	if got["soil"] != 80.0 || got["soil_status"] != "Wet" {
		t.Errorf("snapshot fields missing: %v", got)
	}
	if dos, _ := got["dos"].([]interface{}); len(dos) == 0 {
		t.Errorf("dos = %v", got["dos"])
	}
}

// TestHandler_DownloadHistory_RequiresAdmin verifies anonymous callers are redirected.
func TestHandler_DownloadHistory_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(httptest.NewRequest(http.MethodGet, "/download-history", nil))
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/admin" {
		t.Errorf("status = %d location = %q, want 302 /admin", w.Code, w.Header().Get("Location"))
	}
}

// TestHandler_DownloadHistory_CSV verifies the export for a signed-in admin.
func TestHandler_DownloadHistory_CSV(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, soil := range []int{10, 20} {
		r := &models.Reading{Temperature: 21, Humidity: 60.5, Soil: soil, SoilStatus: "Dry", Timestamp: ts.Add(time.Duration(i) * time.Hour)}
		if err := env.store.CreateReading(ctx, r); err != nil {
			t.Fatalf("CreateReading() error = %v", err)
		}
	}
	cookie := env.login(t)

	req := httptest.NewRequest(http.MethodGet, "/download-history", nil)
	req.AddCookie(cookie)
	w := env.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "sensor_history.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2", len(records))
	}
	if strings.Join(records[0], ",") != "timestamp,temperature,humidity,soil,soil_status" {
		t.Errorf("header = %v", records[0])
	}
	want := []string{"2024-06-01 06:30:00", "21.0", "60.5", "20", "Dry"}
	if strings.Join(records[1], ",") != strings.Join(want, ",") {
		t.Errorf("first row = %v, want %v", records[1], want)
	}
}

// TestHandler_AdminLogin_Invalid verifies the failure redirect and no cookie.
func TestHandler_AdminLogin_Invalid(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader("password=nope"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := env.do(req)

	if w.Code != http.StatusFound || w.Header().Get("Location") != "/admin?error=invalid" {
		t.Errorf("status = %d location = %q", w.Code, w.Header().Get("Location"))
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("failed login set a cookie")
	}

	page := env.do(httptest.NewRequest(http.MethodGet, "/admin?error=invalid", nil))
	if !strings.Contains(page.Body.String(), "Invalid password") {
		t.Error("admin page should show the invalid password message")
	}
}

// TestHandler_AdminPage_ListsAlerts verifies alerts render only when signed in.
func TestHandler_AdminPage_ListsAlerts(t *testing.T) {
	env := newTestEnv(t)
	env.postSensor(t, testAPIKey, `{"soil":5}`)

	anon := env.do(httptest.NewRequest(http.MethodGet, "/admin", nil))
	if strings.Contains(anon.Body.String(), "Low soil moisture") {
		t.Error("anonymous admin page leaked alerts")
	}
	if !strings.Contains(anon.Body.String(), `name="password"`) {
		t.Error("anonymous admin page should show the login form")
	}

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(env.login(t))
	page := env.do(req)
	if !strings.Contains(page.Body.String(), "Low soil moisture: 5%") {
		t.Errorf("admin page missing alert: %s", page.Body.String())
	}
}

// TestHandler_ResolveAlert covers 401, 404, success and idempotency.
func TestHandler_ResolveAlert(t *testing.T) {
	env := newTestEnv(t)
	env.postSensor(t, testAPIKey, `{"soil":3}`)
	alerts, _ := env.store.ListAlerts(context.Background())
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	id := alerts[0].ID
	path := "/admin/resolve_alert/" + strconv.FormatUint(uint64(id), 10)

	if w := env.do(httptest.NewRequest(http.MethodPost, path, nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", w.Code)
	}

	cookie := env.login(t)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.AddCookie(cookie)
		w := env.do(req)
		if w.Code != http.StatusOK || decodeMap(t, w)["status"] != "ok" {
			t.Errorf("resolve #%d status = %d, want 200 ok", i+1, w.Code)
		}
	}
	alerts, _ = env.store.ListAlerts(context.Background())
	if !alerts[0].Resolved {
		t.Error("alert not resolved")
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/resolve_alert/9999", nil)
	req.AddCookie(cookie)
	w := env.do(req)
	if w.Code != http.StatusNotFound || decodeMap(t, w)["message"] != "not found" {
		t.Errorf("unknown id status = %d, want 404 not found", w.Code)
	}
}

// TestHandler_AdminLogout verifies the session stops working after logout.
func TestHandler_AdminLogout(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/logout", nil)
	req.AddCookie(cookie)
	if w := env.do(req); w.Code != http.StatusFound {
		t.Fatalf("logout status = %d, want 302", w.Code)
	}

	dl := httptest.NewRequest(http.MethodGet, "/download-history", nil)
	dl.AddCookie(cookie)
	if w := env.do(dl); w.Code != http.StatusFound {
		t.Errorf("download after logout status = %d, want 302", w.Code)
	}
}

// TestHandler_Price verifies the form, a prediction and the no-model error.
func TestHandler_Price(t *testing.T) {
	env := newTestEnv(t)

	get := env.do(httptest.NewRequest(http.MethodGet, "/price", nil))
	if get.Code != http.StatusOK || !strings.Contains(get.Body.String(), `<option value="2035"`) {
		t.Errorf("price form missing year range; status %d", get.Code)
	}

	post := func(form url.Values) string {
		req := httptest.NewRequest(http.MethodPost, "/price", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return env.do(req).Body.String()
	}
	body := post(url.Values{"crop": {"Ragi"}, "rainfall": {"130"}, "year": {"2027"}})
	if !strings.Contains(body, "Predicted price for Ragi is ₹") || !strings.Contains(body, "Excessive") {
		t.Errorf("prediction missing from page: %s", body)
	}
	if body := post(url.Values{"crop": {"Cotton"}, "rainfall": {"10"}}); !strings.Contains(body, "No model found for Cotton") {
		t.Error("expected no-model error")
	}
	if body := post(url.Values{"crop": {"Ragi"}, "rainfall": {"lots"}}); !strings.Contains(body, "Error making prediction") {
		t.Error("expected parse error")
	}
	if body := post(url.Values{"crop": {"../Ragi"}, "rainfall": {"10"}}); !strings.Contains(body, "crop name contains invalid characters") {
		t.Error("expected crop validation error")
	}
	if body := post(url.Values{"crop": {"  "}, "rainfall": {"10"}}); !strings.Contains(body, "crop is required") {
		t.Error("expected missing crop error")
	}
}

// TestHandler_GetIndex verifies the dashboard renders.
func TestHandler_GetIndex(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("status = %d content-type = %q", w.Code, w.Header().Get("Content-Type"))
	}
}

// TestHandler_GetHealth verifies healthy, degraded and shutting-down states.
func TestHandler_GetHealth(t *testing.T) {
	env := newTestEnv(t, withHealthCheck("database", nil))
	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	health := decodeMap(t, w)
	if w.Code != http.StatusOK || health["status"] != "healthy" || health["service"] != "smart-farm-service" {
		t.Errorf("health = %d %v", w.Code, health)
	}
	if checks, _ := health["checks"].(map[string]interface{}); checks["database"] != "healthy" {
		t.Errorf("checks = %v", health["checks"])
	}

	env.lifecycle.SetShuttingDown(true)
	w = env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable || decodeMap(t, w)["status"] != "shutting-down" {
		t.Errorf("shutting-down health = %d", w.Code)
	}
	if env.logs.FilterMessage("health status transition").Len() != 1 {
		t.Error("expected one health status transition log")
	}
}

func TestHandler_GetHealth_Degraded(t *testing.T) {
	env := newTestEnv(t, withHealthCheck("database", nil), withHealthCheck("cache", errors.New("down")))
	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	health := decodeMap(t, w)
	if w.Code != http.StatusServiceUnavailable || health["status"] != "degraded" {
		t.Errorf("health = %d %v, want 503 degraded", w.Code, health)
	}
	checks, _ := health["checks"].(map[string]interface{})
	if checks["cache"] != "unhealthy" || checks["database"] != "healthy" {
		t.Errorf("checks = %v", checks)
	}
}

func TestFormatFloat(t *testing.T) {
	for in, want := range map[float64]string{60: "60.0", 60.5: "60.5", -3: "-3.0", 0.125: "0.125"} {
		if got := formatFloat(in); got != want {
			t.Errorf("formatFloat(%v) = %q, want %q", in, got, want)
		}
	}
}
