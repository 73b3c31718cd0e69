package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nav-lambda/safety.report/internal/certify"
	"github.com/nav-lambda/safety.report/internal/db"
	"github.com/nav-lambda/safety.report/internal/pipeline"
	"github.com/nav-lambda/safety.report/internal/storage/sqlite"
)

// fakeCore is a canned SafetyCore for handler tests.
type fakeCore struct {
	output   pipeline.CycleOutput
	stats    certify.Stats
	alpha    float64
	resetOK  bool
	resetHit int
}

func (f *fakeCore) LastOutput() pipeline.CycleOutput { return f.output }
func (f *fakeCore) Stats() certify.Stats             { return f.stats }
func (f *fakeCore) Alpha() float64                   { return f.alpha }
func (f *fakeCore) UpdateSafetyAlpha(a float64) float64 {
	if a > 20 {
		a = 20
	}
	f.alpha = a
	return f.alpha
}
func (f *fakeCore) Reset() bool {
	f.resetHit++
	return f.resetOK
}

func newTestServer(core SafetyCore, store *sqlite.CertificateStore) *WebServer {
	return NewWebServer(WebServerConfig{Address: "127.0.0.1:0", Core: core, Store: store})
}

func TestHandleStatus(t *testing.T) {
	core := &fakeCore{
		output: pipeline.CycleOutput{Processed: true, Certified: true, PScore: 77.3},
		stats:  certify.Stats{TotalCertificates: 12, WindowSize: 12, HistoricalMean: 80},
		alpha:  5,
	}
	ws := newTestServer(core, nil)

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/safety/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Output pipeline.CycleOutput `json:"output"`
		Alpha  float64              `json:"alpha"`
		Stats  certify.Stats        `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Output.PScore != 77.3 || body.Alpha != 5 || body.Stats.TotalCertificates != 12 {
		t.Errorf("unexpected status body: %+v", body)
	}

	rec = httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/safety/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func TestHandleParamsUpdateClampsAlpha(t *testing.T) {
	core := &fakeCore{alpha: 5}
	ws := newTestServer(core, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/safety/params", strings.NewReader(`{"alpha": 100}`))
	ws.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var applied map[string]float64
	if err := json.Unmarshal(rec.Body.Bytes(), &applied); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if applied["alpha"] != 20 {
		t.Errorf("applied alpha = %v, want clamped 20", applied["alpha"])
	}

	rec = httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/safety/params", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "20") {
		t.Errorf("GET params after update = %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandleParamsRejectsBadJSON(t *testing.T) {
	ws := newTestServer(&fakeCore{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/safety/params", strings.NewReader(`{alpha`))
	ws.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleReset(t *testing.T) {
	core := &fakeCore{resetOK: false}
	ws := newTestServer(core, nil)

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/safety/reset", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("refused reset status = %d, want 409", rec.Code)
	}

	core.resetOK = true
	rec = httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/safety/reset", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("reset status = %d, want 200", rec.Code)
	}
	if core.resetHit != 2 {
		t.Errorf("reset called %d times, want 2", core.resetHit)
	}
}

func TestCertificatesAndChartEndpoints(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "monitor.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	store := sqlite.NewCertificateStore(database.DB)

	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		cert := certify.Certificate{
			Timestamp:       base.Add(time.Duration(i) * time.Second),
			EquationID:      certify.EquationID,
			PScore:          float64(70 + i),
			Sim2ValEstimate: float64(80 + i),
			Status:          certify.StatusVerifiedSafe,
			Verified:        true,
			Hash:            "h",
		}
		if err := store.Insert(&cert); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	ws := newTestServer(&fakeCore{}, store)

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/safety/certificates?limit=3", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("certificates status = %d, body %s", rec.Code, rec.Body.String())
	}
	var certs []certify.Certificate
	if err := json.Unmarshal(rec.Body.Bytes(), &certs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(certs) != 3 {
		t.Errorf("returned %d certificates, want 3", len(certs))
	}

	rec = httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/safety/certificates?limit=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/safety/chart", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("chart status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("chart content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "p_score") {
		t.Error("chart HTML missing p_score series")
	}
}

func TestEndpointsWithoutStore(t *testing.T) {
	ws := newTestServer(&fakeCore{}, nil)

	for _, path := range []string{"/api/safety/certificates", "/api/safety/chart"} {
		rec := httptest.NewRecorder()
		ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404 without a store", path, rec.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	ws := newTestServer(&fakeCore{}, nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("health body = %s", rec.Body.String())
	}
}
