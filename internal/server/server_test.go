package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fnordcredit/fnordcredit/internal/testutil"
	"github.com/fnordcredit/fnordcredit/pkg/events"
	"github.com/fnordcredit/fnordcredit/pkg/jsondb"
)

func newTestServer(t *testing.T, cfg Config, content string) (*Server, *jsondb.Store) {
	t.Helper()
	store, err := jsondb.New(jsondb.Config{StorageFilePrefix: "db"})
	if err != nil {
		t.Fatal(err)
	}
	if content != "" {
		if err := store.LoadFromString(content); err != nil {
			t.Fatal(err)
		}
	}
	return New(cfg, store, nil), store
}

func do(t *testing.T, s *Server, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func postJSON(t *testing.T, s *Server, target, body string) *httptest.ResponseRecorder {
	return do(t, s, http.MethodPost, target, echo.MIMEApplicationJSON, body)
}

func TestAPI_Routes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"list", http.MethodGet, "/users/all", "", 200, `["alice"]`},
		{"add", http.MethodPost, "/user/add", `{"username":"bob"}`, 200, `{"created":"bob"}`},
		{"add existing", http.MethodPost, "/user/add", `{"username":"alice"}`, 409, "Error: User already exists"},
		{"add empty", http.MethodPost, "/user/add", `{"username":""}`, 406, "Error: No username set"},
		{"add missing", http.MethodPost, "/user/add", `{}`, 406, "Error: No username set"},
		{"add number", http.MethodPost, "/user/add", `{"username":7}`, 501, "Error: Unsupported username format"},
		{"credit", http.MethodPost, "/user/credit", `{"username":"alice","delta":2.5}`, 200, `{"name":"alice","credit":12.5}`},
		{"credit unknown", http.MethodPost, "/user/credit", `{"username":"zed","delta":1}`, 404, "Error: Username not found"},
		{
			"credit string delta", http.MethodPost, "/user/credit", `{"username":"alice","delta":"1"}`, 501,
			`Error: Unsupported field type {"fieldName":"amount", "receivedType": "string", "expectedType": "number"}`,
		},
		{"get credit", http.MethodGet, "/user/alice/credit", "", 200, `10`},
		{"bad json", http.MethodPost, "/user/add", `{"username":`, 400, "Error: Invalid JSON body"},
		{"unknown route", http.MethodGet, "/nope", "", 404, "Error: Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, Config{}, `{"~alice":{"name":"alice","credit":10}}`)
			rec := do(t, s, tt.method, tt.target, echo.MIMEApplicationJSON, tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := rec.Body.String(); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMETextPlain) {
				t.Errorf("Content-Type = %q, want text/plain", ct)
			}
		})
	}
}

func TestAPI_NotLoaded(t *testing.T) {
	s, _ := newTestServer(t, Config{}, "")

	for _, target := range []string{"/users/all", "/user/alice/credit"} {
		rec := do(t, s, http.MethodGet, target, "", "")
		if rec.Code != http.StatusServiceUnavailable || rec.Body.String() != "Error: Database not loaded" {
			t.Errorf("GET %s = %d %q", target, rec.Code, rec.Body.String())
		}
	}
	rec := postJSON(t, s, "/user/add", `{"username":"alice"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("POST /user/add = %d", rec.Code)
	}
}

func TestAPI_FormBody(t *testing.T) {
	s, store := newTestServer(t, Config{}, `{}`)

	form := url.Values{"username": {"42"}}
	rec := do(t, s, http.MethodPost, "/user/add", echo.MIMEApplicationForm, form.Encode())
	if rec.Code != http.StatusOK || rec.Body.String() != `{"created":"42"}` {
		t.Fatalf("add = %d %q", rec.Code, rec.Body.String())
	}

	form = url.Values{"username": {"42"}, "delta": {"-1.5"}}
	rec = do(t, s, http.MethodPost, "/user/credit", echo.MIMEApplicationForm, form.Encode())
	if rec.Code != http.StatusOK || rec.Body.String() != `{"name":"42","credit":-1.5}` {
		t.Fatalf("credit = %d %q", rec.Code, rec.Body.String())
	}
	if !store.Dirty() {
		t.Error("store not dirty after updates")
	}
}

func TestHealth(t *testing.T) {
	s, store := newTestServer(t, Config{}, "")

	rec := do(t, s, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unloaded health = %d", rec.Code)
	}

	if err := store.LoadFromString(`{}`); err != nil {
		t.Fatal(err)
	}
	store.MarkDirty()
	rec = do(t, s, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("loaded health = %d", rec.Code)
	}

	var got struct {
		Status string `json:"status"`
		Loaded bool   `json:"loaded"`
		Dirty  bool   `json:"dirty"`
		State  string `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "ok" || !got.Loaded || !got.Dirty || got.State != "Stopped" {
		t.Errorf("health = %+v", got)
	}
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, Config{}, `{}`)

	s.metrics.HandleEvent(events.Event{Kind: events.KindLog, Op: "Load DB"})
	s.metrics.HandleEvent(events.Event{Kind: events.KindError, Op: "Save DB"})
	do(t, s, http.MethodGet, "/users/all", "", "")
	do(t, s, http.MethodGet, "/user/ghost/credit", "", "")

	rec := do(t, s, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`jsondb_events_total{kind="log",op="Load DB"} 1`,
		`jsondb_events_total{kind="error",op="Save DB"} 1`,
		`jsondb_loaded 1`,
		`jsondb_dirty 0`,
		`http_requests_total{method="GET",path="/users/all",status="200"} 1`,
		`http_requests_total{method="GET",path="/user/:name/credit",status="404"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestMetrics_CountStoreEvents(t *testing.T) {
	clk := testutil.NewManualClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	store, err := jsondb.New(jsondb.Config{
		StorageFilePrefix: filepath.Join(t.TempDir(), "database"),
	}, jsondb.WithClock(clk))
	if err != nil {
		t.Fatal(err)
	}
	s := New(Config{}, store, nil)

	if err := store.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer store.Shutdown(context.Background())
	clk.Advance(0)

	body := do(t, s, http.MethodGet, "/metrics", "", "").Body.String()
	for _, want := range []string{
		`jsondb_events_total{kind="log",op="Load DB"} 1`,
		`jsondb_events_total{kind="error",op="Load DB"} 1`,
		`jsondb_loaded 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, Config{RateLimit: 0.001, RateBurst: 1}, `{}`)

	if rec := do(t, s, http.MethodGet, "/users/all", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d", rec.Code)
	}
	rec := do(t, s, http.MethodGet, "/users/all", "", "")
	if rec.Code != http.StatusTooManyRequests || rec.Body.String() != "Error: Rate limit exceeded" {
		t.Errorf("second request = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequestID(t *testing.T) {
	s, _ := newTestServer(t, Config{}, `{}`)
	rec := do(t, s, http.MethodGet, "/users/all", "", "")
	if id := rec.Header().Get(echo.HeaderXRequestID); len(id) != 36 {
		t.Errorf("X-Request-ID = %q, want a UUID", id)
	}
}
