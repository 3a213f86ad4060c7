package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/cassiopeia-dash/gateway/internal/app/services/astro"
	"github.com/cassiopeia-dash/gateway/internal/app/services/cms"
	"github.com/cassiopeia-dash/gateway/internal/app/services/datasets"
	"github.com/cassiopeia-dash/gateway/internal/app/services/imagery"
	"github.com/cassiopeia-dash/gateway/internal/app/services/telemetry"
	"github.com/cassiopeia-dash/gateway/internal/cache"
	"github.com/cassiopeia-dash/gateway/internal/envelope"
	"github.com/cassiopeia-dash/gateway/internal/logging"
)

// upstreamStub answers GetJSON with a canned result per path. An empty path
// key is the catch-all.
type upstreamStub struct {
	results map[string]envelope.Result[json.RawMessage]
	base    string
}

func (s *upstreamStub) GetJSON(_ context.Context, path string, _ url.Values) envelope.Result[json.RawMessage] {
	if res, ok := s.results[path]; ok {
		return res
	}
	if res, ok := s.results[""]; ok {
		return res
	}
	return envelope.Failf[json.RawMessage](envelope.CodeNetworkError, 502, "no stub for %s", path)
}

func (s *upstreamStub) BaseURL() string { return s.base }

type pageStoreStub struct {
	pages map[string]cms.Page
	err   error
}

func (s *pageStoreStub) ActivePage(_ context.Context, slug string) (cms.Page, bool, error) {
	if s.err != nil {
		return cms.Page{}, false, s.err
	}
	page, ok := s.pages[slug]
	return page, ok, nil
}

type storageStub struct {
	name string
	body string
	err  error
}

func (s *storageStub) Store(_ context.Context, name string, r io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, _ := io.ReadAll(r)
	s.name = name
	s.body = string(data)
	return "/storage/uploads/" + name, nil
}

func okRaw(body string) envelope.Result[json.RawMessage] {
	return envelope.Ok(json.RawMessage(body))
}

func testDeps(stub *upstreamStub) Deps {
	provider := cache.NewMemoryProvider()
	log := logging.Nop()
	return Deps{
		Astro:     astro.NewService(stub, cache.NewStore[[]json.RawMessage]("astro", provider, log, nil), log),
		Imagery:   imagery.NewService(stub, cache.NewStore[imagery.Feed]("imagery", provider, log, nil), log),
		Telemetry: telemetry.NewService(stub, cache.NewStore[telemetry.Snapshot]("telemetry", provider, log, nil), cache.NewStore[telemetry.Dashboard]("dashboard", provider, log, nil), log),
		Datasets:  datasets.NewService(stub, cache.NewStore[[]datasets.Row]("datasets", provider, log, nil), log, 0),
		Log:       log,
	}
}

func doGet(t *testing.T, router http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v (%s)", target, err, rec.Body.String())
	}
	return rec, body
}

func TestAstroEventsEnvelope(t *testing.T) {
	stub := &upstreamStub{results: map[string]envelope.Result[json.RawMessage]{
		"/bodies/events": okRaw(`{"data":[{"body":"Mars"},{"body":"Venus"}]}`),
	}}
	router := NewRouter(testDeps(stub))

	rec, body := doGet(t, router, "/api/astro/events?days=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["ok"] != true {
		t.Fatalf("body = %v", body)
	}
	if body["count"] != float64(2) {
		t.Fatalf("count = %v", body["count"])
	}
}

func TestFailureBodyIsUniform(t *testing.T) {
	stub := &upstreamStub{results: map[string]envelope.Result[json.RawMessage]{
		"/bodies/events": envelope.Failf[json.RawMessage](envelope.CodeUpstreamClientError, 403, "credentials rejected"),
	}}
	router := NewRouter(testDeps(stub))

	rec, body := doGet(t, router, "/api/astro/events")
	// Transport status stays 200; the failure is in the body.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["ok"] != false {
		t.Fatalf("ok = %v", body["ok"])
	}
	if body["error"] != "credentials rejected" {
		t.Fatalf("error = %v", body["error"])
	}
	if body["code"] != float64(403) {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestImageryFeedEnvelope(t *testing.T) {
	stub := &upstreamStub{
		base: "https://img.example",
		results: map[string]envelope.Result[json.RawMessage]{
			"all/type/jpg": okRaw(`{"body":[{"observation_id":"o1","thumbnail":"https://x/a.jpg"}]}`),
		},
	}
	router := NewRouter(testDeps(stub))

	_, body := doGet(t, router, "/api/jwst/feed")
	if body["ok"] != true || body["count"] != float64(1) {
		t.Fatalf("body = %v", body)
	}
	if body["source"] != "all/type/jpg" {
		t.Fatalf("source = %v", body["source"])
	}
}

func TestTelemetryRoutes(t *testing.T) {
	stub := &upstreamStub{results: map[string]envelope.Result[json.RawMessage]{
		"/last":  okRaw(`{"payload":{"velocity":27580.5,"altitude":423.1}}`),
		"/trend": okRaw(`{"points":[]}`),
	}}
	router := NewRouter(testDeps(stub))

	_, body := doGet(t, router, "/api/iss")
	if body["ok"] != true {
		t.Fatalf("snapshot body = %v", body)
	}
	if _, has := body["last"]; !has {
		t.Fatalf("snapshot missing last: %v", body)
	}

	_, body = doGet(t, router, "/api/iss/last")
	if body["ok"] != true {
		t.Fatalf("last proxy body = %v", body)
	}

	_, body = doGet(t, router, "/api/dashboard")
	metrics, _ := body["metrics"].(map[string]any)
	if metrics["iss_speed"] != 27580.5 {
		t.Fatalf("dashboard metrics = %v", metrics)
	}
}

func TestDatasetListingEnvelope(t *testing.T) {
	stub := &upstreamStub{results: map[string]envelope.Result[json.RawMessage]{
		"/osdr/list": okRaw(`{"items":[{"id":"r1","raw":{"OSD-7":{"REST_URL":"https://o/api/OSD-7/"}}}]}`),
	}}
	router := NewRouter(testDeps(stub))

	_, body := doGet(t, router, "/api/osdr?limit=10")
	if body["ok"] != true || body["total"] != float64(1) {
		t.Fatalf("body = %v", body)
	}
}

func TestPageRoutes(t *testing.T) {
	deps := testDeps(&upstreamStub{})
	deps.Pages = cms.NewService(&pageStoreStub{pages: map[string]cms.Page{
		"about": {Title: "About", HTML: "<p>hi</p>"},
	}}, logging.Nop())
	router := NewRouter(deps)

	_, body := doGet(t, router, "/api/pages/about")
	if body["ok"] != true || body["title"] != "About" {
		t.Fatalf("body = %v", body)
	}

	rec, body := doGet(t, router, "/api/pages/missing")
	if rec.Code != http.StatusOK || body["ok"] != false {
		t.Fatalf("missing page: status=%d body=%v", rec.Code, body)
	}
	if body["code"] != float64(404) {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestPageStoreUnconfigured(t *testing.T) {
	router := NewRouter(testDeps(&upstreamStub{}))

	rec, body := doGet(t, router, "/api/pages/about")
	if rec.Code != http.StatusOK || body["ok"] != false {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
}

func TestUpload(t *testing.T) {
	stub := &storageStub{}
	deps := testDeps(&upstreamStub{})
	deps.Uploads = stub
	router := NewRouter(deps)

	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(part, "fake image bytes")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(buf.String()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	if body["ok"] != true || body["path"] != "/storage/uploads/photo.jpg" {
		t.Fatalf("body = %v", body)
	}
	if stub.body != "fake image bytes" {
		t.Fatalf("stored body = %q", stub.body)
	}
}

func TestUploadMissingFileField(t *testing.T) {
	deps := testDeps(&upstreamStub{})
	deps.Uploads = &storageStub{}
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("not a form"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || body["ok"] != false {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
}

func TestHealthz(t *testing.T) {
	router := NewRouter(testDeps(&upstreamStub{}))

	rec, body := doGet(t, router, "/healthz")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
}
