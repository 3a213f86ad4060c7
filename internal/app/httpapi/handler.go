// Package httpapi is the gateway facade: it translates feature calls into
// the uniform envelope the presentation layer consumes. Transport status is
// always 200 for routed requests; failure lives only inside the body as
// {ok:false, error, code}. Upstream-specific errors never leak past here.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/cassiopeia-dash/gateway/internal/app/services/astro"
	"github.com/cassiopeia-dash/gateway/internal/app/services/cms"
	"github.com/cassiopeia-dash/gateway/internal/app/services/datasets"
	"github.com/cassiopeia-dash/gateway/internal/app/services/imagery"
	"github.com/cassiopeia-dash/gateway/internal/app/services/telemetry"
	"github.com/cassiopeia-dash/gateway/internal/app/storage"
	"github.com/cassiopeia-dash/gateway/internal/envelope"
	"github.com/cassiopeia-dash/gateway/internal/logging"
)

// Default coordinates for the astronomy feature when the caller omits them.
const (
	defaultLat = 55.7558
	defaultLon = 37.6176
)

// Deps are the feature services the facade fronts.
type Deps struct {
	Astro     *astro.Service
	Imagery   *imagery.Service
	Telemetry *telemetry.Service
	Datasets  *datasets.Service
	Pages     *cms.Service
	Uploads   storage.Storage
	Log       *logging.Logger
}

type handler struct {
	deps Deps
	log  *logging.Logger
}

// NewRouter registers the API routes. Middleware (tracing, metrics, CORS,
// recovery) is applied by the caller.
func NewRouter(deps Deps) *mux.Router {
	log := deps.Log
	if log == nil {
		log = logging.Nop()
	}
	h := &handler{deps: deps, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/api/astro/events", h.astroEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/jwst/feed", h.imageryFeed).Methods(http.MethodGet)
	r.HandleFunc("/api/iss", h.telemetrySnapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/iss/last", h.telemetryLast).Methods(http.MethodGet)
	r.HandleFunc("/api/iss/trend", h.telemetryTrend).Methods(http.MethodGet)
	r.HandleFunc("/api/dashboard", h.dashboard).Methods(http.MethodGet)
	r.HandleFunc("/api/osdr", h.datasetListing).Methods(http.MethodGet)
	r.HandleFunc("/api/pages/{slug}", h.page).Methods(http.MethodGet)
	r.HandleFunc("/api/upload", h.upload).Methods(http.MethodPost)
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "now": time.Now().UTC().Format(time.RFC3339)})
}

func (h *handler) astroEvents(w http.ResponseWriter, r *http.Request) {
	lat := queryFloat(r, "lat", defaultLat)
	lon := queryFloat(r, "lon", defaultLon)
	days := queryInt(r, "days", 7)
	limit := queryInt(r, "limit", astro.DefaultLimit)

	res := h.deps.Astro.Events(r.Context(), lat, lon, days, limit)
	if !res.OK {
		h.writeFailure(w, r, res.Err)
		return
	}
	writeJSON(w, struct {
		OK     bool              `json:"ok"`
		Count  int               `json:"count"`
		Events []json.RawMessage `json:"events"`
	}{true, len(res.Payload), res.Payload})
}

func (h *handler) imageryFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := imagery.Params{
		Source:     q.Get("source"),
		Suffix:     q.Get("suffix"),
		Program:    q.Get("program"),
		Instrument: q.Get("instrument"),
		Page:       queryInt(r, "page", 1),
		PerPage:    queryInt(r, "perPage", 0),
	}

	res := h.deps.Imagery.FeedPage(r.Context(), params)
	if !res.OK {
		h.writeFailure(w, r, res.Err)
		return
	}
	writeJSON(w, struct {
		OK bool `json:"ok"`
		imagery.Feed
	}{true, res.Payload})
}

func (h *handler) telemetrySnapshot(w http.ResponseWriter, r *http.Request) {
	res := h.deps.Telemetry.Snapshot(r.Context())
	if !res.OK {
		h.writeFailure(w, r, res.Err)
		return
	}
	writeJSON(w, struct {
		OK bool `json:"ok"`
		telemetry.Snapshot
	}{true, res.Payload})
}

func (h *handler) telemetryLast(w http.ResponseWriter, r *http.Request) {
	h.writeProxy(w, r, h.deps.Telemetry.Last(r.Context()))
}

func (h *handler) telemetryTrend(w http.ResponseWriter, r *http.Request) {
	h.writeProxy(w, r, h.deps.Telemetry.Trend(r.Context(), r.URL.Query()))
}

func (h *handler) writeProxy(w http.ResponseWriter, r *http.Request, res envelope.Result[json.RawMessage]) {
	if !res.OK {
		h.writeFailure(w, r, res.Err)
		return
	}
	writeJSON(w, struct {
		OK   bool            `json:"ok"`
		Data json.RawMessage `json:"data"`
	}{true, res.Payload})
}

func (h *handler) dashboard(w http.ResponseWriter, r *http.Request) {
	res := h.deps.Telemetry.Dashboard(r.Context())
	if !res.OK {
		h.writeFailure(w, r, res.Err)
		return
	}
	writeJSON(w, struct {
		OK bool `json:"ok"`
		telemetry.Dashboard
	}{true, res.Payload})
}

func (h *handler) datasetListing(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	page := queryInt(r, "page", 1)
	search := r.URL.Query().Get("search")

	res := h.deps.Datasets.List(r.Context(), limit, page, search)
	if !res.OK {
		h.writeFailure(w, r, res.Err)
		return
	}
	writeJSON(w, struct {
		OK bool `json:"ok"`
		datasets.Listing
	}{true, res.Payload})
}

func (h *handler) page(w http.ResponseWriter, r *http.Request) {
	if h.deps.Pages == nil {
		h.writeFailure(w, r, envelope.NewError(envelope.CodeConfigurationError,
			"page store is not configured", http.StatusInternalServerError))
		return
	}
	slug := mux.Vars(r)["slug"]
	res := h.deps.Pages.PageData(r.Context(), slug)
	if !res.OK {
		h.writeFailure(w, r, res.Err)
		return
	}
	writeJSON(w, struct {
		OK bool `json:"ok"`
		cms.Page
	}{true, res.Payload})
}

func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	if h.deps.Uploads == nil {
		h.writeFailure(w, r, envelope.NewError(envelope.CodeConfigurationError,
			"upload storage is not configured", http.StatusInternalServerError))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeFailure(w, r, envelope.NewError(envelope.CodeInternalError,
			"missing file field", http.StatusBadRequest))
		return
	}
	defer file.Close()

	path, err := h.deps.Uploads.Store(r.Context(), header.Filename, file)
	if err != nil {
		h.log.Error(r.Context(), "upload failed", err, map[string]any{"name": header.Filename})
		h.writeFailure(w, r, envelope.NewError(envelope.CodeInternalError,
			"upload failed", http.StatusInternalServerError))
		return
	}
	writeJSON(w, struct {
		OK   bool   `json:"ok"`
		Path string `json:"path"`
	}{true, path})
}

// writeFailure emits the uniform failure body. The classified message and
// status hint cross the wire; the trace ID goes to the log.
func (h *handler) writeFailure(w http.ResponseWriter, r *http.Request, failure *envelope.Error) {
	failure = failure.WithTrace(logging.TraceIDFrom(r.Context()))
	h.log.Error(r.Context(), "request failed", failure, map[string]any{
		"path": r.URL.Path,
		"code": failure.Code,
	})
	writeJSON(w, struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		Code  int    `json:"code"`
	}{false, failure.Message, failure.StatusHint})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

func queryFloat(r *http.Request, name string, fallback float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
