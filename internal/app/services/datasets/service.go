// Package datasets aggregates the open-science-data listing. Upstream rows
// carry a `raw` value that is either a plain record or a dictionary of
// dataset-id keys mapping to per-dataset details; the flattener turns both
// shapes into uniform rows and the listing layer adds search and
// pagination over the flattened set.
package datasets

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cassiopeia-dash/gateway/internal/cache"
	"github.com/cassiopeia-dash/gateway/internal/envelope"
	"github.com/cassiopeia-dash/gateway/internal/logging"
)

const (
	// TTL for the memoized flattened listing.
	TTL = 600 * time.Second

	minLimit = 1
	maxLimit = 100

	// DefaultFetchLimit is how many upstream rows the listing endpoint
	// pulls before filtering; flattening may multiply rows.
	DefaultFetchLimit = 50

	// datasetIDPrefix marks dictionary keys that identify datasets.
	datasetIDPrefix = "OSD-"
)

// Row is one flattened dataset row.
type Row struct {
	ID         string          `json:"id,omitempty"`
	DatasetID  string          `json:"dataset_id,omitempty"`
	Title      string          `json:"title,omitempty"`
	Status     string          `json:"status,omitempty"`
	UpdatedAt  string          `json:"updated_at,omitempty"`
	InsertedAt string          `json:"inserted_at,omitempty"`
	RestURL    string          `json:"rest_url,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Listing is one page of the filtered dataset listing.
type Listing struct {
	Items      []Row `json:"items"`
	Page       int   `json:"page"`
	TotalPages int   `json:"totalPages"`
	Total      int   `json:"total"`
	PerPage    int   `json:"perPage"`
}

// Fetcher issues one classified upstream call.
type Fetcher interface {
	GetJSON(ctx context.Context, path string, query url.Values) envelope.Result[json.RawMessage]
}

// Service is the dataset listing aggregator.
type Service struct {
	client     Fetcher
	cache      *cache.Store[[]Row]
	log        *logging.Logger
	fetchLimit int
}

// NewService wires the aggregator. fetchLimit <= 0 selects the default.
func NewService(client Fetcher, store *cache.Store[[]Row], log *logging.Logger, fetchLimit int) *Service {
	if log == nil {
		log = logging.Nop()
	}
	if fetchLimit <= 0 {
		fetchLimit = DefaultFetchLimit
	}
	return &Service{client: client, cache: store, log: log, fetchLimit: clamp(fetchLimit, minLimit, maxLimit)}
}

// FlattenedList returns the flattened dataset rows, memoized per limit.
func (s *Service) FlattenedList(ctx context.Context, limit int) envelope.Result[[]Row] {
	limit = clamp(limit, minLimit, maxLimit)
	key := cache.Key(limit)
	return s.cache.GetOrCompute(ctx, key, TTL, func() envelope.Result[[]Row] {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(limit))
		raw := s.client.GetJSON(ctx, "/osdr/list", query)
		if !raw.OK {
			return envelope.Recode[json.RawMessage, []Row](raw)
		}
		return envelope.Ok(Flatten(extractItems(raw.Payload)))
	})
}

// List returns one page of rows matching search. The search is a
// case-insensitive substring match against title and dataset id; pagination
// is computed over the filtered set.
func (s *Service) List(ctx context.Context, perPage, page int, search string) envelope.Result[Listing] {
	perPage = clamp(perPage, minLimit, maxLimit)
	if page < 1 {
		page = 1
	}

	all := s.FlattenedList(ctx, s.fetchLimit)
	if !all.OK {
		return envelope.Recode[[]Row, Listing](all)
	}

	filtered := all.Payload
	if search != "" {
		needle := strings.ToLower(search)
		filtered = make([]Row, 0, len(all.Payload))
		for _, row := range all.Payload {
			if strings.Contains(strings.ToLower(row.Title), needle) ||
				strings.Contains(strings.ToLower(row.DatasetID), needle) {
				filtered = append(filtered, row)
			}
		}
	}

	total := len(filtered)
	totalPages := (total + perPage - 1) / perPage

	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return envelope.Ok(Listing{
		Items:      filtered[start:end],
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
		PerPage:    perPage,
	})
}

// extractItems finds the row list in the upstream payload: `items` or a
// bare top-level array.
func extractItems(payload json.RawMessage) []gjson.Result {
	root := gjson.ParseBytes(payload)
	if items := root.Get("items"); items.IsArray() {
		return items.Array()
	}
	if root.IsArray() {
		return root.Array()
	}
	return nil
}

// Flatten normalizes upstream rows. Dictionary-shaped raw values emit one
// row per inner dataset key; plain rows pass through with an available REST
// URL lifted to the top level.
func Flatten(rows []gjson.Result) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		raw := row.Get("raw")
		if raw.IsObject() && looksDatasetDict(raw) {
			out = append(out, flattenDict(row, raw)...)
			continue
		}
		out = append(out, passThrough(row, raw))
	}
	return out
}

// looksDatasetDict reports whether raw is a dataset dictionary: any key
// matching the identifier prefix, or any value object carrying a REST-URL
// field.
func looksDatasetDict(raw gjson.Result) bool {
	dict := false
	raw.ForEach(func(key, value gjson.Result) bool {
		if strings.HasPrefix(key.String(), datasetIDPrefix) {
			dict = true
			return false
		}
		if value.IsObject() && (value.Get("REST_URL").Exists() || value.Get("rest_url").Exists()) {
			dict = true
			return false
		}
		return true
	})
	return dict
}

func flattenDict(row, raw gjson.Result) []Row {
	var out []Row
	raw.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		rest := firstString(value, "REST_URL", "rest_url", "rest")
		title := firstString(value, "title", "name")
		if title == "" && rest != "" {
			title = path.Base(strings.TrimRight(rest, "/"))
		}
		out = append(out, Row{
			ID:         row.Get("id").String(),
			DatasetID:  key.String(),
			Title:      title,
			Status:     row.Get("status").String(),
			UpdatedAt:  row.Get("updated_at").String(),
			InsertedAt: row.Get("inserted_at").String(),
			RestURL:    rest,
			Raw:        json.RawMessage(value.Raw),
		})
		return true
	})
	return out
}

func passThrough(row, raw gjson.Result) Row {
	flat := Row{
		ID:         row.Get("id").String(),
		Title:      firstString(row, "title", "name"),
		Status:     row.Get("status").String(),
		UpdatedAt:  row.Get("updated_at").String(),
		InsertedAt: row.Get("inserted_at").String(),
	}
	if raw.IsObject() {
		flat.RestURL = firstString(raw, "REST_URL", "rest_url")
		flat.Raw = json.RawMessage(raw.Raw)
	}
	return flat
}

func firstString(doc gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := doc.Get(key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
