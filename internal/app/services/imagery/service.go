// Package imagery aggregates the space-telescope image feed. The upstream
// payload is irregular: image URLs hide under a handful of candidate field
// names, sometimes nested, so normalization scans candidates in a fixed
// order and drops items without a usable URL.
package imagery

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cassiopeia-dash/gateway/internal/cache"
	"github.com/cassiopeia-dash/gateway/internal/envelope"
	"github.com/cassiopeia-dash/gateway/internal/logging"
)

const (
	// TTL for memoized feed pages.
	TTL = 3600 * time.Second

	minPerPage     = 1
	maxPerPage     = 60
	defaultPerPage = 24

	jpgPath = "all/type/jpg"
)

// Ordered candidate field names for an item's image URL.
var urlCandidates = []string{
	"thumbnail", "thumbnailUrl", "image", "img", "url", "href", "link", "s3_url", "file_url",
}

var (
	absoluteRe = regexp.MustCompile(`(?i)^https?://`)
	imageExtRe = regexp.MustCompile(`(?i)\.(jpg|jpeg|png)$`)
)

// Params selects a feed page.
type Params struct {
	Source     string // "jpg", "suffix" or "program"
	Suffix     string
	Program    string
	Instrument string
	Page       int
	PerPage    int
}

// Item is the normalized view model for one image record.
type Item struct {
	URL         string   `json:"url"`
	Obs         string   `json:"obs"`
	Program     string   `json:"program"`
	Suffix      string   `json:"suffix"`
	Instruments []string `json:"inst"`
	Caption     string   `json:"caption"`
	Link        string   `json:"link"`
}

// Feed is one normalized feed page.
type Feed struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
	Items  []Item `json:"items"`
}

// Fetcher issues one classified upstream call.
type Fetcher interface {
	GetJSON(ctx context.Context, path string, query url.Values) envelope.Result[json.RawMessage]
	BaseURL() string
}

// Service is the imagery feed aggregator/normalizer.
type Service struct {
	client Fetcher
	cache  *cache.Store[Feed]
	log    *logging.Logger
}

// NewService wires the aggregator.
func NewService(client Fetcher, store *cache.Store[Feed], log *logging.Logger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{client: client, cache: store, log: log}
}

// FeedPage returns one normalized page of the image feed.
func (s *Service) FeedPage(ctx context.Context, p Params) envelope.Result[Feed] {
	path := resolvePath(p)
	instrument := strings.ToUpper(strings.TrimSpace(p.Instrument))
	page := p.Page
	if page < 1 {
		page = 1
	}
	perPage := p.PerPage
	if perPage == 0 {
		perPage = defaultPerPage
	}
	perPage = clamp(perPage, minPerPage, maxPerPage)

	key := cache.Key(path, page, perPage, instrument)
	return s.cache.GetOrCompute(ctx, key, TTL, func() envelope.Result[Feed] {
		return s.fetch(ctx, path, page, perPage, instrument)
	})
}

// resolvePath maps the source mode onto an upstream endpoint. A mode whose
// required value is empty falls back to the jpg feed.
func resolvePath(p Params) string {
	suffix := strings.TrimSpace(p.Suffix)
	program := strings.TrimSpace(p.Program)
	switch {
	case p.Source == "suffix" && suffix != "":
		return "all/suffix/" + strings.TrimLeft(suffix, "/")
	case p.Source == "program" && program != "":
		return "program/id/" + url.PathEscape(program)
	default:
		return jpgPath
	}
}

func (s *Service) fetch(ctx context.Context, path string, page, perPage int, instrument string) envelope.Result[Feed] {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("perPage", strconv.Itoa(perPage))

	raw := s.client.GetJSON(ctx, path, query)
	if !raw.OK {
		return envelope.Recode[json.RawMessage, Feed](raw)
	}

	items := make([]Item, 0, perPage)
	for _, record := range extractList(raw.Payload) {
		item, ok := s.normalize(record, instrument)
		if !ok {
			continue
		}
		items = append(items, item)
		if len(items) >= perPage {
			break
		}
	}

	return envelope.Ok(Feed{Source: path, Count: len(items), Items: items})
}

// extractList finds the record list in the upstream payload: `body`, then
// `data`, then a bare top-level array.
func extractList(payload json.RawMessage) []gjson.Result {
	root := gjson.ParseBytes(payload)
	for _, field := range []string{"body", "data"} {
		if list := root.Get(field); list.IsArray() {
			return list.Array()
		}
	}
	if root.IsArray() {
		return root.Array()
	}
	return nil
}

// normalize maps one raw record into the view model. Items without a valid
// image URL, or excluded by the instrument filter, are dropped.
func (s *Service) normalize(record gjson.Result, instrument string) (Item, bool) {
	if !record.IsObject() {
		return Item{}, false
	}

	imageURL := pickImageURL(record, s.client.BaseURL())
	if imageURL == "" {
		return Item{}, false
	}

	instruments := instrumentList(record)
	if instrument != "" && len(instruments) > 0 && !contains(instruments, instrument) {
		return Item{}, false
	}

	obs := record.Get("observation_id").String()
	if obs == "" {
		obs = record.Get("observationId").String()
	}
	program := record.Get("program").String()
	suffix := record.Get("details.suffix").String()
	if suffix == "" {
		suffix = record.Get("suffix").String()
	}

	link := record.Get("location").String()
	if link == "" {
		link = record.Get("url").String()
	}
	if link == "" {
		link = imageURL
	}

	return Item{
		URL:         imageURL,
		Obs:         obs,
		Program:     program,
		Suffix:      suffix,
		Instruments: instruments,
		Caption:     caption(record, instruments),
		Link:        link,
	}, true
}

// pickImageURL scans the ordered candidate fields for an absolute image URL
// or a site-relative image path (rewritten against base). When no top-level
// candidate matches it recurses into nested values.
func pickImageURL(item gjson.Result, base string) string {
	for _, key := range urlCandidates {
		value := item.Get(key)
		if value.Type != gjson.String {
			continue
		}
		u := strings.TrimSpace(value.String())
		if absoluteRe.MatchString(u) && imageExtRe.MatchString(u) {
			return u
		}
		if strings.HasPrefix(u, "/") && imageExtRe.MatchString(u) {
			return strings.TrimRight(base, "/") + u
		}
	}

	var found string
	item.ForEach(func(_, value gjson.Result) bool {
		if value.IsObject() || value.IsArray() {
			if u := pickImageURL(value, base); u != "" {
				found = u
				return false
			}
		}
		return true
	})
	return found
}

// instrumentList extracts and upper-cases the record's instrument names.
func instrumentList(record gjson.Result) []string {
	list := record.Get("details.instruments")
	if !list.IsArray() {
		return nil
	}
	var names []string
	for _, entry := range list.Array() {
		if name := entry.Get("instrument").String(); name != "" {
			names = append(names, strings.ToUpper(name))
		}
	}
	return names
}

// caption synthesizes a deterministic caption: observation id (or record
// id), program, suffix and instrument list joined with a fixed separator.
// Unlike the Item fields, the head reads observation_id only (then id) and
// the suffix segment reads details.suffix only.
func caption(record gjson.Result, instruments []string) string {
	head := record.Get("observation_id").String()
	if head == "" {
		head = record.Get("id").String()
	}
	program := record.Get("program").String()
	if program == "" {
		program = "-"
	}
	parts := []string{head, "P" + program}
	if suffix := record.Get("details.suffix").String(); suffix != "" {
		parts = append(parts, suffix)
	}
	if len(instruments) > 0 {
		parts = append(parts, strings.Join(instruments, "/"))
	}
	return strings.TrimSpace(strings.Join(parts, " · "))
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
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

