// Package astro aggregates astronomy event forecasts for a coordinate and
// horizon. Results are memoized per normalized query and truncated to the
// caller's display limit after the fetch.
package astro

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cassiopeia-dash/gateway/internal/cache"
	"github.com/cassiopeia-dash/gateway/internal/envelope"
	"github.com/cassiopeia-dash/gateway/internal/logging"
)

const (
	// TTL for memoized event fetches.
	TTL = 7200 * time.Second

	minDays = 1
	maxDays = 30

	// MinLimit/MaxLimit bound the client-side display limit.
	MinLimit     = 1
	MaxLimit     = 200
	DefaultLimit = 50
)

// Fetcher issues one classified upstream call.
type Fetcher interface {
	GetJSON(ctx context.Context, path string, query url.Values) envelope.Result[json.RawMessage]
}

// Service is the astronomy events aggregator.
type Service struct {
	client Fetcher
	cache  *cache.Store[[]json.RawMessage]
	log    *logging.Logger
	now    func() time.Time
}

// NewService wires the aggregator.
func NewService(client Fetcher, store *cache.Store[[]json.RawMessage], log *logging.Logger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{client: client, cache: store, log: log, now: time.Now}
}

// Events returns upcoming events for the coordinate over the next `days`
// days. The horizon is clamped to [1,30]; limit is clamped to [1,200] and
// applied after the fetch so the cache holds the full upstream list.
func (s *Service) Events(ctx context.Context, lat, lon float64, days, limit int) envelope.Result[[]json.RawMessage] {
	days = clamp(days, minDays, maxDays)
	limit = clamp(limit, MinLimit, MaxLimit)

	now := s.now().UTC()
	from := now.Format("2006-01-02")
	to := now.AddDate(0, 0, days).Format("2006-01-02")

	key := cache.Key(lat, lon, from, to)
	result := s.cache.GetOrCompute(ctx, key, TTL, func() envelope.Result[[]json.RawMessage] {
		return s.fetch(ctx, lat, lon, from, to)
	})
	if !result.OK {
		return result
	}

	events := result.Payload
	if len(events) > limit {
		events = events[:limit]
	}
	return envelope.Ok(events)
}

func (s *Service) fetch(ctx context.Context, lat, lon float64, from, to string) envelope.Result[[]json.RawMessage] {
	query := url.Values{}
	query.Set("latitude", formatCoord(lat))
	query.Set("longitude", formatCoord(lon))
	query.Set("from", from)
	query.Set("to", to)

	raw := s.client.GetJSON(ctx, "/bodies/events", query)
	if !raw.OK {
		return envelope.Recode[json.RawMessage, []json.RawMessage](raw)
	}
	return envelope.Ok(extractEvents(raw.Payload))
}

// extractEvents locates the event list inside the upstream payload. The
// upstream answers either a bare array, {data:[...]}, or {data:{rows:[...]}}.
func extractEvents(payload json.RawMessage) []json.RawMessage {
	root := gjson.ParseBytes(payload)

	list := root
	switch {
	case root.IsArray():
	case root.Get("data").IsArray():
		list = root.Get("data")
	case root.Get("data.rows").IsArray():
		list = root.Get("data.rows")
	default:
		return nil
	}

	events := make([]json.RawMessage, 0, len(list.Array()))
	for _, item := range list.Array() {
		events = append(events, json.RawMessage(item.Raw))
	}
	return events
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%.4f", v)
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
