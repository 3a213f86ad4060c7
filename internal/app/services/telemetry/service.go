// Package telemetry aggregates the orbital-telemetry service: the latest
// station snapshot, its trend, and the dashboard metrics derived from them.
// This is the one feature with a defined fallback: when a live fetch fails,
// the last-known-good data is served and the underlying error is logged
// instead of surfaced.
package telemetry

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cassiopeia-dash/gateway/internal/cache"
	"github.com/cassiopeia-dash/gateway/internal/envelope"
	"github.com/cassiopeia-dash/gateway/internal/logging"
)

const (
	// SnapshotTTL caches the page snapshot.
	SnapshotTTL = 30 * time.Second
	// DashboardTTL caches the dashboard aggregation.
	DashboardTTL = 60 * time.Second

	snapshotKey  = "page"
	dashboardKey = "main"
)

// Snapshot is the page view model: latest record plus trend.
type Snapshot struct {
	Last  json.RawMessage `json:"last"`
	Trend json.RawMessage `json:"trend"`
}

// Metrics are the dashboard headline numbers.
type Metrics struct {
	Speed    *float64 `json:"iss_speed"`
	Altitude *float64 `json:"iss_alt"`
	NEOTotal int      `json:"neo_total"`
}

// Dashboard is the dashboard view model.
type Dashboard struct {
	ISS     json.RawMessage `json:"iss"`
	Metrics Metrics         `json:"metrics"`
	Error   string          `json:"error,omitempty"`
}

// Fetcher issues one classified upstream call.
type Fetcher interface {
	GetJSON(ctx context.Context, path string, query url.Values) envelope.Result[json.RawMessage]
}

// Service aggregates telemetry reads.
type Service struct {
	client    Fetcher
	snapshots *cache.Store[Snapshot]
	boards    *cache.Store[Dashboard]
	log       *logging.Logger
}

// NewService wires the aggregator.
func NewService(client Fetcher, snapshots *cache.Store[Snapshot], boards *cache.Store[Dashboard], log *logging.Logger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{client: client, snapshots: snapshots, boards: boards, log: log}
}

// Snapshot returns the latest record and trend. On upstream failure it
// substitutes the long-TTL fallback slot rather than reporting an error;
// the failure is logged.
func (s *Service) Snapshot(ctx context.Context) envelope.Result[Snapshot] {
	return s.snapshots.GetOrCompute(ctx, snapshotKey, SnapshotTTL, func() envelope.Result[Snapshot] {
		last := s.client.GetJSON(ctx, "/last", nil)
		trend := s.client.GetJSON(ctx, "/trend", nil)

		if !last.OK || !trend.OK {
			s.log.Error(ctx, "telemetry fetch failed, serving fallback", firstErr(last, trend), map[string]any{
				"last_ok":  last.OK,
				"trend_ok": trend.OK,
			})
			stale, _ := s.snapshots.Fallback(ctx, snapshotKey)
			return envelope.Ok(stale)
		}

		snap := Snapshot{Last: payloadOf(last.Payload), Trend: payloadOf(trend.Payload)}
		s.snapshots.SetFallback(ctx, snapshotKey, snap)
		return envelope.Ok(snap)
	})
}

// Dashboard returns the aggregated dashboard data. Upstream failure yields
// an empty-but-well-formed board with the error noted, never a failed
// envelope.
func (s *Service) Dashboard(ctx context.Context) envelope.Result[Dashboard] {
	return s.boards.GetOrCompute(ctx, dashboardKey, DashboardTTL, func() envelope.Result[Dashboard] {
		last := s.client.GetJSON(ctx, "/last", nil)
		if !last.OK {
			s.log.Error(ctx, "dashboard telemetry fetch failed", last.Err, nil)
			return envelope.Ok(Dashboard{
				ISS:     json.RawMessage("{}"),
				Metrics: Metrics{},
				Error:   last.Err.Message,
			})
		}

		iss := payloadOf(last.Payload)
		return envelope.Ok(Dashboard{
			ISS: iss,
			Metrics: Metrics{
				Speed:    floatField(iss, "velocity"),
				Altitude: floatField(iss, "altitude"),
			},
		})
	})
}

// Last proxies the latest-record read without caching.
func (s *Service) Last(ctx context.Context) envelope.Result[json.RawMessage] {
	return s.client.GetJSON(ctx, "/last", nil)
}

// Trend proxies the trend read without caching; trends need fresh data.
func (s *Service) Trend(ctx context.Context, query url.Values) envelope.Result[json.RawMessage] {
	return s.client.GetJSON(ctx, "/trend", query)
}

// payloadOf unwraps the upstream's {.., payload: {...}} record shape. A
// record without a payload field maps to an empty object.
func payloadOf(body json.RawMessage) json.RawMessage {
	if inner := gjson.GetBytes(body, "payload"); inner.Exists() {
		return json.RawMessage(inner.Raw)
	}
	return json.RawMessage("{}")
}

func floatField(doc json.RawMessage, field string) *float64 {
	value := gjson.GetBytes(doc, field)
	if !value.Exists() || value.Type != gjson.Number {
		return nil
	}
	f := value.Float()
	return &f
}

func firstErr(results ...envelope.Result[json.RawMessage]) error {
	for _, r := range results {
		if !r.OK {
			return r.Err
		}
	}
	return nil
}
