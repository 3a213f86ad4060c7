package telemetry

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/cassiopeia-dash/gateway/internal/cache"
	"github.com/cassiopeia-dash/gateway/internal/envelope"
	"github.com/cassiopeia-dash/gateway/internal/logging"
)

type fakeFetcher struct {
	calls   map[string]int
	results map[string]envelope.Result[json.RawMessage]
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:   map[string]int{},
		results: map[string]envelope.Result[json.RawMessage]{},
	}
}

func (f *fakeFetcher) GetJSON(_ context.Context, path string, _ url.Values) envelope.Result[json.RawMessage] {
	f.calls[path]++
	res, ok := f.results[path]
	if !ok {
		return envelope.Failf[json.RawMessage](envelope.CodeNetworkError, 502, "unexpected path %s", path)
	}
	return res
}

func newService(fetcher Fetcher) (*Service, *cache.Store[Snapshot]) {
	provider := cache.NewMemoryProvider()
	snapshots := cache.NewStore[Snapshot]("telemetry-test", provider, logging.Nop(), nil)
	boards := cache.NewStore[Dashboard]("dashboard-test", provider, logging.Nop(), nil)
	return NewService(fetcher, snapshots, boards, logging.Nop()), snapshots
}

const lastBody = `{"id":41,"payload":{"velocity":27580.5,"altitude":423.1,"visibility":"daylight"}}`

const trendPoints = `{"points":[{"t":1,"alt":423.0},{"t":2,"alt":423.1}]}`
const trendBody = `{"id":42,"payload":` + trendPoints + `}`

func TestSnapshotUnwrapsPayload(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.results["/last"] = envelope.Ok(json.RawMessage(lastBody))
	fetcher.results["/trend"] = envelope.Ok(json.RawMessage(trendBody))
	svc, _ := newService(fetcher)

	res := svc.Snapshot(context.Background())
	if !res.OK {
		t.Fatalf("snapshot: %v", res.Err)
	}
	// Both halves get the same wrapper treatment.
	if string(res.Payload.Last) != `{"velocity":27580.5,"altitude":423.1,"visibility":"daylight"}` {
		t.Fatalf("last = %s", res.Payload.Last)
	}
	if string(res.Payload.Trend) != trendPoints {
		t.Fatalf("trend = %s", res.Payload.Trend)
	}
}

func TestSnapshotTrendWithoutWrapper(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.results["/last"] = envelope.Ok(json.RawMessage(lastBody))
	fetcher.results["/trend"] = envelope.Ok(json.RawMessage(`{"points":[]}`))
	svc, _ := newService(fetcher)

	res := svc.Snapshot(context.Background())
	if !res.OK {
		t.Fatalf("snapshot: %v", res.Err)
	}
	if string(res.Payload.Trend) != "{}" {
		t.Fatalf("trend without payload field = %s, want empty object", res.Payload.Trend)
	}
}

func TestSnapshotServesFallbackOnFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.results["/last"] = envelope.Ok(json.RawMessage(lastBody))
	fetcher.results["/trend"] = envelope.Ok(json.RawMessage(trendBody))
	svc, snapshots := newService(fetcher)

	// First call succeeds and writes the fallback slot.
	first := svc.Snapshot(context.Background())
	if !first.OK {
		t.Fatalf("initial snapshot: %v", first.Err)
	}

	// Drop the live slot and break the upstream. The fallback slot
	// outlives the regular one.
	snapshots.Invalidate(context.Background(), snapshotKey)
	fetcher.results["/last"] = envelope.Failf[json.RawMessage](envelope.CodeUpstreamReportedFailure, 200, "SOURCE_STALE")

	second := svc.Snapshot(context.Background())
	if !second.OK {
		t.Fatalf("fallback snapshot should report ok, got %v", second.Err)
	}
	if string(second.Payload.Trend) != trendPoints {
		t.Fatalf("stale trend = %s", second.Payload.Trend)
	}
}

func TestSnapshotWithoutFallbackYieldsZeroValue(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.results["/last"] = envelope.Failf[json.RawMessage](envelope.CodeNetworkError, 502, "refused")
	svc, _ := newService(fetcher)

	res := svc.Snapshot(context.Background())
	if !res.OK {
		t.Fatalf("snapshot should degrade, got %v", res.Err)
	}
	if res.Payload.Last != nil || res.Payload.Trend != nil {
		t.Fatalf("empty fallback should be zero-valued, got %+v", res.Payload)
	}
}

func TestSnapshotCached(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.results["/last"] = envelope.Ok(json.RawMessage(lastBody))
	fetcher.results["/trend"] = envelope.Ok(json.RawMessage(trendBody))
	svc, _ := newService(fetcher)

	svc.Snapshot(context.Background())
	svc.Snapshot(context.Background())
	if fetcher.calls["/last"] != 1 || fetcher.calls["/trend"] != 1 {
		t.Fatalf("upstream calls = %v, want one per path", fetcher.calls)
	}
}

func TestDashboardMetrics(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.results["/last"] = envelope.Ok(json.RawMessage(lastBody))
	svc, _ := newService(fetcher)

	res := svc.Dashboard(context.Background())
	if !res.OK {
		t.Fatalf("dashboard: %v", res.Err)
	}
	m := res.Payload.Metrics
	if m.Speed == nil || *m.Speed != 27580.5 {
		t.Fatalf("speed = %v", m.Speed)
	}
	if m.Altitude == nil || *m.Altitude != 423.1 {
		t.Fatalf("altitude = %v", m.Altitude)
	}
	if res.Payload.Error != "" {
		t.Fatalf("unexpected error note %q", res.Payload.Error)
	}
}

func TestDashboardDegradesOnFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.results["/last"] = envelope.Failf[json.RawMessage](envelope.CodeUpstreamServerError, 502, "bad gateway")
	svc, _ := newService(fetcher)

	res := svc.Dashboard(context.Background())
	if !res.OK {
		t.Fatal("dashboard must degrade, not fail")
	}
	b := res.Payload
	if string(b.ISS) != "{}" {
		t.Fatalf("iss = %s, want empty object", b.ISS)
	}
	if b.Metrics.Speed != nil || b.Metrics.Altitude != nil {
		t.Fatalf("metrics should be empty, got %+v", b.Metrics)
	}
	if b.Error != "bad gateway" {
		t.Fatalf("error note = %q", b.Error)
	}
}

func TestProxiesAreUncached(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.results["/last"] = envelope.Ok(json.RawMessage(lastBody))
	fetcher.results["/trend"] = envelope.Ok(json.RawMessage(trendBody))
	svc, _ := newService(fetcher)

	svc.Last(context.Background())
	svc.Last(context.Background())
	if fetcher.calls["/last"] != 2 {
		t.Fatalf("last proxy calls = %d, want 2", fetcher.calls["/last"])
	}

	query := url.Values{"hours": {"6"}}
	res := svc.Trend(context.Background(), query)
	if !res.OK || string(res.Payload) != trendBody {
		t.Fatalf("trend proxy = %+v", res)
	}
}

func TestProxyFailureSurfaces(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.results["/last"] = envelope.Failf[json.RawMessage](envelope.CodeUpstreamReportedFailure, 200, "NO_DATA")
	svc, _ := newService(fetcher)

	res := svc.Last(context.Background())
	if res.OK {
		t.Fatal("expected failure")
	}
	if res.Err.Code != envelope.CodeUpstreamReportedFailure {
		t.Fatalf("code = %s", res.Err.Code)
	}
}

func TestPayloadOfShapes(t *testing.T) {
	if got := payloadOf(json.RawMessage(`{"payload":{"a":1}}`)); string(got) != `{"a":1}` {
		t.Fatalf("wrapped: %s", got)
	}
	if got := payloadOf(json.RawMessage(`{"a":1}`)); string(got) != "{}" {
		t.Fatalf("unwrapped: %s", got)
	}
}
