package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cassiopeia-dash/gateway/internal/envelope"
	"github.com/cassiopeia-dash/gateway/internal/logging"
	"github.com/cassiopeia-dash/gateway/internal/metrics"
)

// FallbackTTL is how long fallback slots outlive the live entries they
// shadow. Stale-but-available beats unavailable.
const FallbackTTL = 24 * time.Hour

// Key derives a deterministic cache key from ordered parts. Semantically
// identical requests collide; distinct requests do not (absent a hash
// collision). Callers must pass parts in a fixed order.
func Key(parts ...any) string {
	raw, err := json.Marshal(parts)
	if err != nil {
		// Only non-serializable inputs end up here; the key builder is
		// always fed scalars.
		raw = []byte(err.Error())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}

// Store memoizes results of one feature. Values are JSON-encoded into the
// provider under a feature namespace; only successful envelopes are stored,
// so a transient upstream outage never poisons the cache for a full TTL.
type Store[T any] struct {
	feature  string
	provider Provider
	log      *logging.Logger
	mts      *metrics.Metrics
	group    singleflight.Group
}

// NewStore creates a feature-scoped cache over provider.
func NewStore[T any](feature string, provider Provider, log *logging.Logger, mts *metrics.Metrics) *Store[T] {
	if log == nil {
		log = logging.Nop()
	}
	return &Store[T]{feature: feature, provider: provider, log: log, mts: mts}
}

func (s *Store[T]) liveKey(key string) string     { return s.feature + ":" + key }
func (s *Store[T]) fallbackKey(key string) string { return s.feature + ":fallback:" + key }

// GetOrCompute returns the cached envelope for key, or invokes compute and
// stores its payload when it succeeds. Concurrent identical misses are
// coalesced into one compute call.
func (s *Store[T]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func() envelope.Result[T]) envelope.Result[T] {
	if value, ok := s.read(ctx, s.liveKey(key)); ok {
		s.recordLookup(true)
		return envelope.Ok(value)
	}
	s.recordLookup(false)

	shared, _, _ := s.group.Do(key, func() (any, error) {
		result := compute()
		if result.OK {
			s.write(ctx, s.liveKey(key), result.Payload, ttl)
		}
		return result, nil
	})
	return shared.(envelope.Result[T])
}

// SetFallback writes the long-TTL fallback slot for key. Called on
// successful live fetches by features that define a fallback read path.
func (s *Store[T]) SetFallback(ctx context.Context, key string, value T) {
	s.write(ctx, s.fallbackKey(key), value, FallbackTTL)
}

// Fallback reads the fallback slot, independent of the live cache. The
// second return reports whether a value was available.
func (s *Store[T]) Fallback(ctx context.Context, key string) (T, bool) {
	return s.read(ctx, s.fallbackKey(key))
}

// Invalidate drops the live entry for key. The fallback slot survives.
func (s *Store[T]) Invalidate(ctx context.Context, key string) {
	if err := s.provider.Del(ctx, s.liveKey(key)); err != nil {
		s.log.Warn(ctx, "cache invalidate failed", map[string]any{"feature": s.feature, "key": key})
	}
}

func (s *Store[T]) read(ctx context.Context, fullKey string) (T, bool) {
	var zero T
	raw, ok, err := s.provider.Get(ctx, fullKey)
	if err != nil {
		s.log.Warn(ctx, "cache read failed", map[string]any{"feature": s.feature, "key": fullKey})
		return zero, false
	}
	if !ok {
		return zero, false
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		// Self-heal a corrupt entry rather than serving it.
		_ = s.provider.Del(ctx, fullKey)
		return zero, false
	}
	return value, true
}

func (s *Store[T]) write(ctx context.Context, fullKey string, value T, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Warn(ctx, "cache encode failed", map[string]any{"feature": s.feature, "key": fullKey})
		return
	}
	if err := s.provider.Set(ctx, fullKey, raw, ttl); err != nil {
		s.log.Warn(ctx, "cache write failed", map[string]any{"feature": s.feature, "key": fullKey})
	}
}

func (s *Store[T]) recordLookup(hit bool) {
	if s.mts != nil {
		s.mts.RecordCacheLookup(s.feature, hit)
	}
}
