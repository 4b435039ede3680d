// Package cache holds short-lived upstream responses. A Cache instance is
// owned by whoever constructs it and passed to the services that use it;
// there is no package-level cache state.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/blake3"

	"github.com/Klingon-tech/klingpay/internal/log"
)

// Cache stores opaque values with a per-entry lifetime.
type Cache interface {
	// Get returns the value for key. ok is false on a miss or after expiry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value for ttl. A non-positive ttl uses the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

var requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "klingpay",
	Subsystem: "cache",
	Name:      "requests_total",
	Help:      "Cache lookups by namespace and result.",
}, []string{"namespace", "result"})

// Collectors returns the package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{requestsTotal}
}

// Key derives a compact cache key: the namespace followed by a BLAKE3
// digest of the parts. Parts are length-prefixed so ("ab","c") and
// ("a","bc") differ.
func Key(namespace string, parts ...string) string {
	h := blake3.New()
	var lenBuf [4]byte
	for _, p := range parts {
		n := len(p)
		lenBuf[0], lenBuf[1], lenBuf[2], lenBuf[3] = byte(n>>24), byte(n>>16), byte(n>>8), byte(n)
		h.Write(lenBuf[:])
		h.Write([]byte(p))
	}
	sum := h.Sum(nil)
	return namespace + ":" + hex.EncodeToString(sum[:16])
}

// GetOrLoad returns the cached JSON value for key, or calls load and caches
// its result for ttl. Cache failures are logged and never fail the call.
func GetOrLoad[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	ns := namespaceOf(key)
	if c != nil && ttl > 0 {
		raw, ok, err := c.Get(ctx, key)
		switch {
		case err != nil:
			log.Cache.Warn().Err(err).Str("namespace", ns).Msg("Cache get failed")
		case ok:
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				requestsTotal.WithLabelValues(ns, "hit").Inc()
				return v, nil
			}
			log.Cache.Debug().Str("namespace", ns).Msg("Discarding undecodable cache entry")
		}
		requestsTotal.WithLabelValues(ns, "miss").Inc()
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	if c != nil && ttl > 0 {
		raw, err := json.Marshal(v)
		if err == nil {
			err = c.Set(ctx, key, raw, ttl)
		}
		if err != nil {
			log.Cache.Warn().Err(err).Str("namespace", ns).Msg("Cache set failed")
		}
	}
	return v, nil
}

func namespaceOf(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return "other"
}
