// SPDX-License-Identifier: MIT

// Package ratelimit provides keyed token-bucket limiting for expensive
// per-device operations such as media uploads.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var limitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cloudcore",
		Name:      "ratelimit_exceeded_total",
		Help:      "Total keyed rate limit rejections",
	},
	[]string{"limit_type"},
)

const cleanupInterval = 5 * time.Minute

// Keyed is a set of token buckets indexed by caller key (device id, user
// id). Idle buckets are evicted lazily.
type Keyed struct {
	limitType string
	rate      rate.Limit
	burst     int

	mu          sync.Mutex
	buckets     map[string]*entry
	lastCleanup time.Time
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewKeyed creates a keyed limiter. limitType labels the rejection metric.
func NewKeyed(limitType string, r float64, burst int) *Keyed {
	if burst < 1 {
		burst = 1
	}
	return &Keyed{
		limitType:   limitType,
		rate:        rate.Limit(r),
		burst:       burst,
		buckets:     make(map[string]*entry),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether the caller identified by key may proceed now.
func (k *Keyed) Allow(key string) bool {
	now := time.Now()

	k.mu.Lock()
	e := k.buckets[key]
	if e == nil {
		e = &entry{lim: rate.NewLimiter(k.rate, k.burst)}
		k.buckets[key] = e
	}
	e.lastSeen = now

	if now.Sub(k.lastCleanup) > cleanupInterval {
		for key, e := range k.buckets {
			if now.Sub(e.lastSeen) > cleanupInterval {
				delete(k.buckets, key)
			}
		}
		k.lastCleanup = now
	}
	lim := e.lim
	k.mu.Unlock()

	ok := lim.Allow()
	if !ok {
		limitExceeded.WithLabelValues(k.limitType).Inc()
	}
	return ok
}

// Len reports the current bucket count, for tests.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
