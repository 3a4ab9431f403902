// Package cache implements the aggregator's TTL cache of per-host device
// snapshots (§4.5): each entry survives 30 s past its last Heartbeat or
// Data update, mirroring the per-host daemon's idler goroutine
// (internal/daemon/timeout.go in the teacher package) but keyed per host
// rather than kept as one global timer.
package cache

import (
	"sync"
	"time"

	"github.com/ubuntu/device-scanner/internal/config"
	"github.com/ubuntu/device-scanner/internal/device"
)

// Cache maps a host name to its most recent Device snapshot plus the
// expiry deadline that upsert/reset extend.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
}

type entry struct {
	device  device.Device
	expires time.Time
}

// New returns an empty Cache with the default TTL (config.CacheTTL).
func New() *Cache {
	return NewWithTTL(config.CacheTTL)
}

// NewWithTTL returns an empty Cache with an explicit TTL, for tests that
// need to observe expiry without waiting 30 real seconds.
func NewWithTTL(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, entries: make(map[string]entry)}
}

// Upsert inserts or replaces host's snapshot and resets its expiry.
func (c *Cache) Upsert(host string, d device.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[host] = entry{device: d, expires: time.Now().Add(c.ttl)}
}

// Reset extends host's expiry without changing its stored snapshot
// (Heartbeat). A no-op if host is not present.
func (c *Cache) Reset(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[host]
	if !ok {
		return
	}
	e.expires = time.Now().Add(c.ttl)
	c.entries[host] = e
}

// Entries returns a snapshot copy of every live host→Device pair. Callers
// must call Flush first if they need entries() to reflect the current
// instant precisely (§4.5's CacheFlush-before-effect ordering).
func (c *Cache) Entries() map[string]device.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]device.Device, len(c.entries))
	for host, e := range c.entries {
		out[host] = e.device
	}
	return out
}

// Get returns host's current snapshot, if present and not yet flushed
// out.
func (c *Cache) Get(host string) (device.Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[host]
	if !ok {
		return device.Device{}, false
	}
	return e.device, true
}

// Flush removes every entry whose expiry has passed. The ingress handler
// calls this once per request, before applying the request's own effect,
// so that a request for host A never observes host B's stale-but-not-yet-
// flushed entry (§4.5).
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for host, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, host)
		}
	}
}
