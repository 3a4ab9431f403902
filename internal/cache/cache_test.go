package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/device-scanner/internal/cache"
	"github.com/ubuntu/device-scanner/internal/device"
)

func TestUpsertThenEntries(t *testing.T) {
	t.Parallel()

	c := cache.NewWithTTL(time.Hour)
	c.Upsert("h1", device.Device{Type: device.TypeRoot})

	entries := c.Entries()
	require.Contains(t, entries, "h1")
	assert.Equal(t, device.TypeRoot, entries["h1"].Type)
}

func TestResetIsNoopForAbsentHost(t *testing.T) {
	t.Parallel()

	c := cache.NewWithTTL(time.Hour)
	c.Reset("missing")
	assert.Empty(t, c.Entries())
}

func TestFlushRemovesExpiredEntries(t *testing.T) {
	t.Parallel()

	c := cache.NewWithTTL(10 * time.Millisecond)
	c.Upsert("h1", device.Device{Type: device.TypeRoot})

	time.Sleep(30 * time.Millisecond)
	c.Flush()

	assert.Empty(t, c.Entries())
}

func TestResetExtendsExpiry(t *testing.T) {
	// S4: Heartbeat at T+25s resets the timer so a 30s-TTL entry doesn't
	// expire at T+30s.
	t.Parallel()

	c := cache.NewWithTTL(40 * time.Millisecond)
	c.Upsert("h1", device.Device{Type: device.TypeRoot})

	time.Sleep(25 * time.Millisecond)
	c.Reset("h1")

	time.Sleep(25 * time.Millisecond)
	c.Flush()
	_, ok := c.Get("h1")
	assert.True(t, ok, "reset before expiry should have extended the TTL")

	time.Sleep(50 * time.Millisecond)
	c.Flush()
	_, ok = c.Get("h1")
	assert.False(t, ok, "entry should expire once no further heartbeat arrives")
}
