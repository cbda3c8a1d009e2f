package notify

import (
	"fmt"
	"sync"
	"time"

	"deliveryboy-agent/internal/channel"
)

// Deduper guarantees each logically-distinct event is surfaced at most once
// within its lifetime window, regardless of delivery duplication from the
// channel. The dedup key is derived from the event content - the server's
// nominal message id is not stable across redelivery.
type Deduper struct {
	mu      sync.Mutex
	entries map[string]dedupEntry
	ttl     time.Duration
	now     func() time.Time
	stats   DedupStats
}

type dedupEntry struct {
	firstSeenAt time.Time
	expiresAt   time.Time
}

// DedupStats tracks pipeline behavior for the status API
type DedupStats struct {
	Accepted   int64 `json:"accepted"`
	Suppressed int64 `json:"suppressed"`
	Expired    int64 `json:"expired"`
	LiveKeys   int   `json:"live_keys"`
}

// NewDeduper creates a deduper with the given entry lifetime
func NewDeduper(ttl time.Duration) *Deduper {
	return NewDeduperWithClock(ttl, time.Now)
}

// NewDeduperWithClock creates a deduper with an injected clock, keeping the
// registry pure with respect to time for tests
func NewDeduperWithClock(ttl time.Duration, now func() time.Time) *Deduper {
	return &Deduper{
		entries: make(map[string]dedupEntry),
		ttl:     ttl,
		now:     now,
	}
}

// Key derives the stable identity of an event: kind plus the order id when
// the payload carries one, otherwise kind plus title plus message
func Key(ev channel.NotificationEvent) string {
	if orderID, ok := ev.OrderID(); ok {
		return fmt.Sprintf("%s|%s", ev.Kind, orderID)
	}
	return fmt.Sprintf("%s|%s|%s", ev.Kind, ev.Title, ev.Message)
}

// Offer returns true exactly once per distinct key within the lifetime
// window; duplicates are suppressed. Expired entries are purged lazily on
// each call - no background timer needed.
func (d *Deduper) Offer(ev channel.NotificationEvent) bool {
	key := Key(ev)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Lazy purge
	for k, e := range d.entries {
		if !now.Before(e.expiresAt) {
			delete(d.entries, k)
			d.stats.Expired++
		}
	}

	if _, live := d.entries[key]; live {
		d.stats.Suppressed++
		return false
	}

	d.entries[key] = dedupEntry{
		firstSeenAt: now,
		expiresAt:   now.Add(d.ttl),
	}
	d.stats.Accepted++
	return true
}

// Stats returns a snapshot of dedup counters
func (d *Deduper) Stats() DedupStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.LiveKeys = len(d.entries)
	return s
}
