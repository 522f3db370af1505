package observe

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Entry is one recorded event.
type Entry struct {
	Event   string         `json:"event"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Timeline keeps recent events per ticket in memory. Tickets expire after
// the configured TTL.
type Timeline struct {
	mu    sync.Mutex
	cache *cache.Cache
	max   int
	now   func() time.Time
}

// NewTimeline creates a Timeline keeping at most max events per ticket.
func NewTimeline(ttl time.Duration, max int) *Timeline {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if max <= 0 {
		max = 200
	}
	return &Timeline{
		cache: cache.New(ttl, 2*ttl),
		max:   max,
		now:   time.Now,
	}
}

// Log implements Observer.
func (t *Timeline) Log(ticketID, event string, payload map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var entries []Entry
	if v, ok := t.cache.Get(ticketID); ok {
		entries = v.([]Entry)
	}
	entries = append(entries, Entry{Event: event, At: t.now().UTC(), Payload: payload})
	if len(entries) > t.max {
		entries = entries[len(entries)-t.max:]
	}
	t.cache.SetDefault(ticketID, entries)
	return nil
}

// Events returns a copy of the ticket's events, oldest first.
func (t *Timeline) Events(ticketID string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.cache.Get(ticketID)
	if !ok {
		return nil
	}
	entries := v.([]Entry)
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
