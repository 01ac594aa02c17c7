package guard

import (
	"sort"
	"sync"
	"time"
)

const (
	strikeTTL      = 1 * time.Hour
	strikeCapacity = 1000
)

type strikeEntry struct {
	count     int
	firstSeen time.Time
	lastSeen  time.Time
}

// StrikeTracker counts consecutive failures per logical action. Keys are
// caller-supplied fingerprints (see IssueKey); the tracker does not know how
// they were derived. Entries expire after one hour and the live set is
// capped at 1000, evicting the oldest-created entries first. Both bounds
// are enforced lazily on every access, TTL before capacity, so a burst of
// fresh keys cannot starve out cleanup of stale ones.
type StrikeTracker struct {
	mu      sync.Mutex
	entries map[string]*strikeEntry
	ttl     time.Duration
	cap     int
	now     func() time.Time
}

func NewStrikeTracker() *StrikeTracker {
	return &StrikeTracker{
		entries: make(map[string]*strikeEntry),
		ttl:     strikeTTL,
		cap:     strikeCapacity,
		now:     time.Now,
	}
}

// RecordError bumps the failure count for key and returns the new count.
// An expired or unknown key restarts at 1.
func (t *StrikeTracker) RecordError(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.evictLocked(now)

	if e, ok := t.entries[key]; ok {
		e.count++
		e.lastSeen = now
		return e.count
	}
	t.entries[key] = &strikeEntry{count: 1, firstSeen: now, lastSeen: now}
	return 1
}

// ClearError forgets key. Unknown keys are a no-op.
func (t *StrikeTracker) ClearError(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(t.now())
	delete(t.entries, key)
}

// ErrorCount returns the live failure count for key, 0 when unknown or
// expired.
func (t *StrikeTracker) ErrorCount(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(t.now())
	if e, ok := t.entries[key]; ok {
		return e.count
	}
	return 0
}

// Len reports the live entry count after eviction.
func (t *StrikeTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(t.now())
	return len(t.entries)
}

func (t *StrikeTracker) evictLocked(now time.Time) {
	for k, e := range t.entries {
		if now.Sub(e.lastSeen) > t.ttl {
			delete(t.entries, k)
		}
	}
	if len(t.entries) <= t.cap {
		return
	}

	type aged struct {
		key       string
		firstSeen time.Time
	}
	byAge := make([]aged, 0, len(t.entries))
	for k, e := range t.entries {
		byAge = append(byAge, aged{key: k, firstSeen: e.firstSeen})
	}
	sort.Slice(byAge, func(i, j int) bool { return byAge[i].firstSeen.Before(byAge[j].firstSeen) })
	for _, a := range byAge {
		if len(t.entries) <= t.cap {
			break
		}
		delete(t.entries, a.key)
	}
}
