// Package presence maintains ephemeral "who is typing" state per group.
// Entries expire after a short TTL and are never persisted; they are
// unreliable-delivery hints, not durable facts.
package presence

import (
	"sync"
	"time"
)

// Typer identifies one user currently typing in a group.
type Typer struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type entry struct {
	Typer
	expiresAt time.Time
}

// Tracker tracks typing entries per group with lazy expiry. A refresh
// replaces the existing entry in place, preserving the order in which
// users started typing.
type Tracker struct {
	mu  sync.Mutex
	ttl time.Duration
	// insertion-ordered entries per group
	groups map[string][]entry
	// now is swappable in tests
	now func() time.Time
}

// New creates a tracker with the given TTL.
func New(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 4 * time.Second
	}
	return &Tracker{ttl: ttl, groups: make(map[string][]entry), now: time.Now}
}

// MarkTyping inserts or refreshes the typing entry for userID in groupID.
func (t *Tracker) MarkTyping(groupID, userID, displayName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	exp := t.now().Add(t.ttl)
	list := t.groups[groupID]
	for i := range list {
		if list[i].UserID == userID {
			list[i].DisplayName = displayName
			list[i].expiresAt = exp
			return
		}
	}
	t.groups[groupID] = append(list, entry{Typer: Typer{UserID: userID, DisplayName: displayName}, expiresAt: exp})
}

// CurrentTypers returns all unexpired entries for groupID in the order
// they became typing. Expired entries are pruned as a side effect.
func (t *Tracker) CurrentTypers(groupID string) []Typer {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	list := t.groups[groupID]
	kept := list[:0]
	var out []Typer
	for _, e := range list {
		if e.expiresAt.After(now) {
			kept = append(kept, e)
			out = append(out, e.Typer)
		}
	}
	if len(kept) == 0 {
		delete(t.groups, groupID)
	} else {
		t.groups[groupID] = kept
	}
	return out
}

// setNow overrides the clock for tests.
func (t *Tracker) setNow(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}
