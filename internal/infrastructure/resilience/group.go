package resilience

import (
	"sync"
	"time"
)

const defaultMaxKeys = 1024

// Group keeps one breaker per key with a shared policy. Keys come from
// user code (fetch hosts), so the group is bounded: past MaxKeys, the
// least recently used closed breaker is dropped to make room.
type Group struct {
	policy  Policy
	maxKeys int

	mu      sync.Mutex
	entries map[string]*groupEntry
}

type groupEntry struct {
	breaker  *Breaker
	lastUsed time.Time
}

// NewGroup creates a group. maxKeys <= 0 means 1024.
func NewGroup(policy Policy, maxKeys int) *Group {
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	return &Group{
		policy:  policy.withDefaults(),
		maxKeys: maxKeys,
		entries: make(map[string]*groupEntry),
	}
}

// Get returns the breaker for key, creating it on first use.
func (g *Group) Get(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.policy.Now()
	if e, ok := g.entries[key]; ok {
		e.lastUsed = now
		return e.breaker
	}
	if len(g.entries) >= g.maxKeys {
		g.evictIdle()
	}
	b := New(key, g.policy)
	g.entries[key] = &groupEntry{breaker: b, lastUsed: now}
	return b
}

// evictIdle drops the least recently used closed breaker. Open and
// half-open breakers are kept so a failing host cannot escape its cooldown
// by crowding others out; when none is closed the group grows past its
// bound instead.
func (g *Group) evictIdle() {
	var (
		victim string
		oldest time.Time
	)
	for key, e := range g.entries {
		if e.breaker.State() != StateClosed {
			continue
		}
		if victim == "" || e.lastUsed.Before(oldest) {
			victim, oldest = key, e.lastUsed
		}
	}
	if victim != "" {
		delete(g.entries, victim)
	}
}

// Len returns the number of tracked keys.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// States snapshots every breaker's state.
func (g *Group) States() map[string]State {
	g.mu.Lock()
	breakers := make([]*Breaker, 0, len(g.entries))
	for _, e := range g.entries {
		breakers = append(breakers, e.breaker)
	}
	g.mu.Unlock()

	out := make(map[string]State, len(breakers))
	for _, b := range breakers {
		out[b.Key()] = b.State()
	}
	return out
}
