package sandbox

import (
	"sync"
)

// HandleID names a host resource that sandboxed code may refer to.
type HandleID uint32

type handleKind uint8

const (
	handleTimer handleKind = iota + 1 // pending setTimeout callback
	handleBody                        // unread fetch response body
)

func (k handleKind) String() string {
	switch k {
	case handleTimer:
		return "timer"
	case handleBody:
		return "body"
	default:
		return "unknown"
	}
}

type handle struct {
	kind    handleKind
	release func()
}

// handleTable tracks the bridge handles of one invocation. Once revoked it
// refuses new handles and every lookup fails.
type handleTable struct {
	owner string

	mu      sync.Mutex
	next    HandleID
	entries map[HandleID]handle
	revoked bool
	stats   HandleStats
}

func newHandleTable(owner string) *handleTable {
	return &handleTable{owner: owner, entries: make(map[HandleID]handle)}
}

// add registers a resource; release frees it if the handle is revoked
// before being taken.
func (t *handleTable) add(kind handleKind, release func()) (HandleID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.revoked {
		return 0, ErrHandleRevoked
	}
	t.next++
	t.entries[t.next] = handle{kind: kind, release: release}
	t.stats.Created++
	return t.next, nil
}

// take removes and returns a live handle of the given kind. The caller owns
// the resource afterwards.
func (t *handleTable) take(id HandleID, kind handleKind) (handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.entries[id]
	if !ok || h.kind != kind {
		return handle{}, false
	}
	delete(t.entries, id)
	t.stats.Consumed++
	return h, true
}

// revokeAll releases every live handle and closes the table.
func (t *handleTable) revokeAll() {
	t.mu.Lock()
	if t.revoked {
		t.mu.Unlock()
		return
	}
	t.revoked = true
	live := t.entries
	t.entries = make(map[HandleID]handle)
	t.stats.Revoked = len(live)
	t.mu.Unlock()

	for _, h := range live {
		if h.release != nil {
			h.release()
		}
	}
}

func (t *handleTable) live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *handleTable) snapshot() HandleStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
