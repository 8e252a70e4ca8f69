package fetcher

import (
	"sync"
	"time"
)

// inProcessRegistry deduplicates concurrent processing of one post.
// Overlapping realtime events and overlapping batches can both hand the
// same (site, id) to different workers; only the first claimant scans it
// this round, and a conflicting claim is remembered as a rescan request
// honored when the owner releases.
type inProcessRegistry struct {
	mu      sync.Mutex
	entries map[processKey]*inProcessEntry
}

type processKey struct {
	site string
	id   int
}

type inProcessEntry struct {
	owner             string
	firstClaim        time.Time
	lastRefresh       time.Time
	rescanRequested   bool
	rescanRequestedBy string
}

func newInProcessRegistry() *inProcessRegistry {
	return &inProcessRegistry{entries: make(map[processKey]*inProcessEntry)}
}

// claim takes the (site, id) lease for owner. Re-claiming an entry you
// already own refreshes it and still succeeds. Claiming someone else's
// entry fails and flags the entry for a rescan once they release.
func (r *inProcessRegistry) claim(owner, site string, id int, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := processKey{site, id}
	e, ok := r.entries[key]
	if !ok {
		r.entries[key] = &inProcessEntry{
			owner:       owner,
			firstClaim:  now,
			lastRefresh: now,
		}
		return true
	}
	if e.owner == owner {
		e.lastRefresh = now
		return true
	}
	e.rescanRequested = true
	e.rescanRequestedBy = owner
	return false
}

// release drops owner's lease and reports whether a rescan was requested
// while it was held. Releasing an entry that is missing or owned by
// someone else is a harmless no-op: the release path runs on every exit
// and must never fail.
func (r *inProcessRegistry) release(owner, site string, id int) (rescan bool, released bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := processKey{site, id}
	e, ok := r.entries[key]
	if !ok || e.owner != owner {
		return false, false
	}
	delete(r.entries, key)
	return e.rescanRequested, true
}
