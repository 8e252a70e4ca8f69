package queue

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store holds the per-site pending post ids waiting for a bulk fetch.
// Both the site list and the ids inside one site keep first-enqueue order;
// dispatch priority and the fallback tier depend on that order being stable.
type Store struct {
	mu    sync.Mutex
	sites map[string]*siteQueue
	order []string
}

type siteQueue struct {
	items map[string]time.Time
	order []string
}

// Snapshot is the persisted shape of the queue: site -> id -> unix enqueue
// time. One fixed shape end to end, so restores never need type coercion.
type Snapshot map[string]map[string]int64

// SiteDepth is one row of a depth snapshot, in site FIFO order.
type SiteDepth struct {
	Site  string
	Depth int
}

func NewStore() *Store {
	return &Store{sites: make(map[string]*siteQueue)}
}

// Add inserts or refreshes (id -> at) in the site's queue. A repeated id
// keeps its queue position; only its timestamp is updated.
func (s *Store) Add(site, id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(site, id, at)
}

func (s *Store) add(site, id string, at time.Time) {
	sq, ok := s.sites[site]
	if !ok {
		sq = &siteQueue{items: make(map[string]time.Time)}
		s.sites[site] = sq
		s.order = append(s.order, site)
	}
	if _, exists := sq.items[id]; !exists {
		sq.order = append(sq.order, id)
	}
	sq.items[id] = at
}

// PopSite atomically removes the site's entire queue and returns its
// contents. Returns nil if the site has nothing pending.
func (s *Store) PopSite(site string) map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, ok := s.sites[site]
	if !ok || len(sq.items) == 0 {
		return nil
	}
	delete(s.sites, site)
	for i, name := range s.order {
		if name == site {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return sq.items
}

// Merge puts a drained batch back, recreating the site entry if another
// enqueue hasn't already done so. Ids already present keep their position.
// Used when a fetch fails in transport and the batch must be retried later.
func (s *Store) Merge(site string, items map[string]time.Time) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return items[ids[i]].Before(items[ids[j]]) })
	for _, id := range ids {
		s.add(site, id, items[id])
	}
}

// Depths returns a point-in-time copy of per-site queue lengths, in site
// FIFO order. The dispatcher works from this copy so enqueues from other
// goroutines never invalidate an in-progress selection.
func (s *Store) Depths() []SiteDepth {
	s.mu.Lock()
	defer s.mu.Unlock()

	depths := make([]SiteDepth, 0, len(s.order))
	for _, site := range s.order {
		depths = append(depths, SiteDepth{Site: site, Depth: len(s.sites[site].items)})
	}
	return depths
}

// Summary renders the per-site pending counts for humans.
func (s *Store) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == 0 {
		return "The post fetch queue is empty."
	}
	var b strings.Builder
	for i, site := range s.order {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %d", site, len(s.sites[site].items))
	}
	return b.String()
}

// Export copies the queue into its persisted shape.
func (s *Store) Export() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := make(Snapshot, len(s.sites))
	for site, sq := range s.sites {
		m := make(map[string]int64, len(sq.items))
		for id, at := range sq.items {
			m[id] = at.Unix()
		}
		snap[site] = m
	}
	return snap
}

// Restore loads a persisted snapshot into an empty store. Order inside a
// site is rebuilt from the enqueue timestamps.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sites := make([]string, 0, len(snap))
	for site := range snap {
		sites = append(sites, site)
	}
	sort.Strings(sites)
	for _, site := range sites {
		ids := make([]string, 0, len(snap[site]))
		for id := range snap[site] {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			if snap[site][ids[i]] == snap[site][ids[j]] {
				return ids[i] < ids[j]
			}
			return snap[site][ids[i]] < snap[site][ids[j]]
		})
		for _, id := range ids {
			s.add(site, id, time.Unix(snap[site][id], 0).UTC())
		}
	}
}
