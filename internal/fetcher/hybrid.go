package fetcher

import (
	"sort"
	"sync"
)

// maxIDTracker remembers the largest post id ever dispatched per site.
// The realtime feed drops events; fetching the gap between the last known
// max and a newly seen max recovers the posts we never heard about.
type maxIDTracker struct {
	mu  sync.Mutex
	ids map[string]int
}

func newMaxIDTracker() *maxIDTracker {
	return &maxIDTracker{ids: make(map[string]int)}
}

func (t *maxIDTracker) restore(ids map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for site, id := range ids {
		if id > t.ids[site] {
			t.ids[site] = id
		}
	}
}

func (t *maxIDTracker) export() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.ids))
	for site, id := range t.ids {
		out[site] = id
	}
	return out
}

// expand computes the id set one request should carry: the new ids plus as
// many of the ids strictly between the previous max and the new max as fit
// under the request cap, newest first. The previous max only ever moves
// up; the second return value says it moved and must be persisted.
func (t *maxIDTracker) expand(site string, newIDs []int) ([]int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	newMax := 0
	for _, id := range newIDs {
		if id > newMax {
			newMax = id
		}
	}
	prev := t.ids[site]

	ids := newIDs
	if newMax > prev {
		set := make(map[int]bool, batchIDCap)
		for _, id := range newIDs {
			set[id] = true
		}
		// Last (cap - len(new)) ids of the open interval (prev, newMax).
		room := batchIDCap - len(newIDs)
		lo := prev + 1
		if newMax-lo > room {
			lo = newMax - room
		}
		for id := lo; id < newMax; id++ {
			set[id] = true
		}
		ids = make([]int, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Ints(ids)
	}

	if newMax > prev {
		t.ids[site] = newMax
		return ids, true
	}
	return ids, false
}

// watermarkState is the firehose site's replacement for id expansion: we
// ask for everything modified since slightly before the newest activity we
// have seen, instead of naming ids.
type watermarkState struct {
	mu           sync.Mutex
	lastActivity int64 // unix seconds, 0 = never fetched
}

// window returns the page size and minimum-activity bound for the next
// firehose request. The first request has no watermark yet and uses a
// smaller page.
func (w *watermarkState) window() (pagesize int, minActivity int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastActivity == 0 {
		return firstFirehosePageSize, 0
	}
	return firehosePageSize, w.lastActivity - int64(watermarkMargin.Seconds())
}

// advance moves the watermark to the newest activity seen in a response.
func (w *watermarkState) advance(lastActivity int64) {
	if lastActivity == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if lastActivity > w.lastActivity {
		w.lastActivity = lastActivity
	}
}
