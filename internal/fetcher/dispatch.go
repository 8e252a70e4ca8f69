package fetcher

import (
	"strconv"
	"time"
)

// Tier records which dispatch rule selected a site. Exposed so operators
// (and tests) can tell a custom-minimum dispatch from the fallback.
type Tier int

const (
	TierNone Tier = iota
	TierCustomMinimum
	TierTimeSensitive
	TierDefault
)

func (t Tier) String() string {
	switch t {
	case TierCustomMinimum:
		return "custom-minimum"
	case TierTimeSensitive:
		return "time-sensitive"
	case TierDefault:
		return "default"
	}
	return "none"
}

type selection struct {
	Site  string
	Tier  Tier
	Items map[string]time.Time
}

// Enqueue registers one post id for site and opportunistically dispatches
// whichever site is ready. With immediate set, the site's whole queue is
// drained and fetched right away, threshold or not. Called concurrently by
// the realtime subscriber; blocks for the debounce window plus any fetch it
// ends up performing.
func (f *Fetcher) Enqueue(site string, questionID int, immediate bool) {
	if f.ignored[site][questionID] {
		return
	}

	f.queue.Add(site, strconv.Itoa(questionID), f.now())
	f.scheduleQueueSnapshot()

	if immediate {
		if items := f.queue.PopSite(site); items != nil {
			f.scheduleQueueSnapshot()
			f.fetchSite(site, items)
		}
	}

	if sel := f.selectReadySite(); sel != nil {
		f.scheduleQueueSnapshot()
		logDebug("dispatching %s (%d posts, %s tier)", sel.Site, len(sel.Items), sel.Tier)
		f.fetchSite(sel.Site, sel.Items)
	}
}

// selectReadySite picks at most one site whose queue justifies a fetch now,
// atomically draining it. Single-flight: a dedicated lock plus a short
// debounce coalesce bursts of events for the same real-world change into
// one dispatch.
//
// Sites are evaluated in first-enqueue order through three tiers:
//  1. sites with a custom minimum, at or past that minimum;
//  2. time-sensitive sites during the UTC hour window, depth >= 1;
//  3. everything else at the default threshold - except sites that have a
//     custom minimum, which are exempt from the fallback entirely rather
//     than merely skipped while below their minimum.
func (f *Fetcher) selectReadySite() *selection {
	f.checkMu.Lock()
	defer f.checkMu.Unlock()

	f.sleep(f.debounce)

	depths := f.queue.Depths()
	hour := f.now().UTC().Hour()
	inWindow := hour >= f.windowStart && hour < f.windowEnd

	var site string
	var tier Tier
	for _, d := range depths {
		if min, ok := f.siteMinimums[d.Site]; ok && d.Depth >= min {
			site, tier = d.Site, TierCustomMinimum
			break
		}
		if inWindow && f.timeSensitive[d.Site] && d.Depth >= 1 {
			site, tier = d.Site, TierTimeSensitive
			break
		}
	}
	if site == "" {
		for _, d := range depths {
			if _, custom := f.siteMinimums[d.Site]; custom {
				continue
			}
			if d.Depth >= defaultThreshold {
				site, tier = d.Site, TierDefault
				break
			}
		}
	}
	if site == "" {
		return nil
	}

	items := f.queue.PopSite(site)
	if items == nil {
		// Another dispatch (immediate drain) got there first.
		return nil
	}
	return &selection{Site: site, Tier: tier, Items: items}
}
