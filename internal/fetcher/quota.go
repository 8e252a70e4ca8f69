package fetcher

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// A jump this large past the high-water mark from a known prior value
	// means the daily quota rolled over, not that the API refunded calls.
	quotaRolloverJump  = 5000
	quotaRolloverFloor = 39980
)

// quotaState is the shared API budget: remaining quota as last reported,
// the earliest time the next call may be issued, and per-site call counts
// for the rollover usage report. All access goes through its own lock;
// nothing here blocks on the network.
type quotaState struct {
	mu           sync.Mutex
	remaining    int // -1 until the first response reports it
	backoffUntil time.Time
	callsPerSite map[string]int
}

func newQuotaState() *quotaState {
	return &quotaState{
		remaining:    -1,
		callsPerSite: make(map[string]int),
	}
}

func (q *quotaState) recordCall(site string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.callsPerSite[site]++
}

// backoffRemaining reports how long the caller must still wait before the
// next outbound call, zero if the deadline has passed.
func (q *quotaState) backoffRemaining(now time.Time) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.backoffUntil.After(now) {
		return q.backoffUntil.Sub(now)
	}
	return 0
}

// extendBackoff pushes the shared deadline out to until. The deadline only
// ever moves later; an earlier until is ignored.
func (q *quotaState) extendBackoff(until time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if until.After(q.backoffUntil) {
		q.backoffUntil = until
		return true
	}
	return false
}

// updateQuota folds a reported quota_remaining into the shared state and
// returns the operational notices it warrants: a rollover report with the
// per-site usage breakdown (which also resets the counters), a warning
// when the API claims zero quota, and the first reading after a restart.
func (q *quotaState) updateQuota(remaining int) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var notices []string
	if remaining-q.remaining >= quotaRolloverJump && q.remaining >= 0 && remaining > quotaRolloverFloor {
		notices = append(notices, fmt.Sprintf(
			"API quota rolled over with %d requests remaining. Current quota: %d.",
			q.remaining, remaining))
		if report := q.usageReportLocked(); report != "" {
			notices = append(notices, report)
		}
		q.callsPerSite = make(map[string]int)
	}
	if remaining == 0 {
		notices = append(notices, "API reports no quota left! May be a glitch.")
	}
	if q.remaining == -1 {
		notices = append(notices, fmt.Sprintf("Restart: API quota is %d.", remaining))
	}
	q.remaining = remaining
	return notices
}

// usageReportLocked renders per-site call counts, busiest first. Caller
// holds q.mu.
func (q *quotaState) usageReportLocked() string {
	type siteCalls struct {
		site  string
		calls int
	}
	sorted := make([]siteCalls, 0, len(q.callsPerSite))
	for site, calls := range q.callsPerSite {
		sorted = append(sorted, siteCalls{site, calls})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].calls == sorted[j].calls {
			return sorted[i].site < sorted[j].site
		}
		return sorted[i].calls > sorted[j].calls
	})

	var b strings.Builder
	for i, sc := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		short := strings.ReplaceAll(sc.site, ".com", "")
		short = strings.ReplaceAll(short, ".stackexchange", "")
		fmt.Fprintf(&b, "%s: %d", short, sc.calls)
	}
	return b.String()
}
