package fetcher

import (
	"strings"
	"testing"
	"time"
)

func TestBackoffDeadlineOnlyMovesLater(t *testing.T) {
	q := newQuotaState()
	now := time.Now()

	if !q.extendBackoff(now.Add(12 * time.Second)) {
		t.Fatalf("first extension should apply")
	}
	if q.extendBackoff(now.Add(5 * time.Second)) {
		t.Fatalf("earlier deadline must be ignored")
	}
	if got := q.backoffRemaining(now); got != 12*time.Second {
		t.Fatalf("backoff remaining: %v", got)
	}
	if got := q.backoffRemaining(now.Add(time.Minute)); got != 0 {
		t.Fatalf("expired backoff should be zero, got %v", got)
	}
}

func TestUpdateQuotaRestartNotice(t *testing.T) {
	q := newQuotaState()

	notices := q.updateQuota(9000)
	if len(notices) != 1 || !strings.Contains(notices[0], "Restart: API quota is 9000.") {
		t.Fatalf("restart notice: %v", notices)
	}

	if notices = q.updateQuota(8999); len(notices) != 0 {
		t.Fatalf("ordinary decrement should be silent: %v", notices)
	}
}

func TestUpdateQuotaRollover(t *testing.T) {
	q := newQuotaState()
	q.updateQuota(300) // restart reading
	q.recordCall("gis.stackexchange.com")
	q.recordCall("gis.stackexchange.com")
	q.recordCall("security.stackexchange.com")

	notices := q.updateQuota(40000)
	if len(notices) < 2 {
		t.Fatalf("rollover should report the event and the usage breakdown: %v", notices)
	}
	if !strings.Contains(notices[0], "API quota rolled over with 300 requests remaining") {
		t.Fatalf("rollover notice: %q", notices[0])
	}
	// Site names are shortened, busiest first.
	if !strings.HasPrefix(notices[1], "gis: 2") {
		t.Fatalf("usage breakdown: %q", notices[1])
	}

	// Counters reset after the report.
	q.mu.Lock()
	remaining := len(q.callsPerSite)
	q.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("per-site counters not reset")
	}
}

func TestUpdateQuotaNoRolloverFromUnknown(t *testing.T) {
	q := newQuotaState()

	// First reading after restart: a jump from -1 is not a rollover.
	notices := q.updateQuota(40000)
	for _, n := range notices {
		if strings.Contains(n, "rolled over") {
			t.Fatalf("restart reading misreported as rollover: %v", notices)
		}
	}
}

func TestUpdateQuotaZeroWarns(t *testing.T) {
	q := newQuotaState()
	q.updateQuota(100)

	notices := q.updateQuota(0)
	found := false
	for _, n := range notices {
		if strings.Contains(n, "no quota left") {
			found = true
		}
	}
	if !found {
		t.Fatalf("zero quota should warn: %v", notices)
	}
}
