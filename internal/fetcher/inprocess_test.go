package fetcher

import (
	"testing"
	"time"
)

func TestClaimIsReentrantForOwner(t *testing.T) {
	r := newInProcessRegistry()
	now := time.Now()

	if !r.claim("A", "a.example.com", 7, now) {
		t.Fatalf("first claim should succeed")
	}
	if !r.claim("A", "a.example.com", 7, now.Add(time.Second)) {
		t.Fatalf("same-owner claim should be idempotent")
	}

	rescan, released := r.release("A", "a.example.com", 7)
	if !released || rescan {
		t.Fatalf("clean release: rescan=%v released=%v", rescan, released)
	}
}

func TestConflictingClaimRequestsRescan(t *testing.T) {
	r := newInProcessRegistry()
	now := time.Now()

	r.claim("A", "a.example.com", 7, now)
	if r.claim("B", "a.example.com", 7, now) {
		t.Fatalf("foreign claim should fail")
	}

	rescan, released := r.release("A", "a.example.com", 7)
	if !released || !rescan {
		t.Fatalf("owner release after conflict: rescan=%v released=%v", rescan, released)
	}
}

func TestForeignReleaseIsNoop(t *testing.T) {
	r := newInProcessRegistry()
	now := time.Now()

	r.claim("A", "a.example.com", 7, now)

	rescan, released := r.release("B", "a.example.com", 7)
	if released || rescan {
		t.Fatalf("foreign release must not touch the entry")
	}

	// A still owns the claim.
	if r.claim("A", "a.example.com", 7, now) != true {
		t.Fatalf("entry lost after foreign release")
	}
}

func TestReleaseMissingEntryIsNoop(t *testing.T) {
	r := newInProcessRegistry()
	rescan, released := r.release("A", "a.example.com", 99)
	if released || rescan {
		t.Fatalf("missing entry release should be a no-op")
	}
}

func TestRescanReenqueuesQuestionOnce(t *testing.T) {
	env := newTestEnv(Config{
		// Keep the re-enqueued id parked so we can observe it.
		SiteMinimums: map[string]int{"a.example.com": 100},
	})

	env.f.inProcess.claim("A", "a.example.com", 42, env.f.now())
	if env.f.inProcess.claim("B", "a.example.com", 42, env.f.now()) {
		t.Fatalf("conflicting claim should fail")
	}

	env.f.releaseClaim("A", "a.example.com", 42, 42)
	env.f.Close() // drain the task pool

	if summary := env.f.QueueSummary(); summary != "a.example.com: 1" {
		t.Fatalf("expected exactly one re-enqueued id, got %q", summary)
	}
}
