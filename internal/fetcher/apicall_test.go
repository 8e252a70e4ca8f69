package fetcher

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTransportFailureRequeuesWholeBatch(t *testing.T) {
	env := newTestEnv(Config{}) // API base points at a refused port
	defer env.f.Close()

	now := env.f.now()
	items := map[string]time.Time{
		"101": now.Add(-time.Minute),
		"102": now.Add(-time.Second),
	}

	env.f.fetchSite("a.example.com", items)

	requeued := env.queue.PopSite("a.example.com")
	if len(requeued) != 2 {
		t.Fatalf("expected the whole batch back in the queue, got %v", requeued)
	}
	for _, id := range []string{"101", "102"} {
		if _, ok := requeued[id]; !ok {
			t.Fatalf("id %s lost on requeue", id)
		}
	}
}

func TestUnreadableResponseRequeues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	env := newTestEnv(Config{APIBase: server.URL})
	defer env.f.Close()

	env.f.fetchSite("a.example.com", map[string]time.Time{"7": env.f.now()})

	if items := env.queue.PopSite("a.example.com"); len(items) != 1 {
		t.Fatalf("undecodable response should requeue the batch, got %v", items)
	}
}

func TestThrottlingErrorExtendsBackoff(t *testing.T) {
	stub, server := newAPIStub(`{"quota_remaining": 100, "error_message": "throttle violation", "error_id": 502}`)
	defer server.Close()
	_ = stub

	env := newTestEnv(Config{APIBase: server.URL})
	defer env.f.Close()

	callTime := env.f.now()
	env.f.fetchSite("a.example.com", map[string]time.Time{"7": callTime})

	if got := env.f.quota.backoffRemaining(callTime); got < throttleWindow {
		t.Fatalf("expected backoff of at least %v after throttle error, got %v", throttleWindow, got)
	}

	// The next call waits out the deadline plus the grace period.
	env.f.fetchSite("a.example.com", map[string]time.Time{"8": callTime})
	var waited bool
	for _, d := range env.sleeps() {
		if d >= throttleWindow+backoffGrace {
			waited = true
		}
	}
	if !waited {
		t.Fatalf("next call did not wait out the backoff: sleeps %v", env.sleeps())
	}

	var diag string
	for _, m := range env.notifier.all() {
		if strings.Contains(m, "throttle violation") {
			diag = m
		}
	}
	if diag == "" {
		t.Fatalf("throttle diagnostic not broadcast: %v", env.notifier.all())
	}
}

func TestBackoffHintExtendsDeadline(t *testing.T) {
	_, server := newAPIStub(`{"quota_remaining": 100, "backoff": 30}`)
	defer server.Close()

	env := newTestEnv(Config{APIBase: server.URL})
	defer env.f.Close()

	env.f.fetchSite("a.example.com", map[string]time.Time{"7": env.f.now()})

	if got := env.f.quota.backoffRemaining(env.f.now()); got != 30*time.Second {
		t.Fatalf("backoff hint: got %v want 30s", got)
	}
}

func TestBenignErrorNotBroadcast(t *testing.T) {
	_, server := newAPIStub(`{"error_message": "site is required", "error_id": 400}`)
	defer server.Close()

	env := newTestEnv(Config{APIBase: server.URL})
	defer env.f.Close()

	env.f.fetchSite("a.example.com", map[string]time.Time{"7": env.f.now()})

	for _, m := range env.notifier.all() {
		if strings.Contains(m, "site is required") {
			t.Fatalf("benign message was broadcast: %q", m)
		}
	}
}

func TestMissingQuotaPropertyIsDiagnosed(t *testing.T) {
	_, server := newAPIStub(`{"items": []}`)
	defer server.Close()

	env := newTestEnv(Config{APIBase: server.URL})
	defer env.f.Close()

	env.f.fetchSite("a.example.com", map[string]time.Time{"7": env.f.now()})

	found := false
	for _, m := range env.notifier.all() {
		if strings.Contains(m, "quota_remaining property was not in the API response") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing quota diagnostic not broadcast: %v", env.notifier.all())
	}
}

func TestPreCallDelayAppliedOncePerDispatch(t *testing.T) {
	_, server := newAPIStub(`{"quota_remaining": 9999}`)
	defer server.Close()

	env := newTestEnv(Config{APIBase: server.URL})
	defer env.f.Close()

	env.f.fetchSite("a.example.com", map[string]time.Time{"7": env.f.now()})

	count := 0
	for _, d := range env.sleeps() {
		if d == defaultPreCallDelay {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one pre-call delay, saw %d (sleeps %v)", count, env.sleeps())
	}
}

func TestFirehoseUsesWatermarkRequests(t *testing.T) {
	stub, server := newAPIStub(fmt.Sprintf(
		`{"quota_remaining": 9999, "items": [{"question_id": 1, "last_activity_date": %d}]}`,
		1_700_000_000))
	defer server.Close()

	env := newTestEnv(Config{
		APIBase:      server.URL,
		FirehoseSite: "firehose.example.com",
	})
	defer env.f.Close()

	env.f.fetchSite("firehose.example.com", map[string]time.Time{"7": env.f.now()})
	env.f.fetchSite("firehose.example.com", map[string]time.Time{"8": env.f.now()})

	calls := stub.calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %v", calls)
	}
	if !strings.Contains(calls[0], "pagesize=50") || strings.Contains(calls[0], "min=") {
		t.Fatalf("first firehose call should use pagesize 50 and no watermark: %q", calls[0])
	}
	if !strings.Contains(calls[1], "pagesize=100") {
		t.Fatalf("second firehose call should use pagesize 100: %q", calls[1])
	}
	wantMin := fmt.Sprintf("min=%d", 1_700_000_000-int64(watermarkMargin.Seconds()))
	if !strings.Contains(calls[1], wantMin) {
		t.Fatalf("second firehose call missing %s: %q", wantMin, calls[1])
	}
	if strings.Contains(calls[0], "/questions/7") {
		t.Fatalf("firehose call must not carry an id list: %q", calls[0])
	}

	// Id expansion is bypassed entirely for the firehose site.
	if len(env.f.maxIDs.export()) != 0 {
		t.Fatalf("firehose site should not track max ids: %v", env.f.maxIDs.export())
	}
}

func TestEditWatcherSubscribedForDrainedIDs(t *testing.T) {
	_, server := newAPIStub(`{"quota_remaining": 9999}`)
	defer server.Close()

	env := newTestEnv(Config{APIBase: server.URL})

	env.f.fetchSite("a.example.com", map[string]time.Time{"41": env.f.now(), "42": env.f.now()})
	env.f.Close()

	env.watcher.mu.Lock()
	defer env.watcher.mu.Unlock()
	if len(env.watcher.subs["a.example.com"]) != 2 {
		t.Fatalf("expected both drained ids subscribed: %v", env.watcher.subs)
	}
}
