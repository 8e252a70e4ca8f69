package fetcher

import (
	"sync"
	"time"

	"postfetcher/internal/models"
	"postfetcher/internal/queue"
)

// Shared fakes. Tests build a Fetcher whose sleeps are recorded instead of
// slept and whose clock is fixed, so dispatch decisions are deterministic.

type fakeSeen struct {
	mu      sync.Mutex
	compare models.CompareInfo
	err     error
	updated []string
	records []*models.SeenPost
}

func (s *fakeSeen) CompareAndUpdate(c *models.SeenPost) (models.CompareInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, c.Site)
	return s.compare, s.err
}

func (s *fakeSeen) Record(p *models.SeenPost, r models.ScanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, p)
	return nil
}

type fakeClassifier struct {
	mu      sync.Mutex
	result  models.ScanResult
	err     error
	checked []*models.Post
}

func (c *fakeClassifier) Check(post *models.Post) (models.ScanResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checked = append(c.checked, post)
	return c.result, c.err
}

func (c *fakeClassifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.checked)
}

type fakeHandler struct {
	mu      sync.Mutex
	err     error
	handled []*models.Post
}

func (h *fakeHandler) HandleSpam(post *models.Post, result models.ScanResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, post)
	return h.err
}

func (h *fakeHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

type fakeWatcher struct {
	mu   sync.Mutex
	subs map[string][]int
}

func (w *fakeWatcher) Subscribe(site string, ids []int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.subs == nil {
		w.subs = make(map[string][]int)
	}
	w.subs[site] = append(w.subs[site], ids...)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Broadcast(tag, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type fakeStats struct {
	mu      sync.Mutex
	scanned []int
	timings map[string]int
}

func (s *fakeStats) AddScan(n int, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanned = append(s.scanned, n)
}

func (s *fakeStats) AddQueueTimings(site string, ages []time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timings == nil {
		s.timings = make(map[string]int)
	}
	s.timings[site] += len(ages)
}

type testEnv struct {
	f        *Fetcher
	queue    *queue.Store
	seen     *fakeSeen
	classify *fakeClassifier
	handler  *fakeHandler
	watcher  *fakeWatcher
	notifier *fakeNotifier
	stats    *fakeStats

	mu     sync.Mutex
	slept  []time.Duration
	nowVal time.Time
}

func (e *testEnv) setNow(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nowVal = t
}

func (e *testEnv) sleeps() []time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]time.Duration(nil), e.slept...)
}

func newTestEnv(cfg Config) *testEnv {
	if cfg.APIBase == "" {
		cfg.APIBase = "http://127.0.0.1:1" // connection refused
	}
	env := &testEnv{
		queue:    queue.NewStore(),
		seen:     &fakeSeen{},
		classify: &fakeClassifier{},
		handler:  &fakeHandler{},
		watcher:  &fakeWatcher{},
		notifier: &fakeNotifier{},
		stats:    &fakeStats{},
		nowVal:   time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	env.f = New(cfg, Deps{
		Queue:    env.queue,
		Seen:     env.seen,
		Classify: env.classify,
		Handler:  env.handler,
		Watcher:  env.watcher,
		Notifier: env.notifier,
		Stats:    env.stats,
	}, 2)
	env.f.now = func() time.Time {
		env.mu.Lock()
		defer env.mu.Unlock()
		return env.nowVal
	}
	env.f.sleep = func(d time.Duration) {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.slept = append(env.slept, d)
	}
	return env
}

func strPtr(s string) *string { return &s }

func i64Ptr(i int64) *int64 { return &i }

func intPtr(i int) *int { return &i }
