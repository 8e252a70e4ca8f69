package fetcher

import (
	"net/http"
	"sync"
	"time"

	"postfetcher/internal/models"
	"postfetcher/internal/queue"
)

const (
	// defaultThreshold is the queue depth any site needs before it is
	// dispatched, unless a custom minimum or the time-sensitive window
	// applies.
	defaultThreshold = 1

	// batchIDCap is the most ids one bulk request may carry.
	batchIDCap = 100

	requestTimeout = 20 * time.Second

	// preCallDelay gives the upstream API time to become consistent with
	// the realtime event that triggered the fetch.
	defaultPreCallDelay = 3 * time.Second

	// debounce lets closely-spaced events for the same real-world change
	// land in the queue before a site is selected.
	defaultDebounce = 250 * time.Millisecond

	// throttleErrorID is the upstream error code meaning "slow down".
	throttleErrorID = 502
	throttleWindow  = 12 * time.Second

	// backoffGrace is added on top of a backoff deadline before the next
	// call is attempted.
	backoffGrace = 2 * time.Second

	// watermarkMargin re-fetches slightly behind the firehose watermark;
	// it must stay beyond the upstream edit grace period.
	watermarkMargin = 6 * time.Minute

	firstFirehosePageSize = 50
	firehosePageSize      = 100
)

// Classifier decides whether a post is spam. Out-of-scope collaborator;
// failures are logged and never abort a batch.
type Classifier interface {
	Check(post *models.Post) (models.ScanResult, error)
}

// SpamHandler acts on a confirmed spam post.
type SpamHandler interface {
	HandleSpam(post *models.Post, result models.ScanResult) error
}

// SeenStore compares a fetched post against the last state recorded for
// the same id, updating the stored state in the same atomic step.
type SeenStore interface {
	CompareAndUpdate(candidate *models.SeenPost) (models.CompareInfo, error)
	Record(post *models.SeenPost, result models.ScanResult) error
}

// EditWatcher is told about every question id we fetch so later edits come
// back through the realtime feed.
type EditWatcher interface {
	Subscribe(site string, questionIDs []int) error
}

// Notifier broadcasts operational messages (quota events, API errors).
type Notifier interface {
	Broadcast(tag, message string) error
}

// StatsSink receives per-dispatch scan statistics and queue timings.
type StatsSink interface {
	AddScan(scanned int, elapsed time.Duration)
	AddQueueTimings(site string, ages []time.Duration)
}

// Config is the fetcher's own tuning, converted from the service config.
type Config struct {
	APIBase   string
	APIFilter string
	APIKey    string

	SiteMinimums     map[string]int
	TimeSensitive    []string
	WindowStartHour  int
	WindowEndHour    int
	FirehoseSite     string
	IgnoredQuestions map[string][]int
}

// Deps are the collaborators the fetcher drives. Queue is required; any
// other collaborator may be nil and its calls are skipped.
type Deps struct {
	Queue     *queue.Store
	Snapshots queue.SnapshotStore
	Seen      SeenStore
	Classify  Classifier
	Handler   SpamHandler
	Watcher   EditWatcher
	Notifier  Notifier
	Stats     StatsSink
}

// Fetcher batches enqueued post ids into bulk API calls and walks the
// results. One instance owns all shared state: the pending queue, the
// per-site max ids, the in-process claim table and the quota budget.
type Fetcher struct {
	queue     *queue.Store
	snapshots queue.SnapshotStore
	seen      SeenStore
	classify  Classifier
	handler   SpamHandler
	watcher   EditWatcher
	notifier  Notifier
	stats     StatsSink
	tasks     *TaskPool

	client    *http.Client
	apiBase   string
	apiFilter string
	apiKey    string

	siteMinimums  map[string]int
	timeSensitive map[string]bool
	windowStart   int
	windowEnd     int
	firehoseSite  string
	ignored       map[string]map[int]bool

	// checkMu serializes site selection so a burst of events produces one
	// dispatch. apiMu admits one outbound API call system-wide.
	checkMu sync.Mutex
	apiMu   sync.Mutex

	quota     *quotaState
	maxIDs    *maxIDTracker
	watermark *watermarkState
	inProcess *inProcessRegistry

	now          func() time.Time
	sleep        func(time.Duration)
	debounce     time.Duration
	preCallDelay time.Duration
}

func New(cfg Config, deps Deps, workers int) *Fetcher {
	f := &Fetcher{
		queue:     deps.Queue,
		snapshots: deps.Snapshots,
		seen:      deps.Seen,
		classify:  deps.Classify,
		handler:   deps.Handler,
		watcher:   deps.Watcher,
		notifier:  deps.Notifier,
		stats:     deps.Stats,
		tasks:     NewTaskPool(workers),

		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		apiBase:   cfg.APIBase,
		apiFilter: cfg.APIFilter,
		apiKey:    cfg.APIKey,

		siteMinimums:  cfg.SiteMinimums,
		timeSensitive: make(map[string]bool, len(cfg.TimeSensitive)),
		windowStart:   cfg.WindowStartHour,
		windowEnd:     cfg.WindowEndHour,
		firehoseSite:  cfg.FirehoseSite,
		ignored:       make(map[string]map[int]bool, len(cfg.IgnoredQuestions)),

		quota:     newQuotaState(),
		maxIDs:    newMaxIDTracker(),
		watermark: &watermarkState{},
		inProcess: newInProcessRegistry(),

		now:          time.Now,
		sleep:        time.Sleep,
		debounce:     defaultDebounce,
		preCallDelay: defaultPreCallDelay,
	}
	if f.siteMinimums == nil {
		f.siteMinimums = map[string]int{}
	}
	for _, site := range cfg.TimeSensitive {
		f.timeSensitive[site] = true
	}
	for site, ids := range cfg.IgnoredQuestions {
		set := make(map[int]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		f.ignored[site] = set
	}
	return f
}

// RestoreMaxIDs seeds the per-site max ids from a persisted snapshot.
func (f *Fetcher) RestoreMaxIDs(maxIDs map[string]int) {
	f.maxIDs.restore(maxIDs)
}

// QueueSummary is the human-readable per-site pending-count report.
func (f *Fetcher) QueueSummary() string {
	return f.queue.Summary()
}

// Close drains the fire-and-forget task pool.
func (f *Fetcher) Close() {
	f.tasks.Close()
}

func (f *Fetcher) broadcast(tag, message string) {
	if f.notifier == nil {
		return
	}
	if err := f.notifier.Broadcast(tag, message); err != nil {
		logError("broadcast failed: %v", err)
	}
}

func (f *Fetcher) scheduleQueueSnapshot() {
	if f.snapshots == nil {
		return
	}
	f.tasks.Do("store queue snapshot", func() error {
		return f.snapshots.SaveQueue(f.queue.Export())
	})
}

func (f *Fetcher) scheduleMaxIDSnapshot() {
	if f.snapshots == nil {
		return
	}
	f.tasks.Do("store max ids", func() error {
		return f.snapshots.SaveMaxIDs(f.maxIDs.export())
	})
}
