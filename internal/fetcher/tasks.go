package fetcher

import (
	"sync"

	"postfetcher/pkg/logger"
)

// TaskPool runs fire-and-forget jobs (edit-watch subscriptions, snapshot
// saves, rescan re-enqueues) on a fixed set of workers. Callers never wait
// on a job or see its error; each job logs its own failure.
type TaskPool struct {
	jobs chan task
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type task struct {
	name string
	fn   func() error
}

func NewTaskPool(workers int) *TaskPool {
	if workers <= 0 {
		workers = 1
	}
	p := &TaskPool{jobs: make(chan task, 256)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *TaskPool) worker() {
	defer p.wg.Done()
	for t := range p.jobs {
		p.run(t)
	}
}

func (p *TaskPool) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Logger.Printf("Task %s panicked: %v", t.name, r)
		}
	}()
	if err := t.fn(); err != nil {
		logger.Logger.Printf("Task %s failed: %v", t.name, err)
	}
}

// Do submits a job. When the buffer is full the job runs on its own
// goroutine instead of blocking the caller; a worker stuck behind a slow
// snapshot must never stall the fetch path (or deadlock a worker that
// submits from inside a job).
func (p *TaskPool) Do(name string, fn func() error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	t := task{name: name, fn: fn}
	select {
	case p.jobs <- t:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		go p.run(t)
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *TaskPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.jobs)
	p.wg.Wait()
}

func logDebug(format string, args ...interface{}) {
	logger.Logger.Printf("[debug] "+format, args...)
}

func logError(format string, args ...interface{}) {
	logger.Logger.Printf("[error] "+format, args...)
}
