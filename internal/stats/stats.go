package stats

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Collector aggregates per-dispatch scan statistics and queue timings.
// Implements fetcher.StatsSink.
type Collector struct {
	mu           sync.Mutex
	dispatches   int
	totalScanned int
	totalElapsed time.Duration
	queueTimings map[string]*siteTiming

	startTime time.Time
}

type siteTiming struct {
	samples  int
	totalAge time.Duration
}

func NewCollector() *Collector {
	return &Collector{
		queueTimings: make(map[string]*siteTiming),
		startTime:    time.Now(),
	}
}

func (c *Collector) AddScan(scanned int, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatches++
	c.totalScanned += scanned
	c.totalElapsed += elapsed
}

func (c *Collector) AddQueueTimings(site string, ages []time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.queueTimings[site]
	if !ok {
		st = &siteTiming{}
		c.queueTimings[site] = st
	}
	for _, age := range ages {
		st.samples++
		st.totalAge += age
	}
}

// Report is the introspection payload served over the API.
type Report struct {
	Uptime          string                `json:"uptime"`
	Dispatches      int                   `json:"dispatches"`
	PostsScanned    int                   `json:"posts_scanned"`
	ScanTimeSeconds float64               `json:"scan_time_seconds"`
	QueueTimings    map[string]SiteReport `json:"queue_timings"`
	System          SystemReport          `json:"system"`
}

type SiteReport struct {
	Samples       int     `json:"samples"`
	AvgAgeSeconds float64 `json:"avg_age_seconds"`
}

type SystemReport struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryUsed uint64  `json:"memory_used"`
	MemoryPct  float64 `json:"memory_pct"`
	Goroutines int     `json:"goroutines"`
}

func (c *Collector) Report() Report {
	c.mu.Lock()
	r := Report{
		Uptime:          time.Since(c.startTime).Round(time.Second).String(),
		Dispatches:      c.dispatches,
		PostsScanned:    c.totalScanned,
		ScanTimeSeconds: c.totalElapsed.Seconds(),
		QueueTimings:    make(map[string]SiteReport, len(c.queueTimings)),
	}
	for site, st := range c.queueTimings {
		sr := SiteReport{Samples: st.samples}
		if st.samples > 0 {
			sr.AvgAgeSeconds = st.totalAge.Seconds() / float64(st.samples)
		}
		r.QueueTimings[site] = sr
	}
	c.mu.Unlock()

	r.System = systemSnapshot()
	return r
}

func systemSnapshot() SystemReport {
	s := SystemReport{Goroutines: runtime.NumGoroutine()}
	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		s.CPUPercent = cpuPercent[0]
	}
	if v, err := mem.VirtualMemory(); err == nil {
		s.MemoryUsed = v.Used
		s.MemoryPct = v.UsedPercent
	}
	return s
}
