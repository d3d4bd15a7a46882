package lisp

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// RootAudit: periodic report of long-lived roots
// ---------------------------------------------------------------------------

// AuditStats holds the findings of a single audit pass.
type AuditStats struct {
	Live          int
	Registered    uint64
	Released      uint64
	Suspects      []RootInfo
	AuditDuration time.Duration
	Timestamp     time.Time
}

// RootAudit periodically reports roots that have stayed registered longer
// than a threshold. Native code that forgets to release handles keeps host
// objects alive forever; the audit makes that visible in the log.
type RootAudit struct {
	roots     *RootSet
	interval  time.Duration
	threshold time.Duration
	enabled   atomic.Bool
	stop      chan struct{}
	stopped   chan struct{}
	mu        sync.Mutex // protects start/stop lifecycle

	auditCount atomic.Uint64
	lastStats  atomic.Value // *AuditStats
}

// Defaults for NewRootAudit.
const (
	DefaultAuditInterval  = 30 * time.Second
	DefaultAuditThreshold = 5 * time.Minute
)

// NewRootAudit creates an audit of rs. Non-positive durations select the
// defaults.
func NewRootAudit(rs *RootSet, interval, threshold time.Duration) *RootAudit {
	if interval <= 0 {
		interval = DefaultAuditInterval
	}
	if threshold <= 0 {
		threshold = DefaultAuditThreshold
	}
	a := &RootAudit{
		roots:     rs,
		interval:  interval,
		threshold: threshold,
	}
	a.enabled.Store(true)
	return a
}

// Start begins the periodic audit goroutine. Calling Start twice runs one
// loop.
func (a *RootAudit) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stop != nil {
		return
	}
	a.stop = make(chan struct{})
	a.stopped = make(chan struct{})

	// The goroutine gets its own copies; Stop nils the fields.
	go a.loop(a.stop, a.stopped)
}

// Stop halts the audit goroutine and waits for it. Safe to call on an
// audit that never started.
func (a *RootAudit) Stop() {
	a.mu.Lock()
	stopCh, stoppedCh := a.stop, a.stopped
	a.stop, a.stopped = nil, nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled toggles auditing without stopping the goroutine.
func (a *RootAudit) SetEnabled(enabled bool) {
	a.enabled.Store(enabled)
}

// IsEnabled returns whether auditing is on.
func (a *RootAudit) IsEnabled() bool {
	return a.enabled.Load()
}

// AuditCount returns the number of completed passes.
func (a *RootAudit) AuditCount() uint64 {
	return a.auditCount.Load()
}

// LastStats returns the most recent findings, or nil before the first pass.
func (a *RootAudit) LastStats() *AuditStats {
	v := a.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*AuditStats)
}

// AuditNow runs one pass immediately.
func (a *RootAudit) AuditNow() *AuditStats {
	return a.audit()
}

func (a *RootAudit) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if a.enabled.Load() {
				a.audit()
			}
		}
	}
}

func (a *RootAudit) audit() *AuditStats {
	start := time.Now()
	rs := a.roots.Stats()
	stats := &AuditStats{
		Live:       rs.Live,
		Registered: rs.Registered,
		Released:   rs.Released,
		Suspects:   a.roots.Older(a.threshold),
		Timestamp:  start,
	}
	stats.AuditDuration = time.Since(start)

	if n := len(stats.Suspects); n > 0 {
		rootLog.Warningf("%d of %d roots held longer than %s (oldest %s)",
			n, stats.Live, a.threshold, stats.Suspects[0].Age.Truncate(time.Second))
	} else {
		rootLog.Debugf("root audit: %d live, %d registered, %d released",
			stats.Live, stats.Registered, stats.Released)
	}

	a.auditCount.Add(1)
	a.lastStats.Store(stats)
	return stats
}
