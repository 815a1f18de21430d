// Package capacity implements the Capacity Gate: a pluggable predicate the
// Task Scheduler consults before claiming a task (spec §2, §4.6, §4.8).
package capacity

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jeremybastin1207/mindia/internal/logger"
)

// Gate is any admission-control predicate the scheduler consults in
// try-claim-one before acquiring a worker permit (spec §4.6 step 1).
type Gate interface {
	// CanAcceptTask reports whether the scheduler may claim another task
	// right now. Implementations are allowed to be stale, snapshotted by
	// a background sampler (spec §4.8): "observed within the last
	// sampling window", not real-time.
	CanAcceptTask() bool
}

// AlwaysAccept is the no-op Gate used when capacity gating is disabled.
type AlwaysAccept struct{}

func (AlwaysAccept) CanAcceptTask() bool { return true }

// Thresholds configures the signal-level behavior of a Sampler-backed
// Gate. Each signal independently either warns (logs, still accepts) or
// blocks (rejects claims) once its threshold is crossed.
type Thresholds struct {
	MaxDiskUsedPercent   float64
	MaxMemoryAllocBytes  uint64
	MaxLoadAverage1m     float64
	DiskBlocks           bool
	MemoryBlocks         bool
	LoadBlocks           bool
	DiskPath             string
}

func (t Thresholds) normalized() Thresholds {
	if t.DiskPath == "" {
		t.DiskPath = "/"
	}
	return t
}

// snapshot is the last sample a Sampler observed.
type snapshot struct {
	diskUsedPercent float64
	memAllocBytes   uint64
	loadAverage1m   float64
	sampledAt       time.Time
}

// Sampler is a background-refreshed Gate combining disk-free,
// memory-usage, and load-average signals (spec §4.6 "typical
// implementations combine disk-free, memory-usage, and CPU-usage
// thresholds with configured per-signal behavior"). Samples are taken on
// an interval rather than per-call, per spec §4.8's staleness allowance.
type Sampler struct {
	thresholds Thresholds
	interval   time.Duration

	mu   sync.RWMutex
	last snapshot

	stop chan struct{}
}

// NewSampler constructs a Sampler and takes its first synchronous sample
// so CanAcceptTask has a value to report immediately.
func NewSampler(thresholds Thresholds, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &Sampler{thresholds: thresholds.normalized(), interval: interval, stop: make(chan struct{})}
	s.sampleOnce()
	return s
}

// Run refreshes the sample on Sampler's interval until Stop is called.
// Intended to be launched once as a background goroutine by the
// surrounding runtime (the same "periodic sampler" role spec §4.8
// describes).
func (s *Sampler) Run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

// Stop ends the Run loop.
func (s *Sampler) Stop() { close(s.stop) }

// diskUsedPercent reports the used-space percentage of the filesystem
// containing path, via a raw Statfs syscall — the same
// golang.org/x/sys/unix.Statfs idiom the example pack's aistore `ios`
// package uses for mountpath capacity checks.
func diskUsedPercent(path string) (float64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	if total == 0 {
		return 0, nil
	}
	used := total - free
	return float64(used) / float64(total) * 100, nil
}

// loadAverage1m reads the 1-minute load average from /proc/loadavg.
// Linux-only; returns 0 silently on platforms without it (the load
// threshold is then effectively disabled, matching "configured per-signal
// behavior" rather than failing the sampler entirely).
func loadAverage1m() float64 {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return v
}

func (s *Sampler) sampleOnce() {
	snap := snapshot{sampledAt: time.Now()}

	if pct, err := diskUsedPercent(s.thresholds.DiskPath); err == nil {
		snap.diskUsedPercent = pct
	} else {
		logger.Warn("capacity: disk sample failed", "path", s.thresholds.DiskPath, "error", err)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	snap.memAllocBytes = mem.Alloc

	snap.loadAverage1m = loadAverage1m()

	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
}

// CanAcceptTask evaluates the last sample against the configured
// thresholds. A signal configured to "warn" logs once it crosses its
// threshold but still accepts; a signal configured to "block" causes
// CanAcceptTask to return false.
func (s *Sampler) CanAcceptTask() bool {
	s.mu.RLock()
	snap := s.last
	s.mu.RUnlock()

	accept := true
	if s.thresholds.MaxDiskUsedPercent > 0 && snap.diskUsedPercent >= s.thresholds.MaxDiskUsedPercent {
		logger.Warn("capacity: disk threshold crossed", "used_percent", snap.diskUsedPercent, "threshold", s.thresholds.MaxDiskUsedPercent, "blocking", s.thresholds.DiskBlocks)
		if s.thresholds.DiskBlocks {
			accept = false
		}
	}
	if s.thresholds.MaxMemoryAllocBytes > 0 && snap.memAllocBytes >= s.thresholds.MaxMemoryAllocBytes {
		logger.Warn("capacity: memory threshold crossed", "alloc_bytes", snap.memAllocBytes, "threshold", s.thresholds.MaxMemoryAllocBytes, "blocking", s.thresholds.MemoryBlocks)
		if s.thresholds.MemoryBlocks {
			accept = false
		}
	}
	if s.thresholds.MaxLoadAverage1m > 0 && snap.loadAverage1m >= s.thresholds.MaxLoadAverage1m {
		logger.Warn("capacity: load average threshold crossed", "load_1m", snap.loadAverage1m, "threshold", s.thresholds.MaxLoadAverage1m, "blocking", s.thresholds.LoadBlocks)
		if s.thresholds.LoadBlocks {
			accept = false
		}
	}
	return accept
}

var (
	_ Gate = AlwaysAccept{}
	_ Gate = (*Sampler)(nil)
)
