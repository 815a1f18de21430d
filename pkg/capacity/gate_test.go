package capacity

import (
	"testing"
	"time"
)

func TestAlwaysAccept(t *testing.T) {
	var g Gate = AlwaysAccept{}
	if !g.CanAcceptTask() {
		t.Fatal("AlwaysAccept must always accept")
	}
}

func newTestSampler(thresholds Thresholds) *Sampler {
	return &Sampler{thresholds: thresholds.normalized(), interval: time.Second, stop: make(chan struct{})}
}

func TestCanAcceptTaskBelowThresholds(t *testing.T) {
	s := newTestSampler(Thresholds{MaxDiskUsedPercent: 90, DiskBlocks: true})
	s.last = snapshot{diskUsedPercent: 50}
	if !s.CanAcceptTask() {
		t.Fatal("expected CanAcceptTask to accept when below threshold")
	}
}

func TestCanAcceptTaskBlockingSignalRejects(t *testing.T) {
	s := newTestSampler(Thresholds{MaxDiskUsedPercent: 90, DiskBlocks: true})
	s.last = snapshot{diskUsedPercent: 95}
	if s.CanAcceptTask() {
		t.Fatal("expected CanAcceptTask to reject once a blocking signal crosses its threshold")
	}
}

func TestCanAcceptTaskWarnOnlySignalStillAccepts(t *testing.T) {
	s := newTestSampler(Thresholds{MaxDiskUsedPercent: 90, DiskBlocks: false})
	s.last = snapshot{diskUsedPercent: 95}
	if !s.CanAcceptTask() {
		t.Fatal("expected a warn-only signal to still accept once crossed")
	}
}

func TestCanAcceptTaskMemoryThreshold(t *testing.T) {
	s := newTestSampler(Thresholds{MaxMemoryAllocBytes: 1000, MemoryBlocks: true})
	s.last = snapshot{memAllocBytes: 2000}
	if s.CanAcceptTask() {
		t.Fatal("expected memory threshold to block")
	}
}

func TestCanAcceptTaskLoadThreshold(t *testing.T) {
	s := newTestSampler(Thresholds{MaxLoadAverage1m: 4, LoadBlocks: true})
	s.last = snapshot{loadAverage1m: 8}
	if s.CanAcceptTask() {
		t.Fatal("expected load average threshold to block")
	}
}

func TestCanAcceptTaskUnconfiguredThresholdsAlwaysAccept(t *testing.T) {
	s := newTestSampler(Thresholds{})
	s.last = snapshot{diskUsedPercent: 99, memAllocBytes: 1 << 40, loadAverage1m: 999}
	if !s.CanAcceptTask() {
		t.Fatal("a threshold of zero means the signal is disabled, not maximally strict")
	}
}

func TestNewSamplerTakesAnInitialSample(t *testing.T) {
	s := NewSampler(Thresholds{DiskPath: "/"}, time.Second)
	defer s.Stop()
	s.mu.RLock()
	sampledAt := s.last.sampledAt
	s.mu.RUnlock()
	if sampledAt.IsZero() {
		t.Fatal("expected NewSampler to take a synchronous first sample")
	}
}

func TestSamplerRunRefreshesOnInterval(t *testing.T) {
	s := NewSampler(Thresholds{DiskPath: "/"}, 20*time.Millisecond)
	go s.Run()
	defer s.Stop()

	s.mu.RLock()
	first := s.last.sampledAt
	s.mu.RUnlock()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.RLock()
		latest := s.last.sampledAt
		s.mu.RUnlock()
		if latest.After(first) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected Run to refresh the sample at least once within the deadline")
}
