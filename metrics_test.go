package zerofriction

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	for i := 0; i < 3; i++ {
		m.Inc(MetricVerifySuccess)
	}
	m.Inc(MetricLockout)

	if got := m.Value(MetricVerifySuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}

	snap := m.Snapshot()
	if snap.Counters[MetricVerifySuccess] != 3 || snap.Counters[MetricLockout] != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap.Counters)
	}
	if snap.Counters[MetricLoginSuccess] != 0 {
		t.Fatal("untouched counters must read zero")
	}
}

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricVerifySuccess)
	m.Observe(MetricVerifyLatency, 10*time.Millisecond)

	if m.Enabled() {
		t.Fatal("expected disabled metrics")
	}
	if m.Value(MetricVerifySuccess) != 0 {
		t.Fatal("disabled metrics must not count")
	}
	if snap := m.Snapshot(); len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}

	// Nil receiver tolerated everywhere.
	var nilMetrics *Metrics
	nilMetrics.Inc(MetricVerifySuccess)
	nilMetrics.Observe(MetricVerifyLatency, time.Millisecond)
	if nilMetrics.Enabled() || nilMetrics.Value(MetricVerifySuccess) != 0 {
		t.Fatal("nil metrics must be inert")
	}
}

func TestMetricsObserveBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricVerifyLatency, 2*time.Millisecond)   // bucket 0
	m.Observe(MetricVerifyLatency, 2*time.Millisecond)   // bucket 0
	m.Observe(MetricVerifyLatency, 40*time.Millisecond)  // bucket 3
	m.Observe(MetricVerifyLatency, 900*time.Millisecond) // bucket 7

	buckets := m.Snapshot().Histograms[MetricVerifyLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	if buckets[0] != 2 || buckets[3] != 1 || buckets[7] != 1 {
		t.Fatalf("unexpected bucket distribution: %v", buckets)
	}

	// Only the latency metric carries a histogram.
	m.Observe(MetricVerifySuccess, time.Millisecond)
	if got := m.Snapshot().Histograms[MetricVerifyLatency]; got[0] != 2 {
		t.Fatalf("non-latency observe must not land anywhere: %v", got)
	}
}

func TestBucketIndexBoundaries(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{6 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{100 * time.Millisecond, 4},
		{500 * time.Millisecond, 6},
		{time.Second, 7},
	}
	for _, tc := range cases {
		if got := bucketIndex(tc.d); got != tc.want {
			t.Fatalf("bucketIndex(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricCredentialIssued)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricCredentialIssued); got != workers*perWorker {
		t.Fatalf("expected %d, got %d", workers*perWorker, got)
	}
}
