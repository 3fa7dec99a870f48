package goReset

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricResetRequest)

	if got := m.Value(MetricResetRequest); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricResetRedeem)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricResetRedeem); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		20 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
		time.Second,
		2 * time.Second,
		5 * time.Second,
	}
	for _, d := range observations {
		m.Observe(MetricRequestLatency, d)
	}

	buckets := m.Snapshot().Histograms[MetricRequestLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsObserveIgnoresCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricResetRequest, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricResetRequest]; ok {
		t.Fatalf("counters must not carry histograms")
	}
	if _, ok := snap.Counters[MetricRequestLatency]; ok {
		t.Fatalf("latency metrics must not appear as counters")
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricResetTokenIssued)
	m.Inc(MetricResetRedeemConflict)
	m.Inc(MetricResetRedeemConflict)

	snap := m.Snapshot()
	if snap.Counters[MetricResetTokenIssued] != 1 {
		t.Fatalf("expected issued=1 got %d", snap.Counters[MetricResetTokenIssued])
	}
	if snap.Counters[MetricResetRedeemConflict] != 2 {
		t.Fatalf("expected conflict=2 got %d", snap.Counters[MetricResetRedeemConflict])
	}
	if len(snap.Histograms) != 0 {
		t.Fatalf("histograms must be empty when latency is disabled")
	}
}
