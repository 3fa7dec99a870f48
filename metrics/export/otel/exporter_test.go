package otel

import (
	"context"
	"sync"
	"testing"

	goReset "github.com/MrEthical07/goReset"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goReset.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goReset.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goReset.MetricsSnapshot{
		Counters:   make(map[goReset.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goReset.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

// findInt64 returns the data point of name whose attributes contain every
// key/value in want.
func findInt64(rm metricdata.ResourceMetrics, name string, want ...attribute.KeyValue) (int64, bool) {
	match := func(set attribute.Set) bool {
		for _, kv := range want {
			v, ok := set.Value(kv.Key)
			if !ok || v.Emit() != kv.Value.Emit() {
				return false
			}
		}
		return true
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value, true
					}
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value, true
					}
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("goreset-test")

	src := &fakeSource{
		snapshot: goReset.MetricsSnapshot{
			Counters: map[goReset.MetricID]uint64{
				goReset.MetricResetRedeemSuccess: 3,
			},
			Histograms: map[goReset.MetricID][]uint64{
				goReset.MetricRequestLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	tests := []struct {
		name  string
		attrs []attribute.KeyValue
		want  int64
	}{
		{"goreset.redeem", []attribute.KeyValue{attribute.String("outcome", "success")}, 3},
		{"goreset.redeem", []attribute.KeyValue{attribute.String("outcome", "conflict")}, 0},
		{"goreset.latency.bucket", []attribute.KeyValue{attribute.String("op", "request"), attribute.String("le", "0.5")}, 4},
		{"goreset.latency.bucket", []attribute.KeyValue{attribute.String("op", "request"), attribute.String("le", "+Inf")}, 8},
		{"goreset.latency.count", []attribute.KeyValue{attribute.String("op", "request")}, 8},
		{"goreset.latency.count", []attribute.KeyValue{attribute.String("op", "redeem")}, 0},
		{"goreset.audit.dropped", nil, 1},
	}
	for _, tt := range tests {
		got, ok := findInt64(rm, tt.name, tt.attrs...)
		if !ok {
			t.Fatalf("metric %s %v not collected", tt.name, tt.attrs)
		}
		if got != tt.want {
			t.Fatalf("%s %v = %d, want %d", tt.name, tt.attrs, got, tt.want)
		}
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader()
	meter := provider.Meter("goreset-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("goreset-test")

	src := &fakeSource{
		snapshot: goReset.MetricsSnapshot{
			Counters: map[goReset.MetricID]uint64{
				goReset.MetricResetRequest: 1,
			},
			Histograms: map[goReset.MetricID][]uint64{
				goReset.MetricRedeemLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goReset.MetricResetRequest] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
