package prometheus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goReset "github.com/MrEthical07/goReset"
	"github.com/MrEthical07/goReset/mail"
)

type fakeSource struct {
	snapshot goReset.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goReset.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goReset.MetricsSnapshot{
			Counters:   map[goReset.MetricID]uint64{},
			Histograms: map[goReset.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goReset.MetricsSnapshot{
			Counters: map[goReset.MetricID]uint64{
				goReset.MetricResetTokenIssued: 7,
			},
			Histograms: map[goReset.MetricID][]uint64{
				goReset.MetricRequestLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"goreset_token_issued_total 7",
		"goreset_request_rate_limited_total 0",
		"goreset_request_latency_seconds_bucket{le=\"0.05\"} 1",
		"goreset_request_latency_seconds_bucket{le=\"0.5\"} 10",
		"goreset_request_latency_seconds_bucket{le=\"+Inf\"} 36",
		"goreset_request_latency_seconds_count 36",
		"goreset_redeem_latency_seconds_count 0",
		"goreset_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goReset.MetricsSnapshot{
			Counters: map[goReset.MetricID]uint64{
				goReset.MetricResetRequest:       3,
				goReset.MetricResetRedeemSuccess: 1,
			},
		},
	})
	if a, b := exp.Render(), exp.Render(); a != b {
		t.Fatalf("render output differs between calls")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goReset.MetricsSnapshot{
			Counters:   map[goReset.MetricID]uint64{goReset.MetricResetRequest: 1},
			Histograms: map[goReset.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); got != ContentType {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "goreset_request_total 1") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
}

type failingWriter struct {
	budget int
	calls  int
}

var errWriteClosed = errors.New("write closed")

func (f *failingWriter) Write(p []byte) (int, error) {
	f.calls++
	if f.budget <= 0 {
		return 0, errWriteClosed
	}
	f.budget--
	return len(p), nil
}

func TestWriteToStopsAtFirstError(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{dropped: 1})
	w := &failingWriter{budget: 3}

	n, err := exp.WriteTo(w)
	if !errors.Is(err, errWriteClosed) {
		t.Fatalf("expected write error, got %v", err)
	}
	if n == 0 {
		t.Fatalf("expected partial byte count")
	}
	if w.calls != 4 {
		t.Fatalf("writer called %d times after failing", w.calls)
	}
}

func TestWriteToMatchesRender(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{dropped: 4})
	var b strings.Builder

	n, err := exp.WriteTo(&b)
	if err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if int(n) != b.Len() || b.String() != exp.Render() {
		t.Fatalf("WriteTo and Render disagree")
	}
	if !strings.Contains(b.String(), "goreset_redeem_latency_seconds_sum 0\n") {
		t.Fatalf("missing histogram sum line:\n%s", b.String())
	}
}

func TestEscapeHelp(t *testing.T) {
	if got := escapeHelp("a\\b\nc"); got != `a\\b\nc` {
		t.Fatalf("escapeHelp = %q", got)
	}
}

type noAccounts struct{}

func (noAccounts) FindByEmail(context.Context, string) (string, bool, error) { return "", false, nil }
func (noAccounts) UpdatePasswordHash(context.Context, string, string) error { return nil }

func TestExporterReadsEngine(t *testing.T) {
	cfg := goReset.DefaultConfig()
	cfg.Response.MinResponseFloor = 0
	cfg.RateLimit.SweepInterval = 0
	cfg.Mail.ResetURL = "https://app.example.com/password/reset"

	engine, err := goReset.New().
		WithConfig(cfg).
		WithAccounts(noAccounts{}).
		WithMailer(&mail.Recorder{}).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	engine.RequestReset(context.Background(), "198.51.100.1", "nobody@example.com")

	out := NewPrometheusExporter(engine).Render()
	if !strings.Contains(out, "goreset_request_total 1") {
		t.Fatalf("expected request counter, got:\n%s", out)
	}
	if !strings.Contains(out, "goreset_request_unknown_account_total 1") {
		t.Fatalf("expected unknown account counter, got:\n%s", out)
	}
}
