package prometheus

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	goReset "github.com/MrEthical07/goReset"
	"github.com/MrEthical07/goReset/metrics/export/internaldefs"
)

// ContentType is the media type of the text exposition format version 0.0.4.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() goReset.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders reset engine metrics in Prometheus text
// exposition format. Every scrape takes a fresh snapshot; the exporter keeps
// no state of its own.
type PrometheusExporter struct {
	source metricsSource
}

func NewPrometheusExporter(engine *goReset.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from any value exposing a metrics
// snapshot and an audit drop count.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves one scrape per request.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", ContentType)
		_, _ = p.WriteTo(w)
	})
}

// Render returns the current metrics, or "" when the engine records none.
func (p *PrometheusExporter) Render() string {
	var buf bytes.Buffer
	_, _ = p.WriteTo(&buf)
	return buf.String()
}

// WriteTo streams the exposition to w. Families appear in a fixed order:
// reset counters, the two latency histograms, then the audit drop counter.
// Nothing is written when the engine records no metrics.
func (p *PrometheusExporter) WriteTo(w io.Writer) (int64, error) {
	if p == nil || p.source == nil {
		return 0, nil
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return 0, nil
	}

	ew := &expositionWriter{w: w}
	for _, def := range internaldefs.CounterDefs {
		ew.family(def.Name, def.Help, "counter")
		ew.sample(def.Name, "", snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		ew.family(def.Name, def.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			ew.sample(def.Name+"_bucket", `le="`+le+`"`, cumulative[i])
		}
		ew.sample(def.Name+"_count", "", cumulative[len(cumulative)-1])
		// Bucket counts only; no running sum is kept.
		ew.sample(def.Name+"_sum", "", 0)
	}
	ew.family(auditDroppedName, auditDroppedHelp, "counter")
	ew.sample(auditDroppedName, "", dropped)

	return ew.n, ew.err
}

const (
	auditDroppedName = "goreset_audit_dropped_total"
	auditDroppedHelp = "Audit events dropped because the dispatcher queue was full."
)

// expositionWriter accumulates bytes written and stops at the first error.
type expositionWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (e *expositionWriter) write(s string) {
	if e.err != nil {
		return
	}
	n, err := io.WriteString(e.w, s)
	e.n += int64(n)
	e.err = err
}

func (e *expositionWriter) family(name, help, kind string) {
	e.write("# HELP " + name + " " + escapeHelp(help) + "\n")
	e.write("# TYPE " + name + " " + kind + "\n")
}

func (e *expositionWriter) sample(name, labels string, value uint64) {
	if labels != "" {
		name += "{" + labels + "}"
	}
	e.write(name + " " + strconv.FormatUint(value, 10) + "\n")
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(help string) string {
	return helpEscaper.Replace(help)
}
