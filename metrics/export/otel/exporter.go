package otel

import (
	"context"
	"errors"
	"fmt"

	goReset "github.com/MrEthical07/goReset"
	"github.com/MrEthical07/goReset/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goReset.MetricsSnapshot
	AuditDropped() uint64
}

// series is one engine counter published as an attribute value of a shared
// instrument.
type series struct {
	id      goReset.MetricID
	outcome string
}

type counterGroup struct {
	name   string
	help   string
	series []series
}

// Outcome counters share one instrument per operation; "total" counts every
// call.
var counterGroups = []counterGroup{
	{
		name: "goreset.request",
		help: "Password reset requests by outcome.",
		series: []series{
			{goReset.MetricResetRequest, "total"},
			{goReset.MetricResetRequestRateLimited, "rate_limited"},
			{goReset.MetricResetRequestInvalidEmail, "invalid_email"},
			{goReset.MetricResetRequestUnknownAccount, "unknown_account"},
			{goReset.MetricResetTokenIssued, "issued"},
			{goReset.MetricResetMailFailure, "mail_failure"},
		},
	},
	{
		name: "goreset.redeem",
		help: "Token redemptions by outcome.",
		series: []series{
			{goReset.MetricResetRedeem, "total"},
			{goReset.MetricResetRedeemSuccess, "success"},
			{goReset.MetricResetRedeemInvalid, "invalid"},
			{goReset.MetricResetRedeemConflict, "conflict"},
			{goReset.MetricResetRedeemRateLimited, "rate_limited"},
			{goReset.MetricResetPasswordPolicy, "password_policy"},
		},
	},
	{
		name:   "goreset.backend.unavailable",
		help:   "Failed calls to a store, limiter or hasher.",
		series: []series{{goReset.MetricBackendUnavailable, ""}},
	},
}

var latencyOps = []series{
	{goReset.MetricRequestLatency, "request"},
	{goReset.MetricRedeemLatency, "redeem"},
}

type boundCounter struct {
	id         goReset.MetricID
	instrument metric.Int64ObservableCounter
	attrs      metric.MeasurementOption
}

type boundBucket struct {
	id    goReset.MetricID
	index int
	attrs metric.MeasurementOption
}

type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	counters     []boundCounter
	buckets      metric.Int64ObservableGauge
	bucketSeries []boundBucket
	count        metric.Int64ObservableGauge
	countSeries  []boundBucket
	auditDropped metric.Int64ObservableCounter
}

func NewOTelExporter(meter metric.Meter, engine *goReset.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers the instruments on meter and a single
// callback reading source. Close unregisters it.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, g := range counterGroups {
		ins, err := meter.Int64ObservableCounter(g.name, metric.WithDescription(g.help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", g.name, err)
		}
		observables = append(observables, ins)
		for _, s := range g.series {
			var attrs attribute.Set
			if s.outcome != "" {
				attrs = attribute.NewSet(attribute.String("outcome", s.outcome))
			}
			e.counters = append(e.counters, boundCounter{id: s.id, instrument: ins, attrs: metric.WithAttributeSet(attrs)})
		}
	}

	var err error
	e.buckets, err = meter.Int64ObservableGauge("goreset.latency.bucket",
		metric.WithDescription("Cumulative latency bucket counts; le is the upper bound in seconds."))
	if err != nil {
		return nil, fmt.Errorf("create latency bucket gauge: %w", err)
	}
	e.count, err = meter.Int64ObservableGauge("goreset.latency.count",
		metric.WithDescription("Latency samples recorded."))
	if err != nil {
		return nil, fmt.Errorf("create latency count gauge: %w", err)
	}
	for _, op := range latencyOps {
		for i, le := range internaldefs.HistogramBounds {
			e.bucketSeries = append(e.bucketSeries, boundBucket{
				id:    op.id,
				index: i,
				attrs: metric.WithAttributeSet(attribute.NewSet(
					attribute.String("op", op.outcome),
					attribute.String("le", le),
				)),
			})
		}
		e.countSeries = append(e.countSeries, boundBucket{
			id:    op.id,
			attrs: metric.WithAttributeSet(attribute.NewSet(attribute.String("op", op.outcome))),
		})
	}
	observables = append(observables, e.buckets, e.count)

	e.auditDropped, err = meter.Int64ObservableCounter("goreset.audit.dropped",
		metric.WithDescription("Audit events dropped because the dispatcher queue was full."))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]), c.attrs)
	}

	cumulative := make(map[goReset.MetricID][8]uint64, len(latencyOps))
	for _, op := range latencyOps {
		cumulative[op.id] = internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[op.id]))
	}
	for _, b := range e.bucketSeries {
		o.ObserveInt64(e.buckets, int64(cumulative[b.id][b.index]), b.attrs)
	}
	for _, c := range e.countSeries {
		buckets := cumulative[c.id]
		o.ObserveInt64(e.count, int64(buckets[len(buckets)-1]), c.attrs)
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
