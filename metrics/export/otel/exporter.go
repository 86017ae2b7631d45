package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/cmsauth"
	"github.com/MrEthical07/cmsauth/metrics/export/internaldefs"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no metrics source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads on each collection. *cmsauth.Engine
// implements it.
type Source interface {
	MetricsSnapshot() cmsauth.MetricsSnapshot
	AuditDropped() uint64
}

// point is one attribute set of an instrument, fed by one engine counter.
type point struct {
	id    cmsauth.MetricID
	attrs metric.ObserveOption
}

type family struct {
	name   string
	desc   string
	points []point
}

func with(key, value string) metric.ObserveOption {
	return metric.WithAttributes(attribute.String(key, value))
}

// families groups the engine counters into a few instruments split by
// attribute, so dashboards can sum an outcome dimension.
var families = []family{
	{
		name: "cmsauth.logins",
		desc: "Login attempts by outcome.",
		points: []point{
			{cmsauth.MetricLoginSuccess, with("outcome", "success")},
			{cmsauth.MetricLoginFailure, with("outcome", "failure")},
			{cmsauth.MetricLoginLockedOut, with("outcome", "locked_out")},
		},
	},
	{
		name: "cmsauth.authorizations",
		desc: "Authorization checks by decision.",
		points: []point{
			{cmsauth.MetricAuthorizeAllowed, with("decision", "allowed")},
			{cmsauth.MetricAuthorizeDenied, with("decision", "denied")},
		},
	},
	{
		name: "cmsauth.sessions",
		desc: "Session lifecycle events.",
		points: []point{
			{cmsauth.MetricSessionCreated, with("event", "created")},
			{cmsauth.MetricSessionDestroyed, with("event", "destroyed")},
			{cmsauth.MetricSessionsSwept, with("event", "swept")},
		},
	},
	{
		name:   "cmsauth.csrf.mismatches",
		desc:   "Requests rejected for a CSRF token mismatch.",
		points: []point{{cmsauth.MetricCSRFMismatch, metric.WithAttributes()}},
	},
	{
		name:   "cmsauth.lockout.store_errors",
		desc:   "Failed login-attempt store operations.",
		points: []point{{cmsauth.MetricLockoutStoreError, metric.WithAttributes()}},
	},
}

// Exporter publishes engine counters as asynchronous OTel instruments.
type Exporter struct {
	source       Source
	registration metric.Registration

	counters     []metric.Int64ObservableCounter
	latency      metric.Int64ObservableGauge
	latencyLE    []metric.ObserveOption
	auditDropped metric.Int64ObservableCounter
}

// New registers the instruments on meter and one callback that reads source.
func New(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, f := range families {
		c, err := meter.Int64ObservableCounter(f.name, metric.WithDescription(f.desc))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", f.name, err)
		}
		e.counters = append(e.counters, c)
		observables = append(observables, c)
	}

	var err error
	e.latency, err = meter.Int64ObservableGauge("cmsauth.authorize.latency.buckets",
		metric.WithDescription("Cumulative authorization latency bucket counts, keyed by upper bound in seconds."))
	if err != nil {
		return nil, fmt.Errorf("create latency gauge: %w", err)
	}
	for _, b := range internaldefs.HistogramUpperBounds {
		e.latencyLE = append(e.latencyLE, with("le", strconv.FormatFloat(b, 'f', -1, 64)))
	}
	e.latencyLE = append(e.latencyLE, with("le", "+Inf"))
	observables = append(observables, e.latency)

	e.auditDropped, err = meter.Int64ObservableCounter("cmsauth.audit.dropped",
		metric.WithDescription("Audit events dropped under dispatcher backpressure."))
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

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for i, f := range families {
		for _, p := range f.points {
			o.ObserveInt64(e.counters[i], int64(snap.Counters[p.id]), p.attrs)
		}
	}

	if raw, ok := snap.Histograms[cmsauth.MetricAuthorizeLatency]; ok {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, le := range e.latencyLE {
			o.ObserveInt64(e.latency, int64(cumulative[i]), le)
		}
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
