package otel

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/cmsauth"
)

type fakeSource struct {
	mu      sync.Mutex
	logins  uint64
	latency []uint64
	dropped uint64
}

func (f *fakeSource) MetricsSnapshot() cmsauth.MetricsSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := cmsauth.MetricsSnapshot{
		Counters: map[cmsauth.MetricID]uint64{
			cmsauth.MetricLoginSuccess:    f.logins,
			cmsauth.MetricLoginLockedOut:  2,
			cmsauth.MetricAuthorizeDenied: 4,
			cmsauth.MetricSessionsSwept:   6,
			cmsauth.MetricCSRFMismatch:    1,
		},
		Histograms: map[cmsauth.MetricID][]uint64{},
	}
	if f.latency != nil {
		snap.Histograms[cmsauth.MetricAuthorizeLatency] = append([]uint64(nil), f.latency...)
	}
	return snap
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// pointValue returns the value of the data point of name carrying key=value,
// or the only point when key is empty.
func pointValue(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			var points []metricdata.DataPoint[int64]
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				points = data.DataPoints
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			default:
				t.Fatalf("%s has unexpected data type %T", name, m.Data)
			}
			for _, dp := range points {
				if key == "" {
					return dp.Value
				}
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
					return dp.Value
				}
			}
		}
	}
	t.Fatalf("no point %s{%s=%q}", name, key, value)
	return 0
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func TestExporterSplitsCountersByAttribute(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{logins: 3, latency: []uint64{1, 0, 2, 0, 0, 0, 0, 1}, dropped: 5}

	exp, err := New(provider.Meter("cmsauth-test"), src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer exp.Close()

	rm := collect(t, reader)
	checks := []struct {
		name, key, value string
		want             int64
	}{
		{"cmsauth.logins", "outcome", "success", 3},
		{"cmsauth.logins", "outcome", "failure", 0},
		{"cmsauth.logins", "outcome", "locked_out", 2},
		{"cmsauth.authorizations", "decision", "denied", 4},
		{"cmsauth.sessions", "event", "swept", 6},
		{"cmsauth.csrf.mismatches", "", "", 1},
		{"cmsauth.audit.dropped", "", "", 5},
		{"cmsauth.authorize.latency.buckets", "le", "0.005", 1},
		{"cmsauth.authorize.latency.buckets", "le", "0.025", 3},
		{"cmsauth.authorize.latency.buckets", "le", "+Inf", 4},
	}
	for _, c := range checks {
		if got := pointValue(t, rm, c.name, c.key, c.value); got != c.want {
			t.Fatalf("%s{%s=%q} = %d, want %d", c.name, c.key, c.value, got, c.want)
		}
	}
}

func TestExporterFollowsSource(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{logins: 1}

	exp, err := New(provider.Meter("cmsauth-test"), src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer exp.Close()

	collect(t, reader)
	src.mu.Lock()
	src.logins = 9
	src.mu.Unlock()

	if got := pointValue(t, collect(t, reader), "cmsauth.logins", "outcome", "success"); got != 9 {
		t.Fatalf("expected 9 after update, got %d", got)
	}
}

func TestNewRejectsNilArguments(t *testing.T) {
	_, provider := newReader()
	if _, err := New(provider.Meter("cmsauth-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := New(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestCloseIsSafe(t *testing.T) {
	_, provider := newReader()
	exp, err := New(provider.Meter("cmsauth-test"), &fakeSource{logins: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := exp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	var nilExp *Exporter
	if err := nilExp.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}
