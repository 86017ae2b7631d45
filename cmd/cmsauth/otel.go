package main

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/cmsauth"
	otelexport "github.com/MrEthical07/cmsauth/metrics/export/otel"
)

// logExporter is an sdkmetric.Exporter that writes each int64 data point as
// one log line.
type logExporter struct {
	log logr.Logger
}

func (logExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (logExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e logExporter) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			var points []metricdata.DataPoint[int64]
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				points = data.DataPoints
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			default:
				continue
			}
			for _, dp := range points {
				e.log.Info("metric", "name", m.Name,
					"attributes", dp.Attributes.Encoded(attribute.DefaultEncoder()),
					"value", dp.Value)
			}
		}
	}
	return nil
}

func (logExporter) ForceFlush(context.Context) error { return nil }
func (logExporter) Shutdown(context.Context) error { return nil }

// startOTel publishes the engine counters through a meter provider whose
// periodic reader logs them every interval. The returned stop function flushes
// one last collection.
func startOTel(engine *cmsauth.Engine, interval time.Duration, log logr.Logger) (func(context.Context) error, error) {
	if interval <= 0 {
		interval = time.Minute
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(logExporter{log: log}, sdkmetric.WithInterval(interval)),
	))
	exp, err := otelexport.New(provider.Meter("github.com/MrEthical07/cmsauth"), engine)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return func(ctx context.Context) error {
		err := provider.Shutdown(ctx)
		_ = exp.Close()
		return err
	}, nil
}
