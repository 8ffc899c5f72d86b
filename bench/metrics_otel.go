package bench

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsOptions configures NewOTelMetrics.
type OTelMetricsOptions struct {
	MeterProvider          metric.MeterProvider
	Meter                  metric.Meter
	InstrumentationName    string
	InstrumentationVersion string
}

var _ MetricHook = (*OTelMetrics)(nil)

// OTelMetrics implements MetricHook using OpenTelemetry counters.
type OTelMetrics struct {
	meter              metric.Meter
	runsCompleted      metric.Int64Counter
	runsFailed         metric.Int64Counter
	benchmarks         metric.Int64Counter
	verifyChecks       metric.Int64Counter
	interruptsReceived metric.Int64Counter
}

// NewOTelMetrics constructs a MetricHook that emits OpenTelemetry counter
// measurements.
func NewOTelMetrics(opts OTelMetricsOptions) (*OTelMetrics, error) {
	meter := opts.Meter
	if meter == nil {
		provider := opts.MeterProvider
		if provider == nil {
			provider = otel.GetMeterProvider()
		}
		name := opts.InstrumentationName
		if name == "" {
			name = "github.com/enfiskutensykkel/cuda-rdma-bench/bench"
		}
		meter = provider.Meter(name, metric.WithInstrumentationVersion(opts.InstrumentationVersion))
	}

	runsCompleted, err := meter.Int64Counter("rdmabench.runs.completed")
	if err != nil {
		return nil, err
	}
	runsFailed, err := meter.Int64Counter("rdmabench.runs.failed")
	if err != nil {
		return nil, err
	}
	benchmarks, err := meter.Int64Counter("rdmabench.benchmarks")
	if err != nil {
		return nil, err
	}
	verifyChecks, err := meter.Int64Counter("rdmabench.verify.checks")
	if err != nil {
		return nil, err
	}
	interruptsReceived, err := meter.Int64Counter("rdmabench.interrupts.received")
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		meter:              meter,
		runsCompleted:      runsCompleted,
		runsFailed:         runsFailed,
		benchmarks:         benchmarks,
		verifyChecks:       verifyChecks,
		interruptsReceived: interruptsReceived,
	}, nil
}

// RunCompleted records a successful benchmark repetition.
func (o *OTelMetrics) RunCompleted(attrs map[string]string) {
	o.runsCompleted.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// RunFailed records a failed benchmark repetition.
func (o *OTelMetrics) RunFailed(attrs map[string]string) {
	o.runsFailed.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// BenchmarkCompleted records a finished benchmark invocation.
func (o *OTelMetrics) BenchmarkCompleted(attrs map[string]string) {
	o.benchmarks.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// VerifyChecked records one full-buffer comparison with its outcome.
func (o *OTelMetrics) VerifyChecked(matched bool, attrs map[string]string) {
	attributes := append(otelAttrs(attrs), attribute.Bool("matched", matched))
	o.verifyChecks.Add(context.Background(), 1, metric.WithAttributes(attributes...))
}

// InterruptReceived records one validation interrupt delivery.
func (o *OTelMetrics) InterruptReceived(attrs map[string]string) {
	o.interruptsReceived.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

func otelAttrs(attrs map[string]string) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for _, key := range []string{labelMode, labelDevice, labelSegment, labelChannel} {
		if v := attrs[key]; v != "" {
			kvs = append(kvs, attribute.String(key, v))
		}
	}
	return kvs
}
