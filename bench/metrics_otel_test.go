package bench

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) (int64, []metricdata.DataPoint[int64]) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total, sum.DataPoints
		}
	}
	return 0, nil
}

func TestOTelMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	hook, err := NewOTelMetrics(OTelMetricsOptions{MeterProvider: provider})
	if err != nil {
		t.Fatalf("NewOTelMetrics failed: %v", err)
	}

	attrs := testRunAttrs()
	hook.RunCompleted(attrs)
	hook.RunCompleted(attrs)
	hook.RunFailed(attrs)
	hook.BenchmarkCompleted(attrs)
	hook.InterruptReceived(map[string]string{labelChannel: "1", labelSegment: "1"})

	if got, _ := collectSum(t, reader, "rdmabench.runs.completed"); got != 2 {
		t.Fatalf("unexpected completed count: %d", got)
	}
}

func TestOTelMetricsAttributes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	hook, err := NewOTelMetrics(OTelMetricsOptions{MeterProvider: provider})
	if err != nil {
		t.Fatalf("NewOTelMetrics failed: %v", err)
	}

	hook.RunCompleted(map[string]string{
		labelMode:    "dma-pull",
		labelDevice:  "gpu0",
		labelSegment: "4",
	})

	_, points := collectSum(t, reader, "rdmabench.runs.completed")
	if len(points) != 1 {
		t.Fatalf("unexpected data point count: %d", len(points))
	}
	for _, want := range []attribute.KeyValue{
		attribute.String(labelMode, "dma-pull"),
		attribute.String(labelDevice, "gpu0"),
		attribute.String(labelSegment, "4"),
	} {
		if v, ok := points[0].Attributes.Value(want.Key); !ok || v != want.Value {
			t.Fatalf("missing attribute %v", want)
		}
	}
}

func TestOTelMetricsVerifyOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	hook, err := NewOTelMetrics(OTelMetricsOptions{MeterProvider: provider})
	if err != nil {
		t.Fatalf("NewOTelMetrics failed: %v", err)
	}

	attrs := map[string]string{labelDevice: "host", labelSegment: "1"}
	hook.VerifyChecked(true, attrs)
	hook.VerifyChecked(false, attrs)

	total, points := collectSum(t, reader, "rdmabench.verify.checks")
	if total != 2 {
		t.Fatalf("unexpected check count: %d", total)
	}
	// The outcome lands as a separate attribute, so the two checks must not
	// collapse into one series.
	if len(points) != 2 {
		t.Fatalf("unexpected data point count: %d", len(points))
	}
	seen := map[bool]bool{}
	for _, dp := range points {
		v, ok := dp.Attributes.Value("matched")
		if !ok {
			t.Fatal("missing matched attribute")
		}
		seen[v.AsBool()] = true
	}
	if !seen[true] || !seen[false] {
		t.Fatalf("expected both outcomes, got %v", seen)
	}
}
