package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"
)

func TestBindMeterMirrorsReconciliations(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{}, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	if err := m.BindMeter(provider, "seatkeeper"); err != nil {
		t.Fatalf("bind meter: %v", err)
	}

	m.ObserveReconciliation("member.removed", "updated", time.Millisecond)
	m.ObserveReconciliation("member.removed", "updated", time.Millisecond)
	m.ObserveSeatChange(5, 3)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	found := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, md := range scope.Metrics {
			found[md.Name] = true
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) != 1 || data.DataPoints[0].Value != 2 {
					t.Fatalf("expected one data point of 2 reconciliations, got %+v", data.DataPoints)
				}
			case metricdata.Histogram[int64]:
				if len(data.DataPoints) != 1 || data.DataPoints[0].Sum != 2 {
					t.Fatalf("expected a seat change of 2, got %+v", data.DataPoints)
				}
			}
		}
	}
	if !found["seatkeeper.seat.reconciliations"] || !found["seatkeeper.seat.changes"] {
		t.Fatalf("missing instruments, got %v", found)
	}
}

func TestSeatChangeWithoutMeterIsNoop(t *testing.T) {
	m, err := New(Config{}, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.ObserveSeatChange(1, 4)

	var nilMetrics *Metrics
	nilMetrics.ObserveSeatChange(1, 4)
}

func TestNewMeterProviderDisabled(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	provider, err := NewMeterProvider(lc, ExportConfig{}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new meter provider: %v", err)
	}
	if provider == nil {
		t.Fatal("expected a provider")
	}
}

func TestNewMetricExporterRejectsUnknownProtocol(t *testing.T) {
	if _, err := newMetricExporter("carrier-pigeon", ""); err == nil {
		t.Fatal("expected an error for an unknown protocol")
	}
}
