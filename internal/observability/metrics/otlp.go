package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 15 * time.Second

// ExportConfig configures the OTLP push of the seat instruments. Prometheus
// scraping is unaffected by it.
type ExportConfig struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
}

// NewMeterProvider returns a periodic OTLP meter provider, or a noop one when
// export is disabled.
func NewMeterProvider(lc fx.Lifecycle, cfg ExportConfig, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newMetricExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down meter provider")
			return provider.Shutdown(ctx)
		},
	})
	log.Info("metric export initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

func newMetricExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

type seatInstruments struct {
	reconciles  metric.Int64Counter
	seatChanges metric.Int64Histogram
}

// BindMeter mirrors the seat reconciliation counters onto an OTel meter.
func (m *Metrics) BindMeter(provider metric.MeterProvider, serviceName string) error {
	if m == nil || provider == nil {
		return nil
	}
	if serviceName = strings.TrimSpace(serviceName); serviceName == "" {
		serviceName = "seatkeeper"
	}
	meter := provider.Meter(serviceName)

	reconciles, err := meter.Int64Counter("seatkeeper.seat.reconciliations",
		metric.WithDescription("Seat reconciliations by trigger and outcome."))
	if err != nil {
		return err
	}
	seatChanges, err := meter.Int64Histogram("seatkeeper.seat.changes",
		metric.WithDescription("Absolute seat change applied per update."))
	if err != nil {
		return err
	}
	m.otel = &seatInstruments{reconciles: reconciles, seatChanges: seatChanges}
	return nil
}

func (m *Metrics) exportReconciliation(trigger, outcome string) {
	if m.otel == nil {
		return
	}
	m.otel.reconciles.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("outcome", outcome),
	))
}

// ObserveSeatChange records the seat delta of a successful processor update.
func (m *Metrics) ObserveSeatChange(previous, updated int64) {
	if m == nil || m.otel == nil {
		return
	}
	delta := updated - previous
	if delta < 0 {
		delta = -delta
	}
	m.otel.seatChanges.Record(context.Background(), delta)
}
