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

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes ledger-level instruments.
type Metrics struct {
	receiptsCollected   metric.Int64Counter
	receiptsUpdated     metric.Int64Counter
	receiptsDeleted     metric.Int64Counter
	overpaymentRejected metric.Int64Counter
	idempotentReplays   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the ledger metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "feeledger"
	}
	meter := provider.Meter(name)

	receiptsCollected, err := meter.Int64Counter("receipts_collected_total")
	if err != nil {
		return nil, err
	}
	receiptsUpdated, err := meter.Int64Counter("receipts_updated_total")
	if err != nil {
		return nil, err
	}
	receiptsDeleted, err := meter.Int64Counter("receipts_deleted_total")
	if err != nil {
		return nil, err
	}
	overpaymentRejected, err := meter.Int64Counter("overpayment_rejected_total")
	if err != nil {
		return nil, err
	}
	idempotentReplays, err := meter.Int64Counter("receipts_idempotent_replay_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		receiptsCollected:   receiptsCollected,
		receiptsUpdated:     receiptsUpdated,
		receiptsDeleted:     receiptsDeleted,
		overpaymentRejected: overpaymentRejected,
		idempotentReplays:   idempotentReplays,
	}, nil
}

// NewNoop returns instruments bound to a noop provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordReceiptCollected increments collected receipt counts.
func (m *Metrics) RecordReceiptCollected(ctx context.Context, paymentMode, scope string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("payment_mode", strings.TrimSpace(paymentMode)),
		attribute.String("sequence_scope", strings.TrimSpace(scope)),
	)
	m.receiptsCollected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordReceiptUpdated(ctx context.Context, paymentMode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("payment_mode", strings.TrimSpace(paymentMode)))
	m.receiptsUpdated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordReceiptDeleted(ctx context.Context, paymentMode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("payment_mode", strings.TrimSpace(paymentMode)))
	m.receiptsDeleted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOverpaymentRejected counts operations refused by the outstanding check.
func (m *Metrics) RecordOverpaymentRejected(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.overpaymentRejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordIdempotentReplay(ctx context.Context) {
	if m == nil {
		return
	}
	m.idempotentReplays.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"payment_mode":   {},
	"sequence_scope": {},
	"operation":      {},
	"endpoint":       {},
	"status_code":    {},
	"reason":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
