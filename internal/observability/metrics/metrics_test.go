package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("payment_mode", "cash"),
		attribute.String("student_id", "S-1"),
		attribute.String("receipt_no", "RCPT-000001"),
		attribute.String("operation", "collect"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("payment_mode"), attrs[0].Key)
	assert.Equal(t, attribute.Key("operation"), attrs[1].Key)
}

func TestMetricsRecordsCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "feeledger-test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordReceiptCollected(ctx, "cash", "institute")
	m.RecordReceiptCollected(ctx, "cash", "institute")
	m.RecordOverpaymentRejected(ctx, "collect")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, md := range scope.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[md.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), totals["receipts_collected_total"])
	assert.Equal(t, int64(1), totals["overpayment_rejected_total"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordReceiptCollected(context.Background(), "cash", "institute")
		m.RecordReceiptDeleted(context.Background(), "cash")
		m.RecordIdempotentReplay(context.Background())
	})
}
