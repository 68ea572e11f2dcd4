package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributes(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/fees"),
		attribute.String("cheque_no", "000123"),
		attribute.String("student_id", ""),
		attribute.Int("http.status_code", 201),
	)
	assert.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
	assert.Equal(t, attribute.Key("http.status_code"), attrs[1].Key)
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))

	err := SafeError(errors.New("insert failed\nINSERT INTO fee_receipts VALUES ('x')"))
	assert.EqualError(t, err, "insert failed")

	long := SafeError(errors.New(strings.Repeat("a", 300)))
	assert.Len(t, long.Error(), 200)
}
