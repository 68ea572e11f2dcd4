package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/feeledger/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContext_AddsOnlyPresentFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("bare")

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, obscontext.ActorTypeAPIKey, "key_1")
	WithStudent(WithContext(ctx, base), " S-9 ").Info("enriched")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].Context)

	fields := entries[1].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "api_key", fields["actor_type"])
	assert.Equal(t, "key_1", fields["actor_id"])
	assert.Equal(t, "S-9", fields["student_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestEncoding(t *testing.T) {
	assert.Equal(t, "json", encoding(Config{}))
	assert.Equal(t, "console", encoding(Config{Debug: true}))
	assert.Equal(t, "json", encoding(Config{Debug: true, Format: "JSON"}))
	assert.Equal(t, "console", encoding(Config{Format: "console"}))
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)
}
