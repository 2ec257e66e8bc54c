package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-booking/internal/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	tel, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "seat-booking"}, "test")
	require.NoError(t, err)

	_, span := tel.Tracer().Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, tel.Shutdown(context.Background()))
}
