package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := initTracer(context.Background(), "apkforge-test", true, &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "build.run")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "build.run")
	assert.Contains(t, buf.String(), "apkforge-test")
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "apkforge-test", false)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
