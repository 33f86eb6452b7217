package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.False(t, config.Enabled)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	require.NotNil(t, p.Tracer())
}

func TestNewProviderWithNilConfig(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestTrackOperation_Success(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	attrs := []attribute.KeyValue{attribute.String("route", "upload_get")}
	ctx, finish := p.TrackOperation(context.Background(), "request.upload_get", attrs...)
	require.NotNil(t, ctx)

	finish(nil)
}

func TestTrackOperation_RecordsError(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	_, finish := p.TrackOperation(context.Background(), "request.upload_get")
	require.NotPanics(t, func() { finish(errors.New("boom")) })
}

func TestShutdown_NoopWhenDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}
