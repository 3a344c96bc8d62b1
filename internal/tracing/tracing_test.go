package tracing

import (
	"context"
	"io"
	"testing"

	"chatsync/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestInitialize_Disabled(t *testing.T) {
	m := NewManager(models.TracingConfig{Enabled: false}, newTestLogger())
	require.NoError(t, m.Initialize(context.Background()))
	assert.Nil(t, m.tracerProvider)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestInitialize_StdoutExporter(t *testing.T) {
	cfg := models.TracingConfig{
		Enabled:     true,
		ServiceName: "chatsync-test",
		Environment: "test",
		SampleRate:  1.0,
		UseStdout:   true,
	}
	m := NewManager(cfg, newTestLogger())
	require.NoError(t, m.Initialize(context.Background()))
	require.NotNil(t, m.tracerProvider)

	tracer := m.Tracer("test")
	_, span := tracer.Start(context.Background(), "test-span")
	span.End()

	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestShutdown_WithoutInitialize(t *testing.T) {
	m := NewManager(models.TracingConfig{}, newTestLogger())
	assert.NoError(t, m.Shutdown(context.Background()))
}
