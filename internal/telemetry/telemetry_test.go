package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shaiso/Batchflow/internal/domain"
	"github.com/shaiso/Batchflow/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	id := uuid.New()

	logger := WithJob(WithWorkflowID(NewLogger(&buf, "INFO", "json"), id), "extract")
	logger.Debug("hidden")
	logger.Info("job dispatched")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "job dispatched", entry["msg"])
	assert.Equal(t, id.String(), entry["workflow_id"])
	assert.Equal(t, "extract", entry["job"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "debug", "text").Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, slog.Default(), FromContext(ctx))

	logger := NewLogger(&bytes.Buffer{}, "INFO", "json")
	assert.Equal(t, logger, FromContext(WithLogger(ctx, logger)))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	def, err := engine.NewJobDefinition("a").Build()
	require.NoError(t, err)
	wf, err := engine.NewBuilder().Listener(m.Listener()).Job(def).Build()
	require.NoError(t, err)

	e := engine.NewExecution(wf)
	ctx := context.Background()
	_, err = e.Apply(ctx, "a", domain.JobStatusStarted, 1)
	require.NoError(t, err)
	_, err = e.Apply(ctx, "a", domain.JobStatusCompleted, 1)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobTransitions.WithLabelValues("STARTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobTransitions.WithLabelValues("COMPLETED")))

	m.WorkflowFinished(domain.WorkflowStatusCompleted)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkflowsFinished.WithLabelValues("COMPLETED")))

	count, err := testutil.GatherAndCount(reg, "batchflow_job_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
