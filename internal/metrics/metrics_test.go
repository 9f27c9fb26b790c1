package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"edge-analyzer/internal/metrics"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	m.Capture("cam-1", nil)
	m.Capture("cam-1", errors.New("timeout"))
	m.Image("cam-1", "flagged")
	m.Message("reporting", nil)
	m.Sweep(7, 120*time.Millisecond)

	count, err := testutil.GatherAndCount(reg, "edge_captures_total")
	require.NoError(t, err)
	require.Equal(t, 2, count, "ok and failed series")

	count, err = testutil.GatherAndCount(reg, "edge_images_analyzed_total", "edge_messages_sent_total", "edge_scheduler_tick")
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestMetricsDoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.New(reg)
	require.NoError(t, err)

	_, err = metrics.New(reg)
	require.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.Capture("cam", nil)
	m.Image("cam", "safe")
	m.Message("notification", nil)
	m.Sweep(1, time.Second)
}
