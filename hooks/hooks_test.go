package hooks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-store/core"
	"github.com/Skryldev/image-store/hooks"
)

// ── Logging ───────────────────────────────────────────────────────────────────

func TestNewSlog(t *testing.T) {
	var buf bytes.Buffer
	log := hooks.NewSlog(&buf, "warn", "json")
	log.Info("dropped")
	log.Warn("kept", "id", "ab01|png")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "ab01|png", entry["id"])
	_, err := time.Parse(time.RFC3339, entry["time"].(string))
	assert.NoError(t, err)

	buf.Reset()
	hooks.NewSlog(&buf, "debug", "text").Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, hooks.ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, hooks.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, hooks.ParseLevel("verbose"))
}

func TestLoggingHook(t *testing.T) {
	var buf bytes.Buffer
	h := hooks.NewLoggingHook(hooks.NewSlogLogger(hooks.NewSlog(&buf, "debug", "text")))
	img := &core.ImageData{Format: core.FormatPNG, Meta: core.Metadata{Width: 4, Height: 2}}

	h.BeforeStep(context.Background(), "scale", img)
	h.AfterStep(context.Background(), "scale", img, time.Millisecond, nil)
	h.AfterStep(context.Background(), "encode", nil, time.Millisecond, errors.New("disk full"))

	out := buf.String()
	assert.Contains(t, out, "pipeline.step.start")
	assert.Contains(t, out, "pipeline.step.done")
	assert.Contains(t, out, `output="4x2 png 0B"`)
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `error="disk full"`)
}

// ── Metrics ───────────────────────────────────────────────────────────────────

func TestMetricsHook(t *testing.T) {
	m := hooks.NewInMemoryMetrics()
	h := hooks.NewMetricsHook(m)
	h.AfterStep(context.Background(), "decode", nil, 3*time.Millisecond, nil)
	h.AfterStep(context.Background(), "decode", nil, 2*time.Millisecond, errors.New("bad"))

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.OpCalls["step.decode"])
	assert.EqualValues(t, 5, snap.OpDurationsMs["step.decode"])
	assert.EqualValues(t, 1, snap.OpErrors["step.decode"])
}

func TestInMemoryMetrics_SnapshotIsACopy(t *testing.T) {
	m := hooks.NewInMemoryMetrics()
	m.RecordOperation("ingest", time.Millisecond)
	snap := m.Snapshot()
	m.RecordOperation("ingest", time.Millisecond)

	assert.EqualValues(t, 1, snap.OpCalls["ingest"])
	assert.EqualValues(t, 2, m.Snapshot().OpCalls["ingest"])
}

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				out[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				out[mf.GetName()+"_count"] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := hooks.MustNewPrometheusMetrics(reg)

	m.RecordOperation("fetch_variant", 10*time.Millisecond)
	m.RecordOperation("fetch_variant", 20*time.Millisecond)
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()
	m.RecordThroughput(1024)
	m.RecordThroughput(-5) // ignored
	m.RecordError("ingest", "ingestion")

	got := gather(t, reg)
	assert.Equal(t, 2.0, got["imagestore_operation_duration_seconds_count"])
	assert.Equal(t, 1.0, got["imagestore_variant_cache_hits_total"])
	assert.Equal(t, 2.0, got["imagestore_variant_cache_misses_total"])
	assert.Equal(t, 1024.0, got["imagestore_written_bytes_total"])
	assert.Equal(t, 1.0, got["imagestore_operation_errors_total"])
}

func TestPrometheusMetrics_ReRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := hooks.MustNewPrometheusMetrics(reg)
	b := hooks.MustNewPrometheusMetrics(reg)

	a.RecordCacheHit()
	b.RecordCacheHit()
	assert.Equal(t, 2.0, gather(t, reg)["imagestore_variant_cache_hits_total"])
}

func TestMulti(t *testing.T) {
	a, b := hooks.NewInMemoryMetrics(), hooks.NewInMemoryMetrics()
	m := hooks.Multi{a, b}
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordThroughput(7)
	m.RecordOperation("delete", time.Millisecond)
	m.RecordError("delete", "deletion")

	for _, c := range []*hooks.InMemoryMetrics{a, b} {
		snap := c.Snapshot()
		assert.EqualValues(t, 1, snap.CacheHits)
		assert.EqualValues(t, 1, snap.CacheMisses)
		assert.EqualValues(t, 7, snap.TotalThroughputB)
		assert.EqualValues(t, 1, snap.OpCalls["delete"])
		assert.EqualValues(t, 1, snap.OpErrors["delete"])
	}
}
