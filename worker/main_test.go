package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/nse-radar/internal/config"
	"github.com/DeafMist/nse-radar/internal/models"
	"github.com/DeafMist/nse-radar/internal/pipeline"
)

type deadlineRunner struct {
	deadline time.Time
	ok       bool
}

func (d *deadlineRunner) Run(ctx context.Context) pipeline.Result {
	d.deadline, d.ok = ctx.Deadline()
	return pipeline.Result{Status: models.StatusSuccess}
}

func TestWithTimeoutBoundsRun(t *testing.T) {
	inner := &deadlineRunner{}
	res := withTimeout(inner, time.Minute).Run(context.Background())
	require.Equal(t, models.StatusSuccess, res.Status)
	require.True(t, inner.ok)
	require.WithinDuration(t, time.Now().Add(time.Minute), inner.deadline, 5*time.Second)

	inner = &deadlineRunner{}
	withTimeout(inner, 0).Run(context.Background())
	require.False(t, inner.ok)
}

func TestBuildSinksSkipsUnconfigured(t *testing.T) {
	cfg := &config.Worker{DedupeCapacity: 10, DedupeTTL: time.Hour}
	sinks, closers := buildSinks(context.Background(), cfg, nil, nil)
	require.Empty(t, sinks)
	require.Empty(t, closers)
	require.Empty(t, pipelineOptions(cfg, sinks, nil))
}

func TestBuildSinksKafka(t *testing.T) {
	cfg := &config.Worker{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "nse_announcements", DedupeCapacity: 10, DedupeTTL: time.Hour}
	sinks, closers := buildSinks(context.Background(), cfg, nil, nil)
	require.Len(t, sinks, 1)
	require.Equal(t, "kafka", sinks[0].Name())
	require.Len(t, closers, 1)
	require.Len(t, pipelineOptions(cfg, sinks, nil), 2)
	for _, c := range closers {
		require.NoError(t, c.Close())
	}
}

func TestPipelineOptionsAddsAlerter(t *testing.T) {
	cfg := &config.Worker{SMTPServer: "smtp.test", SMTPPort: 587, AlertTo: []string{"ops@test"}}
	require.Len(t, pipelineOptions(cfg, nil, nil), 1)
}

func TestStoreOptions(t *testing.T) {
	opts := storeOptions(config.Common{StoreDriver: "sqlite", SQLitePath: "/tmp/x.db", DatabaseMaxConns: 3})
	require.Equal(t, "sqlite", opts.Driver)
	require.Equal(t, "/tmp/x.db", opts.SQLitePath)
	require.Equal(t, 3, opts.MaxConns)
}
