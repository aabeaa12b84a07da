// Package scheduler runs the pipeline at startup and then on a fixed
// interval, never more than one run at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/DeafMist/nse-radar/internal/activity"
	"github.com/DeafMist/nse-radar/internal/models"
	"github.com/DeafMist/nse-radar/internal/pipeline"
)

// MsgSkipped is logged when a tick finds the previous run still going.
const MsgSkipped = "Previous scrape still running, skipping this run"

// Runner is one pipeline pass.
type Runner interface {
	Run(ctx context.Context) pipeline.Result
}

// SkipRecorder writes the warning row for a skipped tick.
type SkipRecorder interface {
	Record(ctx context.Context, status models.Status, message string, recordsAdded int) string
}

type Scheduler struct {
	runner   Runner
	skips    SkipRecorder
	interval time.Duration
	cron     *cron.Cron
	log      *slog.Logger

	running atomic.Bool
	ticks   sync.WaitGroup
	started atomic.Bool
}

// New returns a stopped scheduler.
func New(runner Runner, skips SkipRecorder, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	log := logger.With("component", "scheduler")
	cl := cronLogger{log: log}
	return &Scheduler{
		runner:   runner,
		skips:    skips,
		interval: interval,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		log:      log,
	}
}

// TryAcquire claims the single run slot.
func (s *Scheduler) TryAcquire() bool {
	return s.running.CompareAndSwap(false, true)
}

// Release frees the run slot.
func (s *Scheduler) Release() {
	s.running.Store(false)
}

// Running reports whether a run holds the slot.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Tick runs the pipeline unless a run is already in flight. It reports
// whether the pipeline was invoked, even if it panicked.
func (s *Scheduler) Tick(ctx context.Context) (invoked bool) {
	if !s.TryAcquire() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), activity.WriteTimeout)
		defer cancel()
		s.skips.Record(rctx, models.StatusWarning, MsgSkipped, 0)
		return false
	}
	defer s.Release()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("pipeline run panicked", slog.Any("panic", r))
		}
	}()

	start := time.Now()
	invoked = true
	res := s.runner.Run(ctx)
	s.log.Info("run finished",
		slog.String("status", string(res.Status)),
		slog.Int("records_added", res.RecordsAdded),
		slog.Duration("took", time.Since(start)),
		slog.String("log_id", res.LogID),
	)
	return true
}

// Start fires one tick immediately and then one every interval, measured
// from tick start. Ticks use ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("scheduler already started")
	}
	schedule := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(schedule, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("register %q: %w", schedule, err)
	}

	s.ticks.Add(1)
	go func() {
		defer s.ticks.Done()
		s.Tick(ctx)
	}()
	s.cron.Start()

	s.log.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

// Stop halts future ticks and waits for a running one to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.ticks.Wait()
	s.log.Info("scheduler stopped")
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, slog.Any("err", err))...)
}
