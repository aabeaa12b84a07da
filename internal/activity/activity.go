// Package activity records one download_logs row per pipeline run.
package activity

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/nse-radar/internal/models"
)

// WriteTimeout bounds each row write. Writes run detached from the caller's
// cancellation so a cancelled run still reaches a terminal status.
const WriteTimeout = 5 * time.Second

// Store is the subset of the persistence layer the logger writes to.
type Store interface {
	InsertLog(ctx context.Context, entry models.RunLogEntry) error
	UpdateLog(ctx context.Context, update models.LogUpdate) error
}

// Logger writes run log rows. Store failures go to the slog fallback and are
// never returned.
type Logger struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

// Option customizes a Logger.
type Option func(*Logger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithIDs overrides uuid generation.
func WithIDs(newID func() string) Option {
	return func(l *Logger) { l.newID = newID }
}

// New returns a Logger backed by store.
func New(store Store, logger *slog.Logger, opts ...Option) *Logger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &Logger{
		store: store,
		log:   logger.With("component", "activity"),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run is the handle for one log row. Its ID is empty when Begin could not
// insert the row.
type Run struct {
	id     string
	logger *Logger
	done   atomic.Bool
}

// ID returns the row id, or "" for an untracked run.
func (r *Run) ID() string {
	return r.id
}

// Tracked reports whether a row exists for this run.
func (r *Run) Tracked() bool {
	return r.id != ""
}

// Begin inserts an info row with zero records.
func (l *Logger) Begin(ctx context.Context, message string) *Run {
	entry := models.RunLogEntry{
		ID:        l.newID(),
		Status:    models.StatusInfo,
		Message:   message,
		CreatedAt: l.now(),
	}
	l.log.Info(message, slog.String("log_id", entry.ID))

	wctx, cancel := detach(ctx)
	defer cancel()
	if err := l.store.InsertLog(wctx, entry); err != nil {
		l.log.Error("create run log entry, continuing untracked",
			slog.Any("err", err),
			slog.String("message", message),
		)
		return &Run{logger: l}
	}
	return &Run{id: entry.ID, logger: l}
}

// Complete moves the row to a terminal status. Only the first call per run
// takes effect.
func (r *Run) Complete(ctx context.Context, status models.Status, message string, recordsAdded int) {
	l := r.logger
	if !r.done.CompareAndSwap(false, true) {
		l.log.Warn("run log already completed, ignoring",
			slog.String("log_id", r.id),
			slog.String("status", string(status)),
			slog.String("message", message),
		)
		return
	}
	if recordsAdded < 0 {
		recordsAdded = 0
	}

	l.emit(status, message, slog.String("log_id", r.id), slog.Int("records_added", recordsAdded))
	if !r.Tracked() {
		return
	}

	wctx, cancel := detach(ctx)
	defer cancel()
	err := l.store.UpdateLog(wctx, models.LogUpdate{
		ID:           r.id,
		Status:       status,
		Message:      message,
		RecordsAdded: recordsAdded,
		UpdatedAt:    l.now(),
	})
	if err != nil {
		l.log.Error("update run log entry",
			slog.Any("err", err),
			slog.String("log_id", r.id),
			slog.String("status", string(status)),
		)
	}
}

// Record inserts a single row that is already terminal, e.g. a skipped tick.
func (l *Logger) Record(ctx context.Context, status models.Status, message string, recordsAdded int) string {
	now := l.now()
	entry := models.RunLogEntry{
		ID:           l.newID(),
		Status:       status,
		Message:      message,
		RecordsAdded: recordsAdded,
		CreatedAt:    now,
		UpdatedAt:    &now,
	}
	l.emit(status, message, slog.String("log_id", entry.ID))

	wctx, cancel := detach(ctx)
	defer cancel()
	if err := l.store.InsertLog(wctx, entry); err != nil {
		l.log.Error("record run log entry", slog.Any("err", err), slog.String("message", message))
		return ""
	}
	return entry.ID
}

func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), WriteTimeout)
}

func (l *Logger) emit(status models.Status, message string, attrs ...any) {
	switch status {
	case models.StatusError:
		l.log.Error(message, attrs...)
	case models.StatusWarning:
		l.log.Warn(message, attrs...)
	default:
		l.log.Info(message, attrs...)
	}
}
