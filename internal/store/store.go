// Package store persists announcements and run logs.
//
// Two backends share one contract: Postgres through pgx for production and
// SQLite through modernc.org/sqlite for local runs and tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/DeafMist/nse-radar/internal/models"
)

const (
	AnnouncementsTable = "equities_data"
	LogsTable          = "download_logs"
)

// ErrLogNotFound is returned when an update targets an unknown log id.
var ErrLogNotFound = errors.New("log entry not found")

// Store is implemented by every backend.
type Store interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	UpsertAnnouncements(ctx context.Context, records []models.AnnouncementRecord) (int, error)
	ListAnnouncements(ctx context.Context, offset, limit int) ([]models.AnnouncementRecord, int64, error)
	InsertLog(ctx context.Context, entry models.RunLogEntry) error
	UpdateLog(ctx context.Context, update models.LogUpdate) error
	ListLogs(ctx context.Context, limit int) ([]models.RunLogEntry, error)
	Stats(ctx context.Context, todayStart, weekStart time.Time) (models.Stats, error)
	Close() error
}

// PersistenceError wraps a rejected write with whatever detail the store gave.
type PersistenceError struct {
	Op     string
	Detail string
	Hint   string
	Err    error
}

func (e *PersistenceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	if e.Detail != "" {
		b.WriteString(" (detail: ")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	if e.Hint != "" {
		b.WriteString(" (hint: ")
		b.WriteString(e.Hint)
		b.WriteString(")")
	}
	return b.String()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	pe := &PersistenceError{Op: op, Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		pe.Detail = pgErr.Detail
		pe.Hint = pgErr.Hint
		if pe.Detail == "" && pgErr.ConstraintName != "" {
			pe.Detail = fmt.Sprintf("constraint %s", pgErr.ConstraintName)
		}
	}
	return pe
}

// collapse keeps the last record per natural key, preserving first-seen
// order. A single statement cannot update the same row twice.
func collapse(records []models.AnnouncementRecord) []models.AnnouncementRecord {
	idx := make(map[string]int, len(records))
	out := make([]models.AnnouncementRecord, 0, len(records))
	for _, r := range records {
		k := r.Key()
		if i, ok := idx[k]; ok {
			out[i] = r
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
