package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/DeafMist/nse-radar/internal/models"
)

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite is the local backend. Use ":memory:" for a throwaway database.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (and creates) the database file at path.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every pooled connection to :memory: would be a separate database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Ping checks the connection.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Migrate creates the tables when missing.
func (s *SQLite) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

const sqliteUpsertSQL = `INSERT INTO equities_data (` + announcementColumns + `, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
` + conflictUpdate

// UpsertAnnouncements mirrors Postgres.UpsertAnnouncements.
func (s *SQLite) UpsertAnnouncements(ctx context.Context, records []models.AnnouncementRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, persistenceError("begin upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertSQL)
	if err != nil {
		return 0, persistenceError("prepare upsert", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for _, r := range collapse(records) {
		if _, err := stmt.ExecContext(ctx,
			r.Symbol, nullString(r.CompanyName), r.Subject, nullString(r.Details),
			nullTime(r.BroadcastTime), nullTime(r.ReceiptTime), nullTime(r.DisseminationTime),
			nullInt(r.DifferenceSeconds), nullString(r.AttachmentURL), nullString(r.FileSize),
			now, now,
		); err != nil {
			return 0, persistenceError("upsert announcements", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, persistenceError("commit upsert", err)
	}
	return len(records), nil
}

// ListAnnouncements returns a page ordered by broadcast time, newest first.
func (s *SQLite) ListAnnouncements(ctx context.Context, offset, limit int) ([]models.AnnouncementRecord, int64, error) {
	var total int64
	if err := s.conn.QueryRowContext(ctx, `SELECT count(*) FROM equities_data`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, `SELECT `+announcementColumns+` FROM equities_data
		ORDER BY "BROADCAST_DATE_TIME" DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}
	defer rows.Close()

	var out []models.AnnouncementRecord
	for rows.Next() {
		var (
			r                                  models.AnnouncementRecord
			company, details, attachment, size sql.NullString
			broadcast, receipt, dissemination  sql.NullString
			diff                               sql.NullInt64
		)
		if err := rows.Scan(&r.Symbol, &company, &r.Subject, &details,
			&broadcast, &receipt, &dissemination, &diff, &attachment, &size); err != nil {
			return nil, 0, fmt.Errorf("scan announcement: %w", err)
		}
		r.CompanyName = stringPtr(company)
		r.Details = stringPtr(details)
		r.AttachmentURL = stringPtr(attachment)
		r.FileSize = stringPtr(size)
		if diff.Valid {
			v := diff.Int64
			r.DifferenceSeconds = &v
		}
		if r.BroadcastTime, err = parseTime(broadcast); err != nil {
			return nil, 0, err
		}
		if r.ReceiptTime, err = parseTime(receipt); err != nil {
			return nil, 0, err
		}
		if r.DisseminationTime, err = parseTime(dissemination); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}
	return out, total, nil
}

// InsertLog creates a download_logs row.
func (s *SQLite) InsertLog(ctx context.Context, e models.RunLogEntry) error {
	_, err := s.conn.ExecContext(ctx, `INSERT INTO download_logs (id, status, message, records_added, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Status), e.Message, e.RecordsAdded, formatTime(e.CreatedAt), nullTime(e.UpdatedAt))
	return persistenceError("insert log", err)
}

// UpdateLog mutates an existing download_logs row by id.
func (s *SQLite) UpdateLog(ctx context.Context, u models.LogUpdate) error {
	res, err := s.conn.ExecContext(ctx, `UPDATE download_logs
		SET status = ?, message = ?, records_added = ?, updated_at = ?
		WHERE id = ?`,
		string(u.Status), u.Message, u.RecordsAdded, formatTime(u.UpdatedAt), u.ID)
	if err != nil {
		return persistenceError("update log", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistenceError("update log", err)
	}
	if n == 0 {
		return fmt.Errorf("update log %s: %w", u.ID, ErrLogNotFound)
	}
	return nil
}

// ListLogs returns log rows newest first. limit <= 0 returns all rows.
func (s *SQLite) ListLogs(ctx context.Context, limit int) ([]models.RunLogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT id, status, message, records_added, created_at, updated_at
		FROM download_logs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []models.RunLogEntry
	for rows.Next() {
		var (
			e         models.RunLogEntry
			status    string
			createdAt string
			updatedAt sql.NullString
		)
		if err := rows.Scan(&e.ID, &status, &e.Message, &e.RecordsAdded, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Status = models.Status(status)
		created, err := time.Parse(sqliteTimeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		e.CreatedAt = created
		if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return out, nil
}

// Stats counts stored announcements overall and since the given instants.
func (s *SQLite) Stats(ctx context.Context, todayStart, weekStart time.Time) (models.Stats, error) {
	var (
		st     models.Stats
		latest sql.NullString
	)
	err := s.conn.QueryRowContext(ctx, `SELECT
			count(*),
			count(CASE WHEN "BROADCAST_DATE_TIME" >= ? THEN 1 END),
			count(CASE WHEN "BROADCAST_DATE_TIME" >= ? THEN 1 END),
			max("BROADCAST_DATE_TIME")
		FROM equities_data`, formatTime(todayStart), formatTime(weekStart)).
		Scan(&st.TotalRecords, &st.NewEntriesToday, &st.NewEntriesThisWeek, &latest)
	if err != nil {
		return models.Stats{}, fmt.Errorf("stats: %w", err)
	}
	if st.LastUpdated, err = parseTime(latest); err != nil {
		return models.Stats{}, err
	}
	return st, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := time.Parse(sqliteTimeLayout, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", v.String, err)
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
