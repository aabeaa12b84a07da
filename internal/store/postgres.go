package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DeafMist/nse-radar/internal/models"
)

// Postgres is the production backend.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres parses dsn, applies password when set and opens a pool.
// viaBouncer switches to the simple protocol for transaction poolers.
func OpenPostgres(ctx context.Context, dsn, password string, maxConns int, viaBouncer bool) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if password != "" {
		cfg.ConnConfig.Password = password
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = int32(maxConns)
	if viaBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the tables when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

const pgUpsertSQL = `INSERT INTO equities_data (` + announcementColumns + `, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
` + conflictUpdate

// UpsertAnnouncements writes the batch in one transaction, updating rows that
// collide on the natural key. It returns the number of records submitted.
func (p *Postgres) UpsertAnnouncements(ctx context.Context, records []models.AnnouncementRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, persistenceError("begin upsert", err)
	}
	// Rollback after Commit is a no-op returning ErrTxClosed.
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	rows := collapse(records)
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(pgUpsertSQL,
			r.Symbol, r.CompanyName, r.Subject, r.Details,
			utcPtr(r.BroadcastTime), utcPtr(r.ReceiptTime), utcPtr(r.DisseminationTime),
			r.DifferenceSeconds, r.AttachmentURL, r.FileSize, now,
		)
	}

	br := tx.SendBatch(ctx, b)
	for range rows {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, persistenceError("upsert announcements", err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, persistenceError("upsert announcements", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, persistenceError("commit upsert", err)
	}
	return len(records), nil
}

// ListAnnouncements returns a page ordered by broadcast time, newest first.
func (p *Postgres) ListAnnouncements(ctx context.Context, offset, limit int) ([]models.AnnouncementRecord, int64, error) {
	var total int64
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM equities_data`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}

	rows, err := p.pool.Query(ctx, `SELECT `+announcementColumns+` FROM equities_data
		ORDER BY "BROADCAST_DATE_TIME" DESC OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}
	defer rows.Close()

	var out []models.AnnouncementRecord
	for rows.Next() {
		var r models.AnnouncementRecord
		if err := rows.Scan(&r.Symbol, &r.CompanyName, &r.Subject, &r.Details,
			&r.BroadcastTime, &r.ReceiptTime, &r.DisseminationTime,
			&r.DifferenceSeconds, &r.AttachmentURL, &r.FileSize); err != nil {
			return nil, 0, fmt.Errorf("scan announcement: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}
	return out, total, nil
}

// InsertLog creates a download_logs row.
func (p *Postgres) InsertLog(ctx context.Context, e models.RunLogEntry) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO download_logs (id, status, message, records_added, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, string(e.Status), e.Message, e.RecordsAdded, e.CreatedAt.UTC(), utcPtr(e.UpdatedAt))
	return persistenceError("insert log", err)
}

// UpdateLog mutates an existing download_logs row by id.
func (p *Postgres) UpdateLog(ctx context.Context, u models.LogUpdate) error {
	tag, err := p.pool.Exec(ctx, `UPDATE download_logs
		SET status = $2, message = $3, records_added = $4, updated_at = $5
		WHERE id = $1`,
		u.ID, string(u.Status), u.Message, u.RecordsAdded, u.UpdatedAt.UTC())
	if err != nil {
		return persistenceError("update log", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update log %s: %w", u.ID, ErrLogNotFound)
	}
	return nil
}

// ListLogs returns log rows newest first. limit <= 0 returns all rows.
func (p *Postgres) ListLogs(ctx context.Context, limit int) ([]models.RunLogEntry, error) {
	query := `SELECT id::text, status, message, records_added, created_at, updated_at
		FROM download_logs ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []models.RunLogEntry
	for rows.Next() {
		var e models.RunLogEntry
		var status string
		if err := rows.Scan(&e.ID, &status, &e.Message, &e.RecordsAdded, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Status = models.Status(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return out, nil
}

// Stats counts stored announcements overall and since the given instants.
func (p *Postgres) Stats(ctx context.Context, todayStart, weekStart time.Time) (models.Stats, error) {
	var s models.Stats
	err := p.pool.QueryRow(ctx, `SELECT
			count(*),
			count(*) FILTER (WHERE "BROADCAST_DATE_TIME" >= $1),
			count(*) FILTER (WHERE "BROADCAST_DATE_TIME" >= $2),
			max("BROADCAST_DATE_TIME")
		FROM equities_data`, todayStart.UTC(), weekStart.UTC()).
		Scan(&s.TotalRecords, &s.NewEntriesToday, &s.NewEntriesThisWeek, &s.LastUpdated)
	if err != nil {
		return models.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return s, nil
}
