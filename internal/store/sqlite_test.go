package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/nse-radar/internal/models"
	"github.com/DeafMist/nse-radar/internal/store"
)

func openMemory(t *testing.T) *store.SQLite {
	t.Helper()
	db, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func strp(s string) *string { return &s }

func record(symbol, subject string, broadcast time.Time) models.AnnouncementRecord {
	diss := broadcast.Add(2 * time.Second)
	diff := int64(2)
	return models.AnnouncementRecord{
		Symbol:            symbol,
		Subject:           subject,
		BroadcastTime:     &broadcast,
		ReceiptTime:       &broadcast,
		DisseminationTime: &diss,
		DifferenceSeconds: &diff,
		CompanyName:       strp(symbol + " Ltd"),
		AttachmentURL:     strp("http://x/" + symbol + ".pdf"),
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	ts := time.Date(2025, 6, 18, 11, 27, 38, 0, time.UTC)

	batch := []models.AnnouncementRecord{
		record("ABC", "Results", ts),
		record("XYZ", "Board Meeting", ts),
	}

	n, err := db.UpsertAnnouncements(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = db.UpsertAnnouncements(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rows, total, err := db.ListAnnouncements(ctx, 0, 10)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, rows, 2)
}

func TestUpsertUpdatesOnConflict(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	ts := time.Date(2025, 6, 18, 11, 27, 38, 0, time.UTC)

	first := record("ABC", "Results", ts)
	_, err := db.UpsertAnnouncements(ctx, []models.AnnouncementRecord{first})
	require.NoError(t, err)

	second := first
	second.Details = strp("Revised outcome")
	second.FileSize = strp("1.2 MB")
	_, err = db.UpsertAnnouncements(ctx, []models.AnnouncementRecord{second})
	require.NoError(t, err)

	rows, total, err := db.ListAnnouncements(ctx, 0, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "Revised outcome", *rows[0].Details)
	require.Equal(t, "1.2 MB", *rows[0].FileSize)
	require.True(t, ts.Equal(*rows[0].BroadcastTime))
	require.Equal(t, int64(2), *rows[0].DifferenceSeconds)
}

func TestUpsertCollapsesDuplicatesWithinBatch(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	ts := time.Date(2025, 6, 18, 11, 27, 38, 0, time.UTC)

	a := record("ABC", "Results", ts)
	b := a
	b.Details = strp("last wins")

	n, err := db.UpsertAnnouncements(ctx, []models.AnnouncementRecord{a, b})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rows, total, err := db.ListAnnouncements(ctx, 0, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "last wins", *rows[0].Details)
}

func TestUpsertEmptyBatchIsNoop(t *testing.T) {
	n, err := openMemory(t).UpsertAnnouncements(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestUpsertRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	ts := time.Date(2025, 6, 18, 11, 27, 38, 0, time.UTC)

	good := record("ABC", "Results", ts)
	bad := record("XYZ", "No time", ts)
	bad.BroadcastTime = nil

	_, err := db.UpsertAnnouncements(ctx, []models.AnnouncementRecord{good, bad})
	require.Error(t, err)

	var pe *store.PersistenceError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "upsert announcements", pe.Op)

	_, total, err := db.ListAnnouncements(ctx, 0, 10)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestLogLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	created := time.Date(2025, 6, 18, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.InsertLog(ctx, models.RunLogEntry{
		ID: "a", Status: models.StatusInfo, Message: "Starting", CreatedAt: created,
	}))
	require.NoError(t, db.InsertLog(ctx, models.RunLogEntry{
		ID: "b", Status: models.StatusWarning, Message: "Skipped", CreatedAt: created.Add(time.Minute),
	}))

	require.NoError(t, db.UpdateLog(ctx, models.LogUpdate{
		ID: "a", Status: models.StatusSuccess, Message: "Successfully upserted 3 records",
		RecordsAdded: 3, UpdatedAt: created.Add(30 * time.Second),
	}))

	logs, err := db.ListLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "b", logs[0].ID)
	require.Nil(t, logs[0].UpdatedAt)
	require.Equal(t, "a", logs[1].ID)
	require.Equal(t, models.StatusSuccess, logs[1].Status)
	require.Equal(t, 3, logs[1].RecordsAdded)
	require.NotNil(t, logs[1].UpdatedAt)
	require.True(t, created.Equal(logs[1].CreatedAt))

	limited, err := db.ListLogs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	err = db.UpdateLog(ctx, models.LogUpdate{ID: "missing", Status: models.StatusError, UpdatedAt: created})
	require.True(t, errors.Is(err, store.ErrLogNotFound))
}

func TestLogRejectsUnknownStatus(t *testing.T) {
	err := openMemory(t).InsertLog(context.Background(), models.RunLogEntry{
		ID: "x", Status: models.Status("bogus"), CreatedAt: time.Now(),
	})
	var pe *store.PersistenceError
	require.ErrorAs(t, err, &pe)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)

	_, err := db.UpsertAnnouncements(ctx, []models.AnnouncementRecord{
		record("A", "today", now.Add(-time.Hour)),
		record("B", "this week", now.Add(-72*time.Hour)),
		record("C", "old", now.Add(-30*24*time.Hour)),
	})
	require.NoError(t, err)

	todayStart := time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC)
	st, err := db.Stats(ctx, todayStart, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(3), st.TotalRecords)
	require.Equal(t, int64(1), st.NewEntriesToday)
	require.Equal(t, int64(2), st.NewEntriesThisWeek)
	require.NotNil(t, st.LastUpdated)
	require.True(t, now.Add(-time.Hour).Equal(*st.LastUpdated))
}

func TestStatsEmpty(t *testing.T) {
	st, err := openMemory(t).Stats(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	require.Zero(t, st.TotalRecords)
	require.Nil(t, st.LastUpdated)
}

func TestListAnnouncementsPaging(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	base := time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC)

	var batch []models.AnnouncementRecord
	for i := 0; i < 5; i++ {
		batch = append(batch, record("S", string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute)))
	}
	_, err := db.UpsertAnnouncements(ctx, batch)
	require.NoError(t, err)

	page, total, err := db.ListAnnouncements(ctx, 2, 2)
	require.NoError(t, err)
	require.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	require.Equal(t, "c", page[0].Subject)
	require.Equal(t, "b", page[1].Subject)
}
