package store

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/nse-radar/internal/models"
)

func TestPersistenceErrorCarriesPgDetail(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:    "22001",
		Message: "value too long for type character varying(10)",
		Detail:  `Failing row contains (ABC, ...)`,
		Hint:    "shorten FILE_SIZE",
	}

	err := persistenceError("upsert announcements", pgErr)

	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, `Failing row contains (ABC, ...)`, pe.Detail)
	require.Equal(t, "shorten FILE_SIZE", pe.Hint)
	require.Contains(t, err.Error(), "Failing row contains")
	require.Contains(t, err.Error(), "shorten FILE_SIZE")
	require.True(t, errors.As(err, &pgErr))
}

func TestPersistenceErrorNil(t *testing.T) {
	require.NoError(t, persistenceError("noop", nil))
}

func TestCollapseKeepsLastPerKey(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	one, two := "one", "two"
	recs := []models.AnnouncementRecord{
		{Symbol: "A", Subject: "s", BroadcastTime: &ts, Details: &one},
		{Symbol: "B", Subject: "s", BroadcastTime: &ts},
		{Symbol: "A", Subject: "s", BroadcastTime: &ts, Details: &two},
	}

	out := collapse(recs)
	require.Len(t, out, 2)
	require.Equal(t, "A", out[0].Symbol)
	require.Equal(t, "two", *out[0].Details)
	require.Equal(t, "B", out[1].Symbol)
}
