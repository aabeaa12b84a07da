package transform_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/nse-radar/internal/datetime"
	"github.com/DeafMist/nse-radar/internal/models"
	"github.com/DeafMist/nse-radar/internal/transform"
)

func newTransformer(t *testing.T) *transform.Transformer {
	t.Helper()
	dates, err := datetime.NewForZone("Asia/Kolkata", nil)
	require.NoError(t, err)
	return transform.New(dates, nil)
}

func decode(t *testing.T, raw string) []models.RawAnnouncementItem {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var items []models.RawAnnouncementItem
	require.NoError(t, dec.Decode(&items))
	return items
}

func TestTransformScenarioA(t *testing.T) {
	items := decode(t, `[{"symbol":"ABC","sm_name":"ABC Ltd","desc":"Results","an_dt":"18-Jun-2025 16:57:38","exchdisstime":"18-Jun-2025 16:57:40","attchmntFile":"http://x/doc.pdf"}]`)

	recs := newTransformer(t).Transform(items)
	require.Len(t, recs, 1)

	rec := recs[0]
	broadcast := time.Date(2025, 6, 18, 11, 27, 38, 0, time.UTC)
	require.Equal(t, "ABC", rec.Symbol)
	require.Equal(t, "Results", rec.Subject)
	require.NotNil(t, rec.CompanyName)
	require.Equal(t, "ABC Ltd", *rec.CompanyName)
	require.NotNil(t, rec.BroadcastTime)
	require.True(t, broadcast.Equal(*rec.BroadcastTime))
	require.NotNil(t, rec.ReceiptTime)
	require.True(t, rec.BroadcastTime.Equal(*rec.ReceiptTime))
	require.NotNil(t, rec.DisseminationTime)
	require.True(t, broadcast.Add(2*time.Second).Equal(*rec.DisseminationTime))
	require.NotNil(t, rec.DifferenceSeconds)
	require.Equal(t, int64(2), *rec.DifferenceSeconds)
	require.NotNil(t, rec.AttachmentURL)
	require.Equal(t, "http://x/doc.pdf", *rec.AttachmentURL)
	require.Nil(t, rec.Details)
	require.Nil(t, rec.FileSize)
}

func TestTransformEmptyOptionalFieldsBecomeNil(t *testing.T) {
	items := []models.RawAnnouncementItem{{
		"symbol":       "XYZ",
		"desc":         "Board Meeting",
		"sm_name":      "",
		"attchmntText": "   ",
		"attchmntFile": nil,
		"fileSize":     "",
		"an_dt":        "01-Jan-2025 10:00:00",
	}}

	rec := newTransformer(t).Transform(items)[0]
	require.Nil(t, rec.CompanyName)
	require.Nil(t, rec.Details)
	require.Nil(t, rec.AttachmentURL)
	require.Nil(t, rec.FileSize)
	require.Nil(t, rec.DisseminationTime)
	require.Nil(t, rec.DifferenceSeconds)
}

func TestTransformNeverDrops(t *testing.T) {
	items := []models.RawAnnouncementItem{
		{},
		{"symbol": "A"},
		{"an_dt": "not a date"},
		{"symbol": 42, "desc": true},
		{"symbol": "B", "desc": "x", "an_dt": "18-Jun-2025 16:57:38"},
	}

	recs := newTransformer(t).Transform(items)
	require.Len(t, recs, len(items))

	require.Equal(t, "", recs[0].Symbol)
	require.Nil(t, recs[0].BroadcastTime)
	require.Nil(t, recs[2].BroadcastTime)
	require.Equal(t, "42", recs[3].Symbol)
	require.Equal(t, "true", recs[3].Subject)
}

func TestTransformDifferenceSources(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *int64
	}{
		{name: "hms verbatim", raw: `[{"an_dt":"18-Jun-2025 16:57:38","exchdisstime":"18-Jun-2025 16:57:40","difference":"00:01:05"}]`, want: ptr(65)},
		{name: "seconds number", raw: `[{"difference":12}]`, want: ptr(12)},
		{name: "seconds string", raw: `[{"difference":"7"}]`, want: ptr(7)},
		{name: "fractional seconds floor", raw: `[{"difference":3.9}]`, want: ptr(3)},
		{name: "derived", raw: `[{"an_dt":"18-Jun-2025 16:57:38","exchdisstime":"18-Jun-2025 17:00:00"}]`, want: ptr(142)},
		{name: "garbage falls back to derived", raw: `[{"an_dt":"18-Jun-2025 16:57:38","exchdisstime":"18-Jun-2025 16:57:48","difference":"soon"}]`, want: ptr(10)},
		{name: "no inputs", raw: `[{"an_dt":"18-Jun-2025 16:57:38"}]`, want: nil},
	}

	tr := newTransformer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tr.Transform(decode(t, tt.raw))[0]
			require.Equal(t, tt.want, rec.DifferenceSeconds)
		})
	}
}

func TestParseDifference(t *testing.T) {
	got, err := transform.ParseDifference("26:00:01")
	require.NoError(t, err)
	require.Equal(t, int64(93601), got)

	got, err = transform.ParseDifference("-00:00:05")
	require.NoError(t, err)
	require.Equal(t, int64(-5), got)

	for _, bad := range []string{"", "1:2", "00:75:00", "a:b:c", "NaN", "1e19", "-1e19", "9999999999999999:00:00"} {
		_, err := transform.ParseDifference(bad)
		require.Error(t, err, bad)
	}
}

func TestTransformIsDeterministic(t *testing.T) {
	items := decode(t, `[{"symbol":"ABC","desc":"Results &amp; Outcome","an_dt":"18-Jun-2025 16:57:38","exchdisstime":"18-Jun-2025 16:57:40"}]`)
	tr := newTransformer(t)

	first := tr.Transform(items)
	second := tr.Transform(items)
	require.Equal(t, first, second)
	require.Equal(t, "Results &amp; Outcome", first[0].Subject)
}

func TestRecordNormalizesDisplayFieldsOnly(t *testing.T) {
	items := decode(t, `[{
		"symbol":" ABC ",
		"desc":"Board  Meeting &amp; Outcome",
		"sm_name":"Acme  &amp; Sons   Ltd",
		"attchmntText":"Details\n\n  follow",
		"attchmntFile":"https://example.com/a?x=1&amp;y=2",
		"an_dt":"18-Jun-2025 16:57:38"
	}]`)
	rec := newTransformer(t).Record(items[0])

	require.Equal(t, "ABC", rec.Symbol)
	require.Equal(t, "Board  Meeting &amp; Outcome", rec.Subject)
	require.Equal(t, "https://example.com/a?x=1&amp;y=2", *rec.AttachmentURL)
	require.Equal(t, "Acme & Sons Ltd", *rec.CompanyName)
	require.Equal(t, "Details follow", *rec.Details)
}

func TestOutOfRangeDifferenceFallsBackToTimestamps(t *testing.T) {
	items := decode(t, `[{"symbol":"ABC","desc":"X","an_dt":"18-Jun-2025 16:57:38","exchdisstime":"18-Jun-2025 16:57:40","difference":1e19}]`)
	rec := newTransformer(t).Record(items[0])

	require.Equal(t, ptr(2), rec.DifferenceSeconds)
}

func ptr(v int64) *int64 { return &v }
