// Package transform maps raw exchange items onto AnnouncementRecord.
package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/DeafMist/nse-radar/internal/datetime"
	"github.com/DeafMist/nse-radar/internal/models"
	"github.com/DeafMist/nse-radar/internal/processing"
)

type policy int

const (
	// keepEmpty stores "" for an absent value. Used for key fields so the
	// store, not the transformer, rejects incomplete rows.
	keepEmpty policy = iota
	nullIfEmpty
)

type textRule struct {
	source string
	policy policy
	// display fields get entity decoding and whitespace collapsing. Key and
	// link fields keep the exchange's text apart from trimming.
	display bool
	assign  func(*models.AnnouncementRecord, *string)
}

type timeRule struct {
	source string
	assign func(*models.AnnouncementRecord, *time.Time)
}

var textRules = []textRule{
	{source: "symbol", policy: keepEmpty, assign: func(r *models.AnnouncementRecord, v *string) { r.Symbol = deref(v) }},
	{source: "desc", policy: keepEmpty, assign: func(r *models.AnnouncementRecord, v *string) { r.Subject = deref(v) }},
	{source: "sm_name", policy: nullIfEmpty, display: true, assign: func(r *models.AnnouncementRecord, v *string) { r.CompanyName = v }},
	{source: "attchmntText", policy: nullIfEmpty, display: true, assign: func(r *models.AnnouncementRecord, v *string) { r.Details = v }},
	{source: "attchmntFile", policy: nullIfEmpty, assign: func(r *models.AnnouncementRecord, v *string) { r.AttachmentURL = v }},
	{source: "fileSize", policy: nullIfEmpty, assign: func(r *models.AnnouncementRecord, v *string) { r.FileSize = v }},
}

// an_dt feeds both broadcast and receipt time; the API exposes no separate
// receipt field.
var timeRules = []timeRule{
	{source: "an_dt", assign: func(r *models.AnnouncementRecord, v *time.Time) { r.BroadcastTime = v }},
	{source: "an_dt", assign: func(r *models.AnnouncementRecord, v *time.Time) { r.ReceiptTime = v }},
	{source: "exchdisstime", assign: func(r *models.AnnouncementRecord, v *time.Time) { r.DisseminationTime = v }},
}

const differenceField = "difference"

// Bounds keep float seconds and HH:MM:SS hours inside int64.
const (
	maxDifferenceSeconds = float64(math.MaxInt64 / 2)
	maxDifferenceHours   = math.MaxInt64 / 2 / 3600
)

// Transformer is pure apart from ParseWarning logging.
type Transformer struct {
	dates *datetime.Normalizer
	log   *slog.Logger
}

// New builds a Transformer around the exchange date normalizer.
func New(dates *datetime.Normalizer, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Transformer{dates: dates, log: logger}
}

// Transform maps every item to exactly one record. Nothing is dropped.
func (t *Transformer) Transform(items []models.RawAnnouncementItem) []models.AnnouncementRecord {
	out := make([]models.AnnouncementRecord, 0, len(items))
	for _, item := range items {
		out = append(out, t.Record(item))
	}
	return out
}

// Record maps a single raw item.
func (t *Transformer) Record(item models.RawAnnouncementItem) models.AnnouncementRecord {
	var rec models.AnnouncementRecord

	for _, rule := range textRules {
		v, ok := textValue(item, rule.source)
		if ok && rule.display {
			v = processing.NormalizeText(v)
		}
		if !ok || v == "" {
			if rule.policy == nullIfEmpty {
				rule.assign(&rec, nil)
				continue
			}
			v = ""
		}
		rule.assign(&rec, &v)
	}

	for _, rule := range timeRules {
		raw, _ := textValue(item, rule.source)
		rule.assign(&rec, t.dates.Parse(rule.source, raw))
	}

	rec.DifferenceSeconds = t.difference(item, rec.ReceiptTime, rec.DisseminationTime)
	return rec
}

func (t *Transformer) difference(item models.RawAnnouncementItem, receipt, dissemination *time.Time) *int64 {
	if raw, ok := textValue(item, differenceField); ok && raw != "" {
		secs, err := ParseDifference(raw)
		if err == nil {
			return &secs
		}
		t.log.Warn("unparseable difference, deriving from timestamps",
			slog.Any("err", &datetime.ParseWarning{Field: differenceField, Value: raw, Reason: err.Error()}),
		)
	}

	if receipt == nil || dissemination == nil {
		return nil
	}
	secs := int64(math.Floor(dissemination.Sub(*receipt).Seconds()))
	return &secs
}

// ParseDifference accepts "HH:MM:SS" (hours unbounded, optional sign) or a raw
// seconds count, and returns whole seconds.
func ParseDifference(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty difference")
	}

	if strings.Contains(s, ":") {
		sign := int64(1)
		if strings.HasPrefix(s, "-") {
			sign = -1
			s = s[1:]
		}
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return 0, fmt.Errorf("difference %q is not HH:MM:SS", raw)
		}
		var vals [3]int64
		for i, p := range parts {
			n, err := strconv.ParseInt(p, 10, 64)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("difference %q is not HH:MM:SS", raw)
			}
			vals[i] = n
		}
		if vals[0] > maxDifferenceHours {
			return 0, fmt.Errorf("difference %q is out of range", raw)
		}
		if vals[1] > 59 || vals[2] > 59 {
			return 0, fmt.Errorf("difference %q has minutes or seconds out of range", raw)
		}
		return sign * (vals[0]*3600 + vals[1]*60 + vals[2]), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("difference %q is not a number of seconds", raw)
	}
	if math.Abs(f) > maxDifferenceSeconds {
		return 0, fmt.Errorf("difference %q is out of range", raw)
	}
	return int64(math.Floor(f)), nil
}

// textValue reads a field as text. Numbers are rendered without exponent so
// that seconds counts survive.
func textValue(item models.RawAnnouncementItem, key string) (string, bool) {
	v, ok := item[key]
	if !ok || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return strings.TrimSpace(fmt.Sprint(x)), true
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
