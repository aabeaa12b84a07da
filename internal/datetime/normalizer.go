// Package datetime parses the exchange's "DD-Mon-YYYY HH:MM:SS" timestamps.
package datetime

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Layout is the exchange wire format, e.g. "18-Jun-2025 16:57:38".
const Layout = "02-Jan-2006 15:04:05"

var pattern = regexp.MustCompile(`^(\d{1,2})-([A-Za-z]{3})-(\d{4}) (\d{1,2}):(\d{2}):(\d{2})$`)

var months = map[string]int{
	"jan": 0, "feb": 1, "mar": 2, "apr": 3, "may": 4, "jun": 5,
	"jul": 6, "aug": 7, "sep": 8, "oct": 9, "nov": 10, "dec": 11,
}

// ParseWarning describes a field that could not be parsed. It degrades the
// field to nil and is never fatal.
type ParseWarning struct {
	Field  string
	Value  string
	Reason string
}

func (w *ParseWarning) Error() string {
	if w.Field == "" {
		return fmt.Sprintf("parse %q: %s", w.Value, w.Reason)
	}
	return fmt.Sprintf("parse %s=%q: %s", w.Field, w.Value, w.Reason)
}

// Normalizer turns exchange-local calendar fields into UTC instants.
type Normalizer struct {
	loc *time.Location
	log *slog.Logger
}

// New returns a Normalizer for the exchange time zone.
func New(loc *time.Location, logger *slog.Logger) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Normalizer{loc: loc, log: logger}
}

// NewForZone loads tzName and returns a Normalizer for it.
func NewForZone(tzName string, logger *slog.Logger) (*Normalizer, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone name %q: %w", tzName, err)
	}
	return New(loc, logger), nil
}

// Location returns the exchange time zone.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Parse returns the UTC instant for raw, or nil after logging a ParseWarning.
func (n *Normalizer) Parse(field, raw string) *time.Time {
	t, err := n.ParseStrict(raw)
	if err != nil {
		if w, ok := err.(*ParseWarning); ok {
			w.Field = field
		}
		if strings.TrimSpace(raw) != "" {
			n.log.Warn("unparseable exchange timestamp", slog.Any("err", err))
		}
		return nil
	}
	return &t
}

// ParseStrict parses raw or returns a *ParseWarning.
func (n *Normalizer) ParseStrict(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &ParseWarning{Value: raw, Reason: "empty"}
	}

	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, &ParseWarning{Value: raw, Reason: "does not match DD-Mon-YYYY HH:MM:SS"}
	}

	month, ok := months[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}, &ParseWarning{Value: raw, Reason: fmt.Sprintf("unknown month %q", m[2])}
	}

	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	second, _ := strconv.Atoi(m[6])

	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, &ParseWarning{Value: raw, Reason: "clock out of range"}
	}

	local := time.Date(year, time.Month(month+1), day, hour, minute, second, 0, n.loc)
	// time.Date normalizes overflow, so 31-Feb comes back as March.
	if local.Day() != day || int(local.Month()) != month+1 {
		return time.Time{}, &ParseWarning{Value: raw, Reason: "day out of range"}
	}

	return local.UTC(), nil
}

// Format renders t in the exchange zone using Layout.
func (n *Normalizer) Format(t time.Time) string {
	return t.In(n.loc).Format(Layout)
}
