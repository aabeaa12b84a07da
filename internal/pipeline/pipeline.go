// Package pipeline runs one ingestion pass: capture, transform, upsert, log.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/DeafMist/nse-radar/internal/activity"
	"github.com/DeafMist/nse-radar/internal/capture"
	"github.com/DeafMist/nse-radar/internal/models"
	"github.com/DeafMist/nse-radar/internal/processing"
	"github.com/DeafMist/nse-radar/internal/transform"
)

const (
	MsgStarting  = "Starting NSE data scrape"
	MsgNoData    = "No announcements returned by exchange API"
	msgUpserted  = "Successfully upserted %d records"
	msgCapture   = "Failed to capture data: %v"
	msgUpsert    = "Failed to upsert data: %v"
	msgUnhandled = "Unexpected error: %v"
)

const alertTimeout = 30 * time.Second

// ErrUnexpected wraps a panic recovered from a run.
var ErrUnexpected = errors.New("unexpected error")

type Capturer interface {
	Capture(ctx context.Context) (json.RawMessage, error)
}

type Upserter interface {
	UpsertAnnouncements(ctx context.Context, records []models.AnnouncementRecord) (int, error)
}

// Sink receives persisted records after a successful upsert.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, records []models.AnnouncementRecord) error
}

// Alerter is told about runs that ended in error.
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

// Deduper remembers which fingerprints a sink already received.
type Deduper interface {
	IsSeen(key string) bool
	MarkSeen(key string)
}

// Result is the terminal outcome of one run.
type Result struct {
	LogID        string
	Status       models.Status
	Message      string
	RecordsAdded int
	Err          error
}

type Pipeline struct {
	capturer    Capturer
	transformer *transform.Transformer
	store       Upserter
	activity    *activity.Logger
	sinks       []Sink
	dedupe      Deduper
	alerter     Alerter
	log         *slog.Logger
}

type Option func(*Pipeline)

func WithSinks(sinks ...Sink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

func WithDedupe(d Deduper) Option {
	return func(p *Pipeline) { p.dedupe = d }
}

func WithAlerter(a Alerter) Option {
	return func(p *Pipeline) { p.alerter = a }
}

func New(c Capturer, t *transform.Transformer, store Upserter, logs *activity.Logger, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Pipeline{
		capturer:    c,
		transformer: t,
		store:       store,
		activity:    logs,
		log:         logger.With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one pass. Every outcome, including a panic, ends in exactly
// one terminal status on the run log. Once that status is set, later
// failures are logged and leave the result untouched.
func (p *Pipeline) Run(ctx context.Context) (res Result) {
	var run *activity.Run

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pipeline panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			if res.Status == "" {
				res = p.fail(ctx, run, r)
			}
		}
		if res.Status == models.StatusError {
			p.alert(ctx, res)
		}
	}()

	run = p.activity.Begin(ctx, MsgStarting)
	res.LogID = run.ID()

	raw, err := p.capturer.Capture(ctx)
	if err != nil {
		return p.finish(ctx, run, models.StatusError, fmt.Sprintf(msgCapture, err), 0, err)
	}
	items, err := capture.DecodeItems(raw)
	if err != nil {
		return p.finish(ctx, run, models.StatusError, fmt.Sprintf(msgCapture, err), 0, err)
	}
	if len(items) == 0 {
		return p.finish(ctx, run, models.StatusWarning, MsgNoData, 0, nil)
	}

	records := p.transformer.Transform(items)
	n, err := p.store.UpsertAnnouncements(ctx, records)
	if err != nil {
		return p.finish(ctx, run, models.StatusError, fmt.Sprintf(msgUpsert, err), 0, err)
	}

	res = p.finish(ctx, run, models.StatusSuccess, fmt.Sprintf(msgUpserted, n), n, nil)
	p.fanOut(ctx, records)
	return res
}

// fail turns a recovered panic into the terminal result. A nil run means
// Begin itself panicked, so the error row is recorded on its own.
func (p *Pipeline) fail(ctx context.Context, run *activity.Run, r any) Result {
	msg := fmt.Sprintf(msgUnhandled, r)
	err := fmt.Errorf("%w: %v", ErrUnexpected, r)
	if run == nil {
		id := p.activity.Record(ctx, models.StatusError, msg, 0)
		return Result{LogID: id, Status: models.StatusError, Message: msg, Err: err}
	}
	return p.finish(ctx, run, models.StatusError, msg, 0, err)
}

func (p *Pipeline) finish(ctx context.Context, run *activity.Run, status models.Status, msg string, n int, err error) Result {
	run.Complete(ctx, status, msg, n)
	return Result{LogID: run.ID(), Status: status, Message: msg, RecordsAdded: n, Err: err}
}

// fanOut is best effort; sink failures never change the run status.
func (p *Pipeline) fanOut(ctx context.Context, records []models.AnnouncementRecord) {
	for _, sink := range p.sinks {
		fresh, keys := p.unseen(sink.Name(), records)
		if len(fresh) == 0 {
			p.log.Debug("nothing new for sink", slog.String("sink", sink.Name()))
			continue
		}
		if err := deliver(ctx, sink, fresh); err != nil {
			p.log.Warn("sink delivery failed",
				slog.String("sink", sink.Name()),
				slog.Int("records", len(fresh)),
				slog.Any("err", err),
			)
			continue
		}
		if p.dedupe != nil {
			for _, k := range keys {
				p.dedupe.MarkSeen(k)
			}
		}
		p.log.Info("delivered to sink", slog.String("sink", sink.Name()), slog.Int("records", len(fresh)))
	}
}

func deliver(ctx context.Context, sink Sink, records []models.AnnouncementRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: sink panic: %v", ErrUnexpected, r)
		}
	}()
	return sink.Deliver(ctx, records)
}

func (p *Pipeline) unseen(sink string, records []models.AnnouncementRecord) ([]models.AnnouncementRecord, []string) {
	if p.dedupe == nil {
		return records, nil
	}
	fresh := make([]models.AnnouncementRecord, 0, len(records))
	keys := make([]string, 0, len(records))
	for _, r := range records {
		k := sink + ":" + processing.Fingerprint(r)
		if p.dedupe.IsSeen(k) {
			continue
		}
		fresh = append(fresh, r)
		keys = append(keys, k)
	}
	return fresh, keys
}

func (p *Pipeline) alert(ctx context.Context, res Result) {
	if p.alerter == nil {
		return
	}
	body := fmt.Sprintf("Run %s ended with status %s.\n\n%s\n", res.LogID, res.Status, res.Message)
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := p.alerter.Alert(actx, "NSE scrape failed", body); err != nil {
		p.log.Warn("send failure alert", slog.Any("err", err))
	}
}
