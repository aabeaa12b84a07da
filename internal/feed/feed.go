// Package feed publishes persisted announcements to Kafka.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/nse-radar/internal/datetime"
	"github.com/DeafMist/nse-radar/internal/models"
	"github.com/DeafMist/nse-radar/internal/processing"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the JSON value written for each announcement. Times are RFC 3339
// in UTC plus the exchange-local rendering of the broadcast time.
type Event struct {
	ID                string     `json:"id"`
	Symbol            string     `json:"symbol"`
	CompanyName       *string    `json:"company_name,omitempty"`
	Subject           string     `json:"subject"`
	Details           *string    `json:"details,omitempty"`
	BroadcastTime     *time.Time `json:"broadcast_time"`
	BroadcastLocal    string     `json:"broadcast_local,omitempty"`
	DisseminationTime *time.Time `json:"dissemination_time,omitempty"`
	DifferenceSeconds *int64     `json:"difference_seconds,omitempty"`
	AttachmentURL     *string    `json:"attachment_url,omitempty"`
	FileSize          *string    `json:"file_size,omitempty"`
}

type Publisher struct {
	writer messageWriter
	dates  *datetime.Normalizer
	topic  string
	log    *slog.Logger
}

// NewPublisher returns a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string, dates *datetime.Normalizer, logger *slog.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newPublisher(w, topic, dates, logger)
}

func newPublisher(w messageWriter, topic string, dates *datetime.Normalizer, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Publisher{writer: w, dates: dates, topic: topic, log: logger.With("component", "feed")}
}

func (p *Publisher) Name() string { return "kafka" }

// Deliver writes one message per record, keyed by symbol so a company's
// filings stay ordered within a partition.
func (p *Publisher) Deliver(ctx context.Context, records []models.AnnouncementRecord) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		ev := p.event(r)
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal announcement %s: %w", ev.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.Symbol),
			Value: value,
			Headers: []kafka.Header{
				{Key: "id", Value: []byte(ev.ID)},
				{Key: "fingerprint", Value: []byte(processing.Fingerprint(r))},
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), p.topic, err)
	}
	p.log.Debug("published announcements", slog.Int("count", len(msgs)), slog.String("topic", p.topic))
	return nil
}

func (p *Publisher) event(r models.AnnouncementRecord) Event {
	ev := Event{
		ID:                processing.DocumentID(r),
		Symbol:            r.Symbol,
		CompanyName:       r.CompanyName,
		Subject:           r.Subject,
		Details:           r.Details,
		BroadcastTime:     r.BroadcastTime,
		DisseminationTime: r.DisseminationTime,
		DifferenceSeconds: r.DifferenceSeconds,
		AttachmentURL:     r.AttachmentURL,
		FileSize:          r.FileSize,
	}
	if r.BroadcastTime != nil && p.dates != nil {
		ev.BroadcastLocal = p.dates.Format(*r.BroadcastTime)
	}
	return ev
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
