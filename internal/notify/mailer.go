// Package notify emails operators when a run fails.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	gomail "gopkg.in/mail.v2"
)

// Config holds SMTP settings. The mailer is disabled when Server or To is empty.
type Config struct {
	Server string
	Port   int
	User   string
	Pass   string
	From   string
	To     []string
}

func (c Config) Enabled() bool {
	return c.Server != "" && len(c.To) > 0
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends plain-text alerts through SMTP.
type Mailer struct {
	cfg    Config
	dialer dialer
	log    *slog.Logger
}

func NewMailer(cfg Config, logger *slog.Logger) *Mailer {
	d := gomail.NewDialer(cfg.Server, cfg.Port, cfg.User, cfg.Pass)
	d.Timeout = 10 * time.Second
	return newMailer(cfg, d, logger)
}

func newMailer(cfg Config, d dialer, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &Mailer{cfg: cfg, dialer: d, log: logger.With("component", "notify")}
}

// Alert sends one message. A disabled mailer does nothing.
func (m *Mailer) Alert(ctx context.Context, subject, body string) error {
	if !m.cfg.Enabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send alert to %s: %w", strings.Join(m.cfg.To, ","), err)
	}
	m.log.Info("alert sent", slog.String("subject", subject))
	return nil
}
