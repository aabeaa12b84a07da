// Package capture obtains the exchange API payload through a real browser
// session, so the anti-bot cookies set by the warm-up page are reused.
package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/DeafMist/nse-radar/internal/models"
)

var (
	ErrBrowser         = errors.New("browser session failed")
	ErrNavigation      = errors.New("navigation failed")
	ErrCaptureTimeout  = errors.New("capture timed out")
	ErrBadStatus       = errors.New("non-OK response status")
	ErrInvalidPayload  = errors.New("invalid JSON payload")
	ErrUnexpectedShape = errors.New("unexpected payload shape")
)

// State is a step of one capture.
type State int

const (
	StateIdle State = iota
	StateWarmingUp
	StateAwaitingResponse
	StateCaptured
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWarmingUp:
		return "warming_up"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateCaptured:
		return "captured"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Response is a network response observed by a Session.
type Response struct {
	URL    string
	Status int
	Body   []byte
}

// Session is one browser context: its own cookies, headers and page.
type Session interface {
	// WarmUp loads url and blocks until the network is quiet.
	WarmUp(ctx context.Context, url string) error
	// FetchJSON navigates to url while waiting for the first response
	// accepted by match, and returns it with its body.
	FetchJSON(ctx context.Context, url string, match MatchFunc, timeout time.Duration) (*Response, error)
	Close() error
}

// Browser opens sessions.
type Browser interface {
	NewSession(ctx context.Context, profile Profile) (Session, error)
}

// Config holds the capture endpoints and limits.
type Config struct {
	WarmUpURL      string
	APIURL         string
	WarmUpTimeout  time.Duration
	CaptureTimeout time.Duration
	Profile        Profile
}

// Bridge drives Idle -> WarmingUp -> AwaitingResponse -> Captured|Failed.
type Bridge struct {
	browser Browser
	cfg     Config
	log     *slog.Logger

	mu    sync.Mutex
	state State
}

// NewBridge returns a Bridge in the Idle state.
func NewBridge(browser Browser, cfg Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 30 * time.Second
	}
	if cfg.WarmUpTimeout <= 0 {
		cfg.WarmUpTimeout = 60 * time.Second
	}
	if cfg.Profile.UserAgent == "" {
		cfg.Profile = DefaultProfile(cfg.WarmUpURL)
	}
	return &Bridge{browser: browser, cfg: cfg, log: logger.With("component", "capture")}
}

// State returns the state of the most recent capture.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) transition(s State) {
	b.mu.Lock()
	prev := b.state
	b.state = s
	b.mu.Unlock()
	b.log.Debug("capture state", slog.String("from", prev.String()), slog.String("to", s.String()))
}

func (b *Bridge) fail(err error) (json.RawMessage, error) {
	b.transition(StateFailed)
	return nil, err
}

// Capture runs one capture and returns a payload that is valid JSON.
// The session is closed on every path.
func (b *Bridge) Capture(ctx context.Context) (json.RawMessage, error) {
	b.transition(StateIdle)

	b.transition(StateWarmingUp)
	session, err := b.browser.NewSession(ctx, b.cfg.Profile)
	if err != nil {
		return b.fail(fmt.Errorf("%w: %w", ErrBrowser, err))
	}
	defer b.closeSession(session)

	warmCtx, cancel := context.WithTimeout(ctx, b.cfg.WarmUpTimeout)
	err = session.WarmUp(warmCtx, b.cfg.WarmUpURL)
	cancel()
	if err != nil {
		return b.fail(fmt.Errorf("%w: warm-up %s: %w", ErrNavigation, b.cfg.WarmUpURL, err))
	}

	b.transition(StateAwaitingResponse)
	resp, err := session.FetchJSON(ctx, b.cfg.APIURL, MatchURL(b.cfg.APIURL), b.cfg.CaptureTimeout)
	if err != nil {
		if !errors.Is(err, ErrCaptureTimeout) && !errors.Is(err, ErrNavigation) {
			err = fmt.Errorf("%w: %w", ErrNavigation, err)
		}
		return b.fail(err)
	}
	if resp == nil {
		return b.fail(fmt.Errorf("%w: no response", ErrInvalidPayload))
	}
	if resp.Status < 200 || resp.Status > 299 {
		return b.fail(fmt.Errorf("%w: %d from %s", ErrBadStatus, resp.Status, resp.URL))
	}
	if !json.Valid(resp.Body) {
		return b.fail(fmt.Errorf("%w: %s", ErrInvalidPayload, describePayload(resp.Body)))
	}

	b.transition(StateCaptured)
	b.log.Info("captured exchange payload", slog.Int("bytes", len(resp.Body)))
	return json.RawMessage(resp.Body), nil
}

func (b *Bridge) closeSession(s Session) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic while closing browser session", slog.Any("panic", r))
		}
	}()
	if err := s.Close(); err != nil {
		b.log.Warn("close browser session", slog.Any("err", err))
	}
}

// DecodeItems checks that raw is a JSON array of objects and decodes it.
// Numbers are kept as json.Number.
func DecodeItems(raw json.RawMessage) ([]models.RawAnnouncementItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected array, got %s", ErrUnexpectedShape, jsonKind(trimmed))
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var items []models.RawAnnouncementItem
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedShape, err)
	}
	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("%w: element %d is null", ErrUnexpectedShape, i)
		}
	}
	return items, nil
}

func jsonKind(b []byte) string {
	if len(b) == 0 {
		return "empty payload"
	}
	switch b[0] {
	case '{':
		return "object"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
