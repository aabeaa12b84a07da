package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/errgroup"
)

// navGrace bounds how long navigation may run once the response matched.
const navGrace = 2 * time.Second

// ChromeOptions configures the headless browser.
type ChromeOptions struct {
	Headless bool
	ExecPath string
	// Network idle: at most MaxInflight requests for QuietWindow.
	MaxInflight int
	QuietWindow time.Duration
}

// Chrome launches one fresh browser process per session.
type Chrome struct {
	opts ChromeOptions
	log  *slog.Logger
}

// NewChrome returns a Browser backed by chromedp.
func NewChrome(opts ChromeOptions, logger *slog.Logger) *Chrome {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 2
	}
	if opts.QuietWindow <= 0 {
		opts.QuietWindow = 500 * time.Millisecond
	}
	return &Chrome{opts: opts, log: logger.With("component", "chrome")}
}

// NewSession starts a browser, installs the event listener and applies the
// profile before any navigation happens.
func (c *Chrome) NewSession(ctx context.Context, profile Profile) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.UserAgent(profile.UserAgent),
	)
	if c.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.opts.ExecPath))
	}

	// The browser lives until Close, not until ctx ends.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		responses:   newResponseBuffer(),
		idle:        newIdleTracker(),
		ready:       newReadySignal(),
		pending:     make(map[string]ResponseEvent),
		maxInflight: c.opts.MaxInflight,
		quiet:       c.opts.QuietWindow,
		log:         c.log,
	}
	chromedp.ListenTarget(tabCtx, s.onEvent)

	// The first Run allocates the browser and must use tabCtx itself, or the
	// browser dies with the derived context.
	stopAbort := context.AfterFunc(ctx, cancelAlloc)
	err := chromedp.Run(tabCtx)
	stopAbort()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	headers := make(network.Headers, len(profile.Headers))
	for k, v := range profile.Headers {
		headers[k] = v
	}

	opCtx, done := s.opCtx(ctx)
	defer done()
	err = chromedp.Run(opCtx,
		network.Enable(),
		emulation.SetUserAgentOverride(profile.UserAgent).WithAcceptLanguage(profile.Headers["Accept-Language"]),
		network.SetExtraHTTPHeaders(headers),
	)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("configure browser session: %w", err)
	}
	return s, nil
}

type chromeSession struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	responses *responseBuffer
	idle      *idleTracker
	ready     *readySignal

	mu      sync.Mutex
	pending map[string]ResponseEvent

	maxInflight int
	quiet       time.Duration
	log         *slog.Logger
	closeOnce   sync.Once
}

// opCtx derives a chromedp context that is also canceled with ctx.
func (s *chromeSession) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithCancel(s.tabCtx)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

// onEvent runs on the chromedp event loop and must not block.
func (s *chromeSession) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventDomContentEventFired:
		s.ready.Fire()
	case *network.EventRequestWillBeSent:
		s.idle.Started(string(e.RequestID))
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		s.mu.Lock()
		s.pending[string(e.RequestID)] = ResponseEvent{
			RequestID: string(e.RequestID),
			URL:       e.Response.URL,
			Status:    int(e.Response.Status),
		}
		s.mu.Unlock()
	case *network.EventLoadingFinished:
		id := string(e.RequestID)
		s.idle.Finished(id)
		s.mu.Lock()
		resp, ok := s.pending[id]
		delete(s.pending, id)
		s.mu.Unlock()
		if ok {
			s.responses.Observe(resp)
		}
	case *network.EventLoadingFailed:
		id := string(e.RequestID)
		s.idle.Finished(id)
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}
}

func (s *chromeSession) WarmUp(ctx context.Context, url string) error {
	if err := s.navigate(ctx, url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return s.idle.WaitIdle(ctx, s.maxInflight, s.quiet)
}

// navigate returns once the document is parsed, without waiting for the
// load event.
func (s *chromeSession) navigate(ctx context.Context, url string) error {
	ready := s.ready.Arm()
	opCtx, done := s.opCtx(ctx)
	defer done()

	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return errors.New(errText)
		}
		return nil
	}))
	if err != nil {
		return err
	}
	return waitReady(ctx, ready)
}

// FetchJSON runs the navigation and the response wait together. The
// listener was installed in NewSession, so a response that lands before
// Wait starts is still in the buffer.
func (s *chromeSession) FetchJSON(ctx context.Context, url string, match MatchFunc, timeout time.Duration) (*Response, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(waitCtx)
	navCtx, cancelNav := context.WithCancel(gctx)
	defer cancelNav()
	var matched ResponseEvent

	g.Go(func() error {
		ev, err := s.responses.Wait(gctx, match)
		if err != nil {
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: no response from %s within %s", ErrCaptureTimeout, url, timeout)
			}
			return err
		}
		matched = ev
		// The response is in; give the page a moment to settle, then stop waiting on it.
		time.AfterFunc(navGrace, cancelNav)
		return nil
	})

	g.Go(func() error {
		if err := s.navigate(navCtx, url); err != nil {
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: navigation to %s did not finish within %s", ErrCaptureTimeout, url, timeout)
			}
			return fmt.Errorf("%w: %s: %w", ErrNavigation, url, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		// Only navigation can fail once the response matched.
		if matched.RequestID == "" {
			return nil, err
		}
		s.log.Debug("navigation ended after matched response", slog.String("url", url), slog.Any("err", err))
	}

	body, err := s.responseBody(ctx, matched.RequestID)
	if err != nil {
		return nil, fmt.Errorf("%w: read body of %s: %w", ErrNavigation, url, err)
	}
	return &Response{URL: matched.URL, Status: matched.Status, Body: body}, nil
}

func (s *chromeSession) responseBody(ctx context.Context, requestID string) ([]byte, error) {
	opCtx, done := s.opCtx(ctx)
	defer done()

	var body []byte
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		b, err := network.GetResponseBody(network.RequestID(requestID)).Do(ctx)
		body = b
		return err
	}))
	return body, err
}

// Close shuts the browser down. Safe to call more than once.
func (s *chromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.tabCtx)
		s.cancelTab()
		s.cancelAlloc()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}
