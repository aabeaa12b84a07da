package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Options selects and configures a backend.
type Options struct {
	Driver           string
	DatabaseURL      string
	DatabasePassword string
	MaxConns         int
	ViaBouncer       bool
	SQLitePath       string
}

// Open returns the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "postgres":
		return OpenPostgres(ctx, opts.DatabaseURL, opts.DatabasePassword, opts.MaxConns, opts.ViaBouncer)
	case "sqlite":
		return OpenSQLite(opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

// Retry bounds how long Connect keeps trying.
type Retry struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetry waits up to roughly three minutes for the database.
var DefaultRetry = Retry{Attempts: 10, Delay: 2 * time.Second, MaxDelay: 30 * time.Second}

type opener func(ctx context.Context, opts Options) (Store, error)

// Connect opens the store and pings it, retrying with exponential backoff.
func Connect(ctx context.Context, opts Options, retry Retry, logger *slog.Logger) (Store, error) {
	return connect(ctx, Open, opts, retry, logger)
}

func connect(ctx context.Context, open opener, opts Options, retry Retry, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	delay := retry.Delay

	var lastErr error
	for i := 0; i < retry.Attempts; i++ {
		st, err := open(ctx, opts)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = st.Ping(pingCtx)
			cancel()
			if err == nil {
				return st, nil
			}
			_ = st.Close()
		}
		lastErr = err
		logger.Warn("store not ready, retrying",
			slog.Any("err", err),
			slog.String("driver", opts.Driver),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", retry.Attempts),
			slog.Duration("retry_in", delay),
		)
		if i == retry.Attempts-1 {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if retry.MaxDelay > 0 && delay > retry.MaxDelay {
			delay = retry.MaxDelay
		}
	}
	return nil, fmt.Errorf("connect store after %d attempts: %w", retry.Attempts, lastErr)
}
