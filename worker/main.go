package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/nse-radar/internal/activity"
	"github.com/DeafMist/nse-radar/internal/capture"
	"github.com/DeafMist/nse-radar/internal/config"
	"github.com/DeafMist/nse-radar/internal/datetime"
	"github.com/DeafMist/nse-radar/internal/dedupe"
	"github.com/DeafMist/nse-radar/internal/feed"
	"github.com/DeafMist/nse-radar/internal/logger"
	"github.com/DeafMist/nse-radar/internal/notify"
	"github.com/DeafMist/nse-radar/internal/pipeline"
	"github.com/DeafMist/nse-radar/internal/scheduler"
	"github.com/DeafMist/nse-radar/internal/search"
	"github.com/DeafMist/nse-radar/internal/store"
	"github.com/DeafMist/nse-radar/internal/transform"
)

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := store.Connect(ctx, storeOptions(cfg.Common), store.DefaultRetry, log)
	if err != nil {
		log.Error("connect store", slog.Any("err", err))
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		log.Error("migrate store", slog.Any("err", err))
		os.Exit(1)
	}

	dates, err := datetime.NewForZone(cfg.ExchangeTimezone, log)
	if err != nil {
		log.Error("load exchange timezone", slog.Any("err", err))
		os.Exit(1)
	}

	browser := capture.NewChrome(capture.ChromeOptions{
		Headless: cfg.BrowserHeadless,
		ExecPath: cfg.BrowserExecPath,
	}, log)
	bridge := capture.NewBridge(browser, capture.Config{
		WarmUpURL:      cfg.WarmUpURL,
		APIURL:         cfg.APIURL,
		WarmUpTimeout:  cfg.WarmUpTimeout,
		CaptureTimeout: cfg.CaptureTimeout,
	}, log)

	runLog := activity.New(st, log)
	sinks, closers := buildSinks(ctx, cfg, dates, log)
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Warn("close sink", slog.Any("err", err))
			}
		}
	}()

	p := pipeline.New(bridge, transform.New(dates, log), st, runLog, log, pipelineOptions(cfg, sinks, log)...)
	sched := scheduler.New(withTimeout(p, cfg.RunTimeout), runLog, cfg.ScrapeInterval, log)

	if err := sched.Start(ctx); err != nil {
		log.Error("start scheduler", slog.Any("err", err))
		os.Exit(1)
	}
	serveHealth(ctx, cfg.HealthAddr, healthRoutes(st, sched), log)
	log.Info("worker started",
		slog.String("api_url", cfg.APIURL),
		slog.Duration("interval", cfg.ScrapeInterval),
		slog.Int("sinks", len(sinks)),
	)

	<-ctx.Done()
	log.Info("shutdown signal received")
	sched.Stop()
}

func storeOptions(c config.Common) store.Options {
	return store.Options{
		Driver:           c.StoreDriver,
		DatabaseURL:      c.DatabaseURL,
		DatabasePassword: c.DatabasePassword,
		MaxConns:         c.DatabaseMaxConns,
		ViaBouncer:       c.DatabaseViaBouncer,
		SQLitePath:       c.SQLitePath,
	}
}

// buildSinks wires the optional downstream consumers. A sink that cannot be
// set up is skipped, never fatal.
func buildSinks(ctx context.Context, cfg *config.Worker, dates *datetime.Normalizer, log *slog.Logger) ([]pipeline.Sink, []io.Closer) {
	var sinks []pipeline.Sink
	var closers []io.Closer

	if len(cfg.KafkaBrokers) > 0 {
		pub := feed.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, dates, log)
		sinks = append(sinks, pub)
		closers = append(closers, pub)
	}

	if cfg.ElasticsearchAddr != "" {
		es, err := search.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, nil, log)
		if err != nil {
			log.Warn("init elasticsearch, search sink disabled", slog.Any("err", err))
		} else {
			ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := es.EnsureIndex(ensureCtx); err != nil {
				log.Warn("ensure search index, will retry on delivery", slog.Any("err", err))
			}
			cancel()
			sinks = append(sinks, es)
		}
	}

	return sinks, closers
}

func pipelineOptions(cfg *config.Worker, sinks []pipeline.Sink, log *slog.Logger) []pipeline.Option {
	var opts []pipeline.Option
	if len(sinks) > 0 {
		opts = append(opts,
			pipeline.WithSinks(sinks...),
			pipeline.WithDedupe(dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)),
		)
	}

	mail := notify.Config{
		Server: cfg.SMTPServer,
		Port:   cfg.SMTPPort,
		User:   cfg.SMTPUser,
		Pass:   cfg.SMTPPass,
		From:   cfg.AlertFrom,
		To:     cfg.AlertTo,
	}
	if mail.Enabled() {
		opts = append(opts, pipeline.WithAlerter(notify.NewMailer(mail, log)))
	}
	return opts
}

type timeoutRunner struct {
	runner  scheduler.Runner
	timeout time.Duration
}

// withTimeout bounds a whole run, so a wedged browser cannot hold the
// single-flight slot forever.
func withTimeout(r scheduler.Runner, d time.Duration) scheduler.Runner {
	if d <= 0 {
		return r
	}
	return timeoutRunner{runner: r, timeout: d}
}

func (t timeoutRunner) Run(ctx context.Context) pipeline.Result {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.runner.Run(ctx)
}
