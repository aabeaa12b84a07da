package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/nse-radar/internal/config"
	"github.com/DeafMist/nse-radar/internal/logger"
	"github.com/DeafMist/nse-radar/internal/search"
	"github.com/DeafMist/nse-radar/internal/store"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.ExchangeTimezone)
	if err != nil {
		log.Error("load exchange timezone", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := store.Connect(ctx, store.Options{
		Driver:           cfg.StoreDriver,
		DatabaseURL:      cfg.DatabaseURL,
		DatabasePassword: cfg.DatabasePassword,
		MaxConns:         cfg.DatabaseMaxConns,
		ViaBouncer:       cfg.DatabaseViaBouncer,
		SQLitePath:       cfg.SQLitePath,
	}, store.DefaultRetry, log)
	if err != nil {
		log.Error("connect store", slog.Any("err", err))
		os.Exit(1)
	}
	defer st.Close()

	srv := &server{log: log, cfg: cfg, store: st, loc: loc, now: time.Now}
	if cfg.ElasticsearchAddr != "" {
		es, err := search.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, nil, log)
		if err != nil {
			log.Warn("init elasticsearch, search disabled", slog.Any("err", err))
		} else {
			srv.search = es
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}
