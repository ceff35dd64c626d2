package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tectonica/quakewatch/internal/config"
	"github.com/tectonica/quakewatch/internal/dedup"
	"github.com/tectonica/quakewatch/internal/feed"
	"github.com/tectonica/quakewatch/internal/ingest"
	"github.com/tectonica/quakewatch/internal/logger"
	"github.com/tectonica/quakewatch/internal/notify"
	"github.com/tectonica/quakewatch/internal/observability"
	"github.com/tectonica/quakewatch/internal/server"
	"github.com/tectonica/quakewatch/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	metrics := observability.NewMetrics()

	sources := []feed.Source{
		feed.NewKandilli(cfg.Sources.KandilliURL, cfg.Sources.FetchTimeout),
		feed.NewUSGS(cfg.Sources.USGSURL, cfg.Sources.FetchTimeout),
		feed.NewEMSC(cfg.Sources.EMSCURL, cfg.Sources.FetchTimeout),
	}

	var notifier notify.Notifier
	if cfg.Notify.Enabled {
		tg, err := notify.NewTelegram(cfg.Notify.BotToken, cfg.Notify.ChatID)
		if err != nil {
			logger.Fatal("Failed to initialize notifier: %v", err)
		}
		notifier = tg
		logger.Info("Alert delivery initialized")
	} else {
		logger.Debug("Alert delivery disabled")
	}

	window := dedup.New(
		cfg.Dedup.Window,
		cfg.Dedup.TimeTolerance,
		cfg.Dedup.DistanceRadius,
		clockwork.NewRealClock(),
	)

	pipeline := ingest.New(
		sources,
		window,
		store,
		storage.EventID,
		notifier,
		cfg.Notify.Topic,
		metrics,
		clockwork.NewRealClock(),
	)

	srv := server.New(cfg.Server.Addr, store, cfg.Server.PageSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting ingestion service (interval: %v, window: %v, tolerance: %v, radius: %.0f km)",
		cfg.Sources.PollInterval,
		cfg.Dedup.Window,
		cfg.Dedup.TimeTolerance,
		cfg.Dedup.DistanceRadius,
	)
	logger.Info("Sources: Kandilli=%s USGS=%s EMSC=%s",
		cfg.Sources.KandilliURL, cfg.Sources.USGSURL, cfg.Sources.EMSCURL)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Read API server error: %v", err)
		}
	}()

	pipeline.Run(ctx, cfg.Sources.PollInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Read API shutdown error: %v", err)
	}

	logger.Info("Service stopped")
}
