package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"deckpilot/internal/broker"
	"deckpilot/internal/http/handlers"
	httpapi "deckpilot/internal/http/httpapi"
	"deckpilot/internal/infra"
	"deckpilot/internal/infra/geoip"
	"deckpilot/internal/middleware"
	"deckpilot/internal/orchestrator"
	"deckpilot/internal/sse"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	// Optional country tagging for access logs
	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	tickets := broker.New(broker.Options{
		SecretID:  cfg.SkyworkSecretID,
		SecretKey: cfg.SkyworkSecretKey,
		TTL:       cfg.JobDeadline,
		Retention: cfg.OutcomeRetention,
		Logger:    &logger,
	})
	streamClient := sse.NewClient(sse.Options{
		Logger: &logger,
		Classifier: &sse.EventClassifier{
			BaseURL:             cfg.SkyworkSSEURL,
			PreferredExtensions: cfg.PreferredExtensions,
		},
		ConnectTimeout: cfg.ConnectTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxReconnects:  cfg.MaxReconnects,
	})
	jobs := orchestrator.New(orchestrator.Options{
		Broker:           tickets,
		Runner:           streamClient,
		GeneratorURL:     cfg.SkyworkSSEURL,
		Deadline:         cfg.JobDeadline,
		RateCapacity:     cfg.RateCapacity,
		RateRefillPerSec: cfg.RateRefillPerSec,
		Logger:           &logger,
	})

	app := handlers.NewApp(jobs, logger)
	router := httpapi.NewRouter(app, cfg, logger, lookup)
	server := infra.NewHTTPServer(cfg, router)

	// Start async
	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
