package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/starkbot-labs/media-gateway/internal/cache"
	"github.com/starkbot-labs/media-gateway/internal/catalog"
	"github.com/starkbot-labs/media-gateway/internal/config"
	"github.com/starkbot-labs/media-gateway/internal/database"
	"github.com/starkbot-labs/media-gateway/internal/handlers"
	"github.com/starkbot-labs/media-gateway/internal/payment"
	"github.com/starkbot-labs/media-gateway/internal/postprocess"
	"github.com/starkbot-labs/media-gateway/internal/provider"
	"github.com/starkbot-labs/media-gateway/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Load()

	cat, err := catalog.Load(cfg.EndpointsConfig, cfg.TokenDecimals)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load endpoint catalog")
	}

	db, err := database.NewPostgresDB(logger, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	artifacts := storage.NewS3Store(cfg)
	cacheStore := cache.NewStore(logger, db, cfg.CacheTTL)
	facilitator := payment.NewFacilitatorClient(logger, cfg.FacilitatorURL)
	verifier := payment.NewVerifier(logger, facilitator)
	generator := provider.NewClient(logger, cfg.FalKey, provider.DefaultBaseURL)
	transcoder := postprocess.NewTranscoder(logger)

	handler := handlers.NewMediaHandler(logger, cfg, cat, cacheStore, verifier, generator, transcoder, artifacts, db)

	r := mux.NewRouter()
	r.Use(handlers.LoggingMiddleware(logger, db))
	r.Use(handlers.RateLimitMiddleware(cfg))
	handlers.RegisterRoutes(r, handler)

	logger.WithFields(logrus.Fields{
		"network":     cfg.PaymentNetwork,
		"token":       cfg.TokenSymbol,
		"wallet":      cfg.WalletAddress,
		"facilitator": cfg.FacilitatorURL,
		"public_url":  cfg.PublicURL,
		"endpoints":   len(cat.All()),
		"bypass":      cfg.PaymentBypassEnabled,
	}).Info("media-gateway starting")
	if cfg.PaymentBypassEnabled {
		logger.Warn("Payment verification is DISABLED")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reaper := cache.NewReaper(logger, db, artifacts)
	go reaper.Start(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		// Generation can take minutes end to end.
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server shutdown error")
		}
	}()

	logger.WithField("addr", server.Addr).Info("Listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("Server failed")
	}
}
