package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/palma21/referral-drip-bot/internal/api"
	"github.com/palma21/referral-drip-bot/internal/auth"
	"github.com/palma21/referral-drip-bot/internal/config"
	"github.com/palma21/referral-drip-bot/internal/drip"
	"github.com/palma21/referral-drip-bot/internal/notifications"
	"github.com/palma21/referral-drip-bot/internal/platform"
	"github.com/palma21/referral-drip-bot/internal/presets"
	"github.com/palma21/referral-drip-bot/internal/scheduler"
	"github.com/palma21/referral-drip-bot/internal/state"
	"github.com/palma21/referral-drip-bot/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting referral drip bot")

	available, err := presets.Load(cfg.PresetsFile)
	if err != nil {
		logrus.Fatalf("Failed to load presets: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runState := state.New()
	oauthCfg := platform.OAuthConfig(cfg.RedditClientID, cfg.RedditClientSecret, cfg.RedditRedirectURI, cfg.RedditAuthBase)
	factory := platform.NewRedditFactory(oauthCfg, cfg.RedditAPIBase, cfg.UserAgent)

	authManager := auth.NewManager(oauthCfg, cfg.UserAgent, factory, runState)
	if !authManager.Configured() {
		logrus.Warn("Reddit OAuth is not configured; login is disabled")
	}
	if cfg.RedditRefreshToken != "" {
		authManager.SetRefreshToken(cfg.RedditRefreshToken)
		logrus.Info("Using refresh token from environment")
	}

	opts := []drip.Option{drip.WithContext(ctx)}

	var archive *storage.RunArchive
	switch {
	case cfg.StorageAccount != "":
		storageClient, err := storage.NewAzureStorage(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		archive = storage.NewRunArchive(storageClient, cfg.ArchiveKeep)
	case cfg.ArchiveDBPath != "":
		storageClient, err := storage.NewSQLiteStorage(cfg.ArchiveDBPath)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		defer storageClient.Close()
		archive = storage.NewRunArchive(storageClient, cfg.ArchiveKeep)
	default:
		logrus.Info("No run archive configured")
	}
	if archive != nil {
		opts = append(opts, drip.WithArchiver(archive))
	}

	if cfg.NotificationsEnabled() {
		opts = append(opts, drip.WithNotifier(notifications.NewService(cfg)))
	}

	dripService := drip.NewService(runState, authManager, factory, opts...)

	schedulerService := scheduler.NewService(cfg, dripService, available)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	apiServer := api.NewServer(dripService, authManager, available, "/")
	if archive != nil {
		apiServer.WithArchive(archive)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	// Let an active run finish its current step and archive its log
	dripService.Stop()
	if err := dripService.Wait(shutdownCtx); err != nil {
		logrus.Warnf("Drip worker did not finish in time: %v", err)
		cancel()
	}

	logrus.Info("Server exited")
}
