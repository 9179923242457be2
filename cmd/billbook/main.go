package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"billbook/internal/advisor"
	"billbook/internal/config"
	"billbook/internal/engine"
	"billbook/internal/events"
	"billbook/internal/httpapi"
	applog "billbook/internal/log"
	"billbook/internal/store"
	filestore "billbook/internal/store/file"
	sqlitestore "billbook/internal/store/sqlite"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Choose storage backend
	var (
		st  store.Store
		err error
	)
	switch cfg.DataBackend {
	case "file":
		st, err = filestore.Open(cfg.FileDBPath)
	default:
		st, err = sqlitestore.Open(cfg.SQLiteDBPath)
	}
	if err != nil {
		logger.Error("Failed to initialize storage backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("Initialized storage backend", "backend", cfg.DataBackend)

	eng := engine.New(st)
	eng.SetLogger(logger.WithComponent(applog.ComponentEngine).Logger)

	// AMQP publishing is optional; a missing broker never blocks startup
	if cfg.AMQPURL != "" {
		amqpClient, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			logger.WithComponent(applog.ComponentAMQP).Logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, audit publishing disabled", "error", err)
		} else {
			defer amqpClient.Close()
			eng.SetPublisher(amqpClient)
			logger.Info("AMQP audit publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	adv := advisor.New(cfg.AdvisorURL, cfg.AdvisorTimeout, logger.WithComponent(applog.ComponentAdvisor).Logger)
	if adv.Enabled() {
		logger.Info("Advisor enabled", "url", cfg.AdvisorURL)
	}

	srv := httpapi.NewServer(":"+cfg.Port, eng, adv, logger)

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting billbook server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
