package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Nzyazin/lnmo/internal/core/logger"
	"github.com/Nzyazin/lnmo/internal/server"
	"github.com/Nzyazin/lnmo/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrap, cleanup := logger.NewLogger("")
		bootstrap.Error("Failed to load configuration", logger.ErrorField("error", err))
		cleanup()
		os.Exit(1)
	}

	log, cleanup := logger.NewLogger(cfg.LogDir)
	defer cleanup()

	srv, err := server.NewServer(cfg, log)
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField("error", err))
		return
	}

	go func() {
		log.Info("Starting server",
			logger.StringField("addr", cfg.HTTPAddr),
			logger.AnyField("tls", cfg.TLSEnabled()))

		var err error
		if cfg.TLSEnabled() {
			err = srv.RunTLS(cfg.HTTPAddr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.Run(cfg.HTTPAddr)
		}
		if err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", logger.ErrorField("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", logger.ErrorField("error", err))
	}

	log.Info("Server exited properly")
}
