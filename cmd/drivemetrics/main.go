// Package main DriveMetrics API
//
// @title           DriveMetrics API
// @version         1.0
// @description     Пробный период, подписки и оплата через MercadoPago для водителей DriveMetrics.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/magabrotheeeer/drivemetrics/docs"
	"github.com/magabrotheeeer/drivemetrics/internal/app/api"
	"github.com/magabrotheeeer/drivemetrics/internal/config"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/logger"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env, os.Stdout)

	log.Info("starting drivemetrics api", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := api.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("drivemetrics api stopped gracefully")
}
