package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/septivank/waterquality-analytics-worker/internal/api"
	"github.com/septivank/waterquality-analytics-worker/internal/config"
	"github.com/septivank/waterquality-analytics-worker/internal/db"
	"github.com/septivank/waterquality-analytics-worker/internal/mq"
	"github.com/septivank/waterquality-analytics-worker/internal/service"
	"github.com/septivank/waterquality-analytics-worker/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProvideHandler creates the HTTP analysis handler
func ProvideHandler(analyzer *service.Analyzer, v *validator.Validator, logger *zap.Logger) *api.Handler {
	return api.NewHandler(analyzer, v, logger)
}

func startHTTPServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	handler *api.Handler,
	pool *db.Pool,
	conn *mq.Connection,
	logger *zap.Logger,
) {
	checks := map[string]api.HealthCheck{
		"database": pool.Ping,
		"rabbitmq": func(context.Context) error {
			if !conn.Healthy() {
				return errors.New("connection closed")
			}
			return nil
		},
	}

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:     api.NewRouter(handler, checks, cfg.HTTP.MaxBodyBytes, logger),
		ReadTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server failed", zap.Error(err))
				}
			}()
			logger.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("failed to shut down http server", zap.Error(err))
				return err
			}
			logger.Info("http server stopped")
			return nil
		},
	})
}
