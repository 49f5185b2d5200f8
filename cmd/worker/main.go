package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/septivank/waterquality-analytics-worker/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	startTimeout = 30 * time.Second
	stopTimeout  = 30 * time.Second
)

func main() {
	bootLogger, err := newLogger(&config.Config{ServiceName: "waterquality-analytics-worker"})
	if err != nil {
		panic(err)
	}
	defer bootLogger.Sync()

	if path, ok := loadEnv(); ok {
		bootLogger.Info("loaded environment file", zap.String("path", path))
	} else {
		bootLogger.Info("no .env file found, using process environment")
	}

	app := fx.New(
		fx.Provide(
			config.Load,
			newLogger,
			ProvideDBPool,
			ProvideRepository,
			ProvideValidator,
			ProvideSummarizer,
			ProvideAnalyzer,
			ProvideMQConnection,
			ProvidePublisher,
			ProvideAnalysisService,
			ProvideHandler,
		),
		fx.Invoke(startWorker, startHTTPServer),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startCtx, startCancel := context.WithTimeout(context.Background(), startTimeout)
	defer startCancel()

	bootLogger.Info("starting application...", zap.Duration("timeout", startTimeout))
	if err := app.Start(startCtx); err != nil {
		if errors.Is(startCtx.Err(), context.DeadlineExceeded) {
			bootLogger.Error("APPLICATION START TIMEOUT: a dependency (Database or RabbitMQ) did not become reachable in time. Check the connection errors above.")
		}
		bootLogger.Fatal("application failed to start", zap.Error(err))
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		bootLogger.Error("error stopping app", zap.Error(err))
	}
}

// loadEnv loads the first .env found in the working directory or up to two
// parents of it. Containers usually have none and rely on the environment.
func loadEnv() (string, bool) {
	candidates := []string{".env", filepath.Join("..", "..", ".env")}
	if wd, err := os.Getwd(); err == nil {
		parent := filepath.Dir(wd)
		candidates = append(candidates,
			filepath.Join(wd, ".env"),
			filepath.Join(parent, ".env"),
			filepath.Join(filepath.Dir(parent), ".env"),
		)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			abs, _ := filepath.Abs(path)
			return abs, true
		}
	}
	return "", false
}
