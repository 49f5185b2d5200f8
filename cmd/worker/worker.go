package main

import (
	"context"

	"github.com/septivank/waterquality-analytics-worker/internal/config"
	"github.com/septivank/waterquality-analytics-worker/internal/db"
	"github.com/septivank/waterquality-analytics-worker/internal/fleet"
	"github.com/septivank/waterquality-analytics-worker/internal/logging"
	"github.com/septivank/waterquality-analytics-worker/internal/mq"
	"github.com/septivank/waterquality-analytics-worker/internal/repository"
	"github.com/septivank/waterquality-analytics-worker/internal/service"
	"github.com/septivank/waterquality-analytics-worker/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func startWorker(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	analysis *service.AnalysisService,
) (*mq.Consumer, error) {
	// Create context for consumer that will be cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Queue:            cfg.RabbitMQ.JobQueue,
		DLQQueue:         cfg.RabbitMQ.DLQQueue,
		Exchange:         cfg.RabbitMQ.JobExchange,
		RoutingKey:       cfg.RabbitMQ.JobRoutingKey,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logger,
		MessageProcessor: analysis.ProcessMessage,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting analysis job consumer",
				zap.String("queue", cfg.RabbitMQ.JobQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("worker stopped gracefully")
			return nil
		},
	})

	return consumer, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.EnforceRanges)
}

// ProvideSummarizer creates the fleet summarizer
func ProvideSummarizer(cfg *config.Config, logger *zap.Logger) *fleet.Summarizer {
	return fleet.NewSummarizer(cfg.Analysis.FleetWorkers, logger)
}

// ProvideAnalyzer creates the analysis engine shared by queue and HTTP
func ProvideAnalyzer(cfg *config.Config, summarizer *fleet.Summarizer) *service.Analyzer {
	return service.NewAnalyzer(cfg.Analysis, summarizer)
}

// ProvidePublisher creates a new publisher instance
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventExchange, cfg.RabbitMQ.EventRoutingKey, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideAnalysisService creates a new analysis service instance
func ProvideAnalysisService(
	repo *repository.Repository,
	publisher *mq.Publisher,
	analyzer *service.Analyzer,
	cfg *config.Config,
	logger *zap.Logger,
) *service.AnalysisService {
	return service.NewAnalysisService(repo, publisher, analyzer, cfg, logger)
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}
