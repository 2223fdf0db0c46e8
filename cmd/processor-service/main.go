package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/paper-processor/internal/api/handler"
	"github.com/cuongbtq/paper-processor/internal/api/router"
	"github.com/cuongbtq/paper-processor/internal/config"
	"github.com/cuongbtq/paper-processor/internal/intake"
	"github.com/cuongbtq/paper-processor/internal/papers"
	"github.com/cuongbtq/paper-processor/internal/processor"
	"github.com/cuongbtq/paper-processor/internal/processor/extractor"
	"github.com/cuongbtq/paper-processor/internal/processor/fetcher"
	"github.com/cuongbtq/paper-processor/internal/processor/table"
	"github.com/cuongbtq/paper-processor/shared/database"
	"github.com/cuongbtq/paper-processor/shared/logger"
	"github.com/cuongbtq/paper-processor/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("PROCESSOR_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/processor-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting processor service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := processor.Dependencies{
		Logger: appLogger.Logger,
		Table:  table.New(),
	}
	handlerDeps := &handler.Dependencies{
		Logger:      appLogger.Logger,
		ServiceName: cfg.App.Name,
	}

	if cfg.Database.Enabled {
		dbClient, err := initDatabase(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		store := papers.NewStorage(dbClient.GetDB(), appLogger.Logger)
		if cfg.Database.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
		}

		deps.Papers = store
		handlerDeps.Database = dbClient
		appLogger.Info("Paper store enabled", slog.String("driver", cfg.Database.Driver))
	} else {
		appLogger.Warn("Paper store disabled, results are kept in memory only")
	}

	parser, err := extractor.NewParser(cfg.Extractor.ProgressFormat)
	if err != nil {
		return fmt.Errorf("invalid progress format: %w", err)
	}

	deps.Fetcher = fetcher.New(&http.Client{}, cfg.Processor.DownloadTimeout, appLogger.Logger)
	deps.Extractor = extractor.New(extractor.Config{
		Command:         cfg.Extractor.Command,
		Args:            cfg.Extractor.Args,
		WorkDir:         cfg.Extractor.WorkDir,
		OutputDir:       cfg.Extractor.OutputDir,
		OutputSuffix:    cfg.Extractor.OutputSuffix,
		Timeout:         cfg.Extractor.Timeout,
		Parser:          parser,
		StderrTailBytes: cfg.Extractor.StderrTailBytes,
	}, appLogger.Logger)

	orch := processor.New(processor.Config{
		ScratchDir:        cfg.Processor.ScratchDir,
		MaxConcurrentJobs: cfg.Processor.MaxConcurrentJobs,
	}, deps)
	handlerDeps.Processor = orch

	r := initRouter(cfg.App.Environment, handlerDeps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := initRabbitMQ(gctx, &cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		deliveries, err := rabbitClient.Consume(cfg.RabbitMQ.Consumer.Tag)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}

		consumer := intake.NewConsumer(orch, appLogger.Logger)
		g.Go(func() error {
			return consumer.Run(gctx, deliveries)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down processor service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		}
		if err := orch.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	})

	appLogger.Info("Processor service is running", slog.String("address", addr))

	if err := g.Wait(); err != nil {
		return err
	}

	appLogger.Info("Processor service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initDatabase opens the paper store connection
func initDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Client, error) {
	return database.NewClient(&database.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ connects the submission queue consumer
func initRabbitMQ(ctx context.Context, cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(ctx, &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
	}, logger)
}

// initRouter sets the gin mode and builds the router
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
