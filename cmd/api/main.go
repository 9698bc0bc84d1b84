package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.temporal.io/sdk/client"

	"github.com/orderkit/cost-engine/internal/api/handlers"
	"github.com/orderkit/cost-engine/internal/application"
	"github.com/orderkit/cost-engine/internal/domain"
	mongoRepo "github.com/orderkit/cost-engine/internal/infrastructure/mongodb"
	"github.com/orderkit/cost-engine/internal/workflows"
	"github.com/orderkit/cost-engine/pkg/cloudevents"
	"github.com/orderkit/cost-engine/pkg/config"
	"github.com/orderkit/cost-engine/pkg/kafka"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/metrics"
	"github.com/orderkit/cost-engine/pkg/middleware"
	"github.com/orderkit/cost-engine/pkg/mongodb"
	"github.com/orderkit/cost-engine/pkg/outbox"
	outboxMongo "github.com/orderkit/cost-engine/pkg/outbox/mongodb"
)

const serviceName = "cost-engine"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cost-engine: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(cfg.Logging.Level)
	logConfig.Environment = cfg.Service.Environment
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting cost-engine API", "environment", cfg.Service.Environment)

	m := metrics.New(serviceName)

	mongoClient, err := mongodb.NewClient(ctx, mongodb.DefaultConfig(cfg.Mongo.URI, cfg.Mongo.Database), logger)
	if err != nil {
		return fmt.Errorf("connecting to mongodb: %w", err)
	}
	defer mongoClient.Close(context.Background())

	db := mongoClient.Database()
	eventFactory := cloudevents.NewEventFactory("/cost-engine")

	orderRepo, err := mongoRepo.NewOrderRepository(db, eventFactory)
	if err != nil {
		return fmt.Errorf("initializing order repository: %w", err)
	}
	productRepo := mongoRepo.NewProductRepository(db)
	ingredientRepo := mongoRepo.NewIngredientRepository(db)
	mappingRepo := mongoRepo.NewMappingRepository(db)
	ruleRepo := mongoRepo.NewRuleRepository(db)
	allocationRepo := mongoRepo.NewAllocationRepository(db)
	progressRepo := mongoRepo.NewProgressRepository(db)

	outboxRepo, err := outboxMongo.NewRepository(db)
	if err != nil {
		return fmt.Errorf("initializing outbox repository: %w", err)
	}

	// The outbox publisher only runs when Kafka is reachable; staged
	// events wait in MongoDB otherwise.
	var publisher *outbox.Publisher
	if cfg.Kafka.Enabled {
		kafkaConfig := kafka.DefaultConfig()
		kafkaConfig.Brokers = cfg.Kafka.Brokers
		producer := kafka.NewProducer(kafkaConfig)
		defer producer.Close()

		breaker := kafka.NewCircuitBreakerProducer(producer, m, logger)
		publisher = outbox.NewPublisher(outboxRepo, breaker, nil, m, logger)
		publisher.Start(ctx)
		defer publisher.Stop()
		logger.Info("Outbox publisher started", "brokers", cfg.Kafka.Brokers)
	}

	resolver := application.NewMappingResolver(mappingRepo, allocationRepo, outboxRepo, eventFactory, logger)
	loader := application.NewProductLoader(productRepo, ingredientRepo)
	engine := application.NewCostEngine(orderRepo, ruleRepo, resolver, loader, domain.NewNameSizeDetector(), logger, m)
	diagnostics := application.NewDiagnostics(orderRepo, ruleRepo, engine, logger, m)
	recalculator := application.NewBatchRecalculator(engine, orderRepo, progressRepo, diagnostics, outboxRepo, eventFactory, logger, m)
	ruleCatalog := application.NewRuleCatalogService(ruleRepo, outboxRepo, eventFactory, logger)

	var launcher handlers.RunLauncher
	if cfg.Temporal.Enabled {
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			return fmt.Errorf("connecting to temporal: %w", err)
		}
		defer temporalClient.Close()

		launcher = workflows.NewLauncher(temporalClient, cfg.Temporal.TaskQueue, logger)
		logger.Info("Temporal launcher initialized", "taskQueue", cfg.Temporal.TaskQueue)
	} else {
		launcher = application.NewAsyncRunner(recalculator, logger)
		logger.Info("In-process recalculation runner initialized")
	}

	router := gin.New()
	middleware.Setup(router, &middleware.Config{
		ServiceName: serviceName,
		Logger:      logger,
		Metrics:     m,
	})

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return mongoClient.HealthCheck(ctx)
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.TenantAuth())

	handlers.NewCostHandlers(engine, allocationRepo, logger).RegisterRoutes(v1)
	handlers.NewRuleHandlers(ruleCatalog, logger).RegisterRoutes(v1)
	handlers.NewRecalculationHandlers(recalculator, launcher, logger).RegisterRoutes(v1)
	handlers.NewDiagnosticsHandlers(diagnostics, logger).RegisterRoutes(v1)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("Server started", "addr", srv.Addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	logger.Info("Shutdown complete")
	return nil
}
