package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/orderkit/cost-engine/internal/activities"
	"github.com/orderkit/cost-engine/internal/application"
	"github.com/orderkit/cost-engine/internal/domain"
	mongoRepo "github.com/orderkit/cost-engine/internal/infrastructure/mongodb"
	"github.com/orderkit/cost-engine/internal/workflows"
	"github.com/orderkit/cost-engine/pkg/cloudevents"
	"github.com/orderkit/cost-engine/pkg/config"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/metrics"
	"github.com/orderkit/cost-engine/pkg/mongodb"
	outboxMongo "github.com/orderkit/cost-engine/pkg/outbox/mongodb"
)

const serviceName = "cost-engine-worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cost-engine-worker: %v\n", err)
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

	logger.Info("Starting cost-engine worker", "taskQueue", cfg.Temporal.TaskQueue)

	m := metrics.New(serviceName)

	mongoClient, err := mongodb.NewClient(ctx, mongodb.DefaultConfig(cfg.Mongo.URI, cfg.Mongo.Database), logger)
	if err != nil {
		return fmt.Errorf("connecting to mongodb: %w", err)
	}
	defer mongoClient.Close(context.Background())

	db := mongoClient.Database()
	eventFactory := cloudevents.NewEventFactory("/cost-engine-worker")

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

	resolver := application.NewMappingResolver(mappingRepo, allocationRepo, outboxRepo, eventFactory, logger)
	loader := application.NewProductLoader(productRepo, ingredientRepo)
	engine := application.NewCostEngine(orderRepo, ruleRepo, resolver, loader, domain.NewNameSizeDetector(), logger, m)
	diagnostics := application.NewDiagnostics(orderRepo, ruleRepo, engine, logger, m)
	recalculator := application.NewBatchRecalculator(engine, orderRepo, progressRepo, diagnostics, outboxRepo, eventFactory, logger, m)

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("connecting to temporal: %w", err)
	}
	defer temporalClient.Close()

	w := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.RecalculationWorkflow)

	acts := activities.NewRecalculationActivities(recalculator)
	w.RegisterActivityWithOptions(acts.PlanRecalculation, activity.RegisterOptions{Name: "PlanRecalculation"})
	w.RegisterActivityWithOptions(acts.ProcessRecalculationBatch, activity.RegisterOptions{Name: "ProcessRecalculationBatch"})
	w.RegisterActivityWithOptions(acts.FinalizeRecalculation, activity.RegisterOptions{Name: "FinalizeRecalculation"})

	logger.Info("Worker registered", "taskQueue", cfg.Temporal.TaskQueue)

	if err := w.Run(worker.InterruptCh()); err != nil {
		return fmt.Errorf("running worker: %w", err)
	}
	return nil
}
