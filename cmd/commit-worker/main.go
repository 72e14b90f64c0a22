package main

import (
	"context"

	"innkeep/internal/bookings/availability"
	"innkeep/internal/bookings/repository"
	"innkeep/internal/commit"
	"innkeep/pkg/app"
	"innkeep/pkg/config"
	"innkeep/pkg/kafka"
	kafka_config "innkeep/pkg/kafka/config"
	kafka_middleware "innkeep/pkg/kafka/middleware"
)

const ServiceName = "commit-worker"

func main() {
	cfg := config.Load(ServiceName)
	kafkaCfg := kafka_config.Load()
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	cfg.SetMongo()
	cfg.SetRedis()
	cfg.SetQueue()

	cfg.Log.Info("Starting commit worker")

	cache := availability.NewRedisCache(cfg.Client.Redis, cfg.RoomLockTTL, cfg.RoomLockWait, cfg.Log)
	releaser := availability.NewReleaser(cache, cfg.Client.Queue, cfg.ReleaseTaskMaxRetry, cfg.Log)
	repo := repository.NewMongoBookingRepository(cfg)
	pipeline := commit.NewPipeline(repo, cfg.Log)
	compensator := commit.NewCompensator(releaser, cache, repo, cfg.Log)

	commitConsumer, err := kafka.NewConsumer(kafkaCfg, kafkaCfg.CommitTopic, kafkaCfg.CommitGroupID, kafkaCfg.CommitDLQTopic, pipeline.HandleCommit, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create commit consumer", "error", err)
	}
	// Compensation has no further dead-letter topic; release failures are
	// already retried through the task queue.
	dlqConsumer, err := kafka.NewConsumer(kafkaCfg, kafkaCfg.CommitDLQTopic, kafkaCfg.CompensationGroupID, "", compensator.HandleDeadLetter, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create compensation consumer", "error", err)
	}

	metrics := kafka_middleware.NewMetrics()
	if kafkaCfg.EnableMiddleware {
		for _, c := range []*kafka.Consumer{commitConsumer, dlqConsumer} {
			c.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
			c.Use(metrics.ConsumerMiddleware())
		}
	}

	workerApp := app.NewApplication(cfg)
	workerApp.SetHealthOnly(
		app.MongoCheck(cfg.Client.Mongo),
		app.RedisCheck(cfg.Client.Redis),
	)
	workerApp.AddRunner("commit-consumer", commitConsumer.Start)
	workerApp.AddRunner("compensation-consumer", dlqConsumer.Start)
	if kafkaCfg.EnableMiddleware {
		workerApp.AddRunner("kafka-metrics", func(ctx context.Context) error {
			metrics.ReportEvery(ctx, kafkaCfg.MetricsInterval, cfg.Log)
			return nil
		})
	}
	workerApp.OnShutdown("commit-consumer", func(ctx context.Context) error {
		return commitConsumer.Close()
	})
	workerApp.OnShutdown("compensation-consumer", func(ctx context.Context) error {
		return dlqConsumer.Close()
	})
	workerApp.Run()
}
