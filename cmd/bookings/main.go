package main

import (
	"context"

	"innkeep/internal/bookings/availability"
	"innkeep/internal/bookings/handler"
	"innkeep/internal/bookings/repository"
	"innkeep/internal/bookings/service"
	"innkeep/internal/bookings/validator"
	"innkeep/internal/commit"
	"innkeep/pkg/app"
	"innkeep/pkg/config"
	"innkeep/pkg/kafka"
	kafka_config "innkeep/pkg/kafka/config"
	kafka_middleware "innkeep/pkg/kafka/middleware"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	kafkaCfg := kafka_config.Load()
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	cfg.SetMongo()
	cfg.SetRedis()
	cfg.SetQueue()

	cfg.Log.Info("Starting Bookings service")

	producer, err := kafka.NewProducer(kafkaCfg, kafkaCfg.CommitTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create commit producer", "error", err)
	}
	metrics := kafka_middleware.NewMetrics()
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(metrics.ProducerMiddleware())
	}

	cache := availability.NewRedisCache(cfg.Client.Redis, cfg.RoomLockTTL, cfg.RoomLockWait, cfg.Log)
	bookingService := initServices(cfg, cache, producer)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		handler.NewBookingHandler(bookingService, cfg.Log),
		app.MongoCheck(cfg.Client.Mongo),
		app.RedisCheck(cfg.Client.Redis),
	)
	if kafkaCfg.EnableMiddleware {
		serverApp.AddRunner("kafka-metrics", func(ctx context.Context) error {
			metrics.ReportEvery(ctx, kafkaCfg.MetricsInterval, cfg.Log)
			return nil
		})
	}
	serverApp.OnShutdown("commit-producer", func(ctx context.Context) error {
		return producer.Close()
	})
	serverApp.Run()
}

func initServices(cfg *config.Config, cache *availability.RedisCache, producer *kafka.Producer) service.BookingService {
	releaser := availability.NewReleaser(cache, cfg.Client.Queue, cfg.ReleaseTaskMaxRetry, cfg.Log)
	bookingService := service.NewBookingService(
		repository.NewMongoBookingRepository(cfg),
		repository.NewMongoRoomRepository(cfg),
		repository.NewMongoUserRepository(cfg),
		cache,
		releaser,
		commit.NewPublisher(producer, cfg.Log),
		validator.NewBookingValidator(cfg.Log),
		cfg,
	)

	cfg.Log.Info("Booking service initialized", "database", cfg.MongoDatabaseName)
	return bookingService
}
