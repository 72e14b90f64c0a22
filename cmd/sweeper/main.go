package main

import (
	"context"
	"fmt"
	"time"

	"innkeep/internal/bookings/availability"
	"innkeep/internal/bookings/repository"
	"innkeep/internal/sweeper"
	"innkeep/internal/tasks"
	"innkeep/pkg/app"
	"innkeep/pkg/config"

	"github.com/hibiken/asynq"
)

const ServiceName = "sweeper"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()
	cfg.SetQueue()

	cfg.Log.Info("Starting expiration sweeper", "interval", cfg.SweepInterval)

	cache := availability.NewRedisCache(cfg.Client.Redis, cfg.RoomLockTTL, cfg.RoomLockWait, cfg.Log)
	releaser := availability.NewReleaser(cache, cfg.Client.Queue, cfg.ReleaseTaskMaxRetry, cfg.Log)
	sw := sweeper.New(repository.NewMongoBookingRepository(cfg), releaser, cache, cfg.Log)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeSweepExpired, sw.HandleSweepTask)
	mux.HandleFunc(tasks.TypeReleaseRoom, releaser.HandleReleaseTask)

	srv := asynq.NewServer(cfg.Client.QueueOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      tasks.Queues(),
		Logger:      tasks.NewLogger(cfg.Log),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			cfg.Log.Error("Task failed", "type", task.Type(), "retry", retried, "max_retry", maxRetry, "error", err)
		}),
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	scheduler := asynq.NewScheduler(cfg.Client.QueueOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   tasks.NewLogger(cfg.Log),
	})
	task, opts := tasks.NewSweepTask(cfg.SweepInterval)
	entryID, err := scheduler.Register(fmt.Sprintf("@every %s", cfg.SweepInterval), task, opts...)
	if err != nil {
		cfg.Log.Fatal("Failed to register sweep schedule", "error", err)
	}
	cfg.Log.Info("Sweep scheduled", "entry_id", entryID, "interval", cfg.SweepInterval)

	workerApp := app.NewApplication(cfg)
	workerApp.SetHealthOnly(
		app.MongoCheck(cfg.Client.Mongo),
		app.RedisCheck(cfg.Client.Redis),
	)
	workerApp.AddRunner("task-server", func(ctx context.Context) error {
		if err := srv.Start(mux); err != nil {
			return err
		}
		<-ctx.Done()
		srv.Shutdown()
		return nil
	})
	workerApp.AddRunner("task-scheduler", func(ctx context.Context) error {
		if err := scheduler.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		scheduler.Shutdown()
		return nil
	})
	workerApp.Run()
}
