package availability

import (
	"context"
	"fmt"
	"innkeep/internal/tasks"
	"innkeep/pkg/logger"

	"github.com/hibiken/asynq"
)

type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Releaser undoes reservations in the cache: it drops the given holds and
// invalidates the room bucket. A failed release is handed to the task queue
// so it is retried independently of the caller.
type Releaser struct {
	cache    *RedisCache
	queue    TaskEnqueuer
	maxRetry int
	log      *logger.Logger
}

func NewReleaser(cache *RedisCache, queue TaskEnqueuer, maxRetry int, log *logger.Logger) *Releaser {
	return &Releaser{
		cache:    cache,
		queue:    queue,
		maxRetry: maxRetry,
		log:      log,
	}
}

// Release returns an error only when the release failed and no retry could be scheduled.
func (r *Releaser) Release(ctx context.Context, roomID string, bookingIDs ...string) error {
	err := r.release(ctx, roomID, bookingIDs)
	if err == nil {
		return nil
	}

	r.log.Error("Failed to release room, scheduling retry",
		"room_id", roomID,
		"booking_ids", bookingIDs,
		"error", err,
	)

	if qerr := r.scheduleRetry(ctx, roomID, bookingIDs); qerr != nil {
		return fmt.Errorf("release room %s: %w (retry not scheduled: %v)", roomID, err, qerr)
	}
	return nil
}

func (r *Releaser) HandleReleaseTask(ctx context.Context, task *asynq.Task) error {
	p, err := tasks.ParseReleaseRoomTask(task)
	if err != nil {
		r.log.Error("Dropping unreadable release task", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if err := r.release(ctx, p.RoomID, p.BookingIDs); err != nil {
		r.log.Warn("Release task attempt failed",
			"room_id", p.RoomID,
			"error", err,
		)
		return err
	}

	r.log.Info("Release task completed", "room_id", p.RoomID, "booking_ids", p.BookingIDs)
	return nil
}

func (r *Releaser) release(ctx context.Context, roomID string, bookingIDs []string) error {
	lock, err := r.cache.LockRoom(ctx, roomID)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := r.cache.RemoveHold(ctx, roomID, bookingIDs...); err != nil {
		return err
	}
	return r.cache.InvalidateRoom(ctx, roomID)
}

func (r *Releaser) scheduleRetry(ctx context.Context, roomID string, bookingIDs []string) error {
	if r.queue == nil {
		return fmt.Errorf("no task queue configured")
	}

	task, opts, err := tasks.NewReleaseRoomTask(tasks.ReleaseRoomPayload{
		RoomID:     roomID,
		BookingIDs: bookingIDs,
	}, r.maxRetry)
	if err != nil {
		return err
	}

	info, err := r.queue.EnqueueContext(context.WithoutCancel(ctx), task, opts...)
	if err != nil {
		return err
	}

	r.log.Info("Release retry scheduled", "room_id", roomID, "task_id", info.ID, "queue", info.Queue)
	return nil
}
