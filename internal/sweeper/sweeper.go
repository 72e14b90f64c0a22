package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"innkeep/pkg/logger"
	"innkeep/pkg/model"

	"github.com/hibiken/asynq"
)

type BookingStore interface {
	FindExpired(ctx context.Context, now time.Time) ([]*model.Booking, error)
	SaveAll(ctx context.Context, bookings []*model.Booking) (int64, error)
}

type RoomReleaser interface {
	Release(ctx context.Context, roomID string, bookingIDs ...string) error
}

// HoldPruner drops holds whose stay has ended, whether or not their booking
// ever became durable.
type HoldPruner interface {
	PruneHolds(ctx context.Context, now time.Time) (int, error)
}

type SweepResult struct {
	Expired         int
	Saved           int64
	Rooms           int
	ReleaseFailures int
	PrunedHolds     int
}

// Sweeper vacates bookings whose stay has ended and releases their rooms.
// Runs may overlap; a second run over the same data finds nothing to do.
type Sweeper struct {
	store    BookingStore
	releaser RoomReleaser
	holds    HoldPruner
	log      *logger.Logger
	now      func() time.Time
}

func New(store BookingStore, releaser RoomReleaser, holds HoldPruner, log *logger.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		releaser: releaser,
		holds:    holds,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sweeper) HandleSweepTask(ctx context.Context, task *asynq.Task) error {
	_, err := s.Sweep(ctx, s.now())
	return err
}

// Sweep persists every transition in one batch before touching the cache, so a
// failed save leaves both untouched and the next run retries.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	result, err := s.sweepBookings(ctx, now)

	// Holds of dead-lettered commits are only ever reclaimed here.
	pruned, pruneErr := s.holds.PruneHolds(ctx, now)
	result.PrunedHolds = pruned
	if pruneErr != nil {
		s.log.Error("Failed to prune stale holds", "error", pruneErr)
		pruneErr = fmt.Errorf("prune holds: %w", pruneErr)
	} else if pruned > 0 {
		s.log.Info("Stale holds pruned", "pruned", pruned)
	}

	return result, errors.Join(err, pruneErr)
}

func (s *Sweeper) sweepBookings(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	expired, err := s.store.FindExpired(ctx, now)
	if err != nil {
		return result, fmt.Errorf("find expired bookings: %w", err)
	}
	result.Expired = len(expired)
	if len(expired) == 0 {
		s.log.Debug("Sweep found no expired bookings", "now", now)
		return result, nil
	}

	for _, b := range expired {
		b.Status = model.StatusVacant
		b.UpdatedAt = now
	}

	result.Saved, err = s.store.SaveAll(ctx, expired)
	if err != nil {
		return result, fmt.Errorf("save expired bookings: %w", err)
	}

	rooms, order := groupByRoom(expired)
	result.Rooms = len(order)

	var releaseErrs []error
	for _, roomID := range order {
		if err := s.releaser.Release(ctx, roomID, rooms[roomID]...); err != nil {
			result.ReleaseFailures++
			releaseErrs = append(releaseErrs, err)
			s.log.Error("Failed to release room after sweep", "room_id", roomID, "error", err)
		}
	}

	s.log.Info("Expired bookings swept",
		"expired", result.Expired,
		"saved", result.Saved,
		"rooms", result.Rooms,
		"release_failures", result.ReleaseFailures,
	)

	return result, errors.Join(releaseErrs...)
}

func groupByRoom(bookings []*model.Booking) (map[string][]string, []string) {
	rooms := make(map[string][]string)
	var order []string
	for _, b := range bookings {
		if _, ok := rooms[b.RoomID]; !ok {
			order = append(order, b.RoomID)
		}
		rooms[b.RoomID] = append(rooms[b.RoomID], b.ID)
	}
	return rooms, order
}
