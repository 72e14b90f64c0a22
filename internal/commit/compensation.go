package commit

import (
	"context"
	"errors"
	"strings"

	bookingserrors "innkeep/internal/bookings/errors"
	"innkeep/pkg/kafka"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

type RoomReleaser interface {
	Release(ctx context.Context, roomID string, bookingIDs ...string) error
}

type HoldLedger interface {
	Holds(ctx context.Context, roomID string) ([]model.Hold, error)
	MarkCommitFailed(ctx context.Context, booking *model.Booking) error
}

type BookingFinder interface {
	FindByID(ctx context.Context, id string) (*model.Booking, error)
}

// Compensator consumes the dead-letter topic. A booking that never became
// durable must not stay marked unavailable, so its room bucket and hold are released.
type Compensator struct {
	releaser RoomReleaser
	holds    HoldLedger
	store    BookingFinder
	log      *logger.Logger
}

func NewCompensator(releaser RoomReleaser, holds HoldLedger, store BookingFinder, log *logger.Logger) *Compensator {
	return &Compensator{
		releaser: releaser,
		holds:    holds,
		store:    store,
		log:      log,
	}
}

func (c *Compensator) HandleDeadLetter(ctx context.Context, msg kafka.Message) error {
	dlqError, _ := msg.GetHeader(kafka.HeaderDLQError)

	var roomID string
	var bookingIDs []string

	if snapshot := decodeSnapshot(msg); snapshot != nil {
		roomID = snapshot.RoomID
		if snapshot.ID != "" {
			bookingIDs = []string{snapshot.ID}
			if err := c.holds.MarkCommitFailed(ctx, snapshot); err != nil {
				c.log.Warn("Failed to record commit failure", "id", snapshot.ID, "error", err)
			}
		}
	} else {
		roomID = strings.TrimSpace(msg.Key)
		if roomID == "" {
			c.log.Error("Dead-lettered commit has no room, nothing to compensate",
				"offset", msg.Offset,
				"dlq_error", dlqError,
			)
			return kafka.NewPermanentError("compensate dead letter", errors.New("room id not found in payload or key"))
		}

		orphans, err := c.orphanedHolds(ctx, msg, roomID)
		if err != nil {
			return kafka.NewTransientError("find orphaned holds", err).WithDetail("room_id", roomID)
		}
		bookingIDs = orphans
	}

	if err := c.releaser.Release(ctx, roomID, bookingIDs...); err != nil {
		return kafka.NewTransientError("compensate dead letter", err).WithDetail("room_id", roomID)
	}

	c.log.Warn("Compensated failed booking commit",
		"room_id", roomID,
		"booking_ids", bookingIDs,
		"dlq_error", dlqError,
	)
	return nil
}

// orphanedHolds is used when the payload cannot name the booking. Commits on
// a room are consumed in publish order, so every hold placed no later than
// this message was published belongs to a settled commit; those with no
// stored booking were dead-lettered. Later holds may still be in flight.
func (c *Compensator) orphanedHolds(ctx context.Context, msg kafka.Message, roomID string) ([]string, error) {
	publishedAt, ok := msg.PublishedAt()
	if !ok {
		c.log.Warn("Dead-lettered commit has no publish time, leaving holds to the sweeper", "room_id", roomID)
		return nil, nil
	}

	holds, err := c.holds.Holds(ctx, roomID)
	if err != nil {
		return nil, err
	}

	var orphans []string
	for _, h := range holds {
		if h.HeldAt.After(publishedAt) {
			continue
		}
		_, err := c.store.FindByID(ctx, h.BookingID)
		switch {
		case err == nil:
		case errors.Is(err, bookingserrors.ErrNotFound), errors.Is(err, bookingserrors.ErrInvalidID):
			orphans = append(orphans, h.BookingID)
		default:
			return nil, err
		}
	}
	return orphans, nil
}

func decodeSnapshot(msg kafka.Message) *model.Booking {
	var snapshot model.Booking
	if err := msg.DecodeValue(&snapshot); err != nil || snapshot.RoomID == "" {
		return nil
	}
	return &snapshot
}
