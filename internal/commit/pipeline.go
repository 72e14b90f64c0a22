package commit

import (
	"context"
	"fmt"

	bookingserrors "innkeep/internal/bookings/errors"
	"innkeep/pkg/kafka"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

type BookingInserter interface {
	Insert(ctx context.Context, booking *model.Booking) (bool, error)
}

// Pipeline makes accepted bookings durable. Redelivered messages are safe:
// the booking ID is the document key, so a second insert is a no-op.
type Pipeline struct {
	store BookingInserter
	log   *logger.Logger
}

func NewPipeline(store BookingInserter, log *logger.Logger) *Pipeline {
	return &Pipeline{
		store: store,
		log:   log,
	}
}

// HandleCommit returns a permanent error for messages that can never be
// stored and a transient one when the store itself failed.
func (p *Pipeline) HandleCommit(ctx context.Context, msg kafka.Message) error {
	booking, err := DecodeBooking(msg)
	if err != nil {
		return kafka.NewPermanentError("decode commit message", err).
			WithDetail("partition", msg.Partition).
			WithDetail("offset", msg.Offset)
	}

	inserted, err := p.store.Insert(ctx, booking)
	if err != nil {
		return kafka.NewTransientError("store booking", fmt.Errorf("%w: %v", bookingserrors.ErrTransientCommit, err)).
			WithDetail("booking_id", booking.ID)
	}

	if !inserted {
		p.log.Info("Booking already committed", "id", booking.ID, "room_id", booking.RoomID)
		return nil
	}

	p.log.Info("Booking committed",
		"id", booking.ID,
		"room_id", booking.RoomID,
		"user_id", booking.UserID,
		"check_in", booking.CheckIn,
		"check_out", booking.CheckOut,
	)
	return nil
}

// DecodeBooking reads the booking snapshot carried by a commit message.
func DecodeBooking(msg kafka.Message) (*model.Booking, error) {
	if len(msg.Value) == 0 {
		return nil, fmt.Errorf("%w: empty payload", bookingserrors.ErrMalformedMessage)
	}
	if et := msg.GetEventType(); et != "" && et != EventBookingReserved {
		return nil, fmt.Errorf("%w: unexpected event type %q", bookingserrors.ErrMalformedMessage, et)
	}

	var booking model.Booking
	if err := msg.DecodeValue(&booking); err != nil {
		return nil, fmt.Errorf("%w: %v", bookingserrors.ErrMalformedMessage, err)
	}

	switch {
	case booking.ID == "":
		return nil, fmt.Errorf("%w: missing booking id", bookingserrors.ErrMalformedMessage)
	case booking.RoomID == "":
		return nil, fmt.Errorf("%w: missing room id", bookingserrors.ErrMalformedMessage)
	case !booking.CheckIn.Before(booking.CheckOut):
		return nil, fmt.Errorf("%w: check_out must be after check_in", bookingserrors.ErrMalformedMessage)
	}
	if booking.Status == "" {
		booking.Status = model.StatusBooked
	}

	return &booking, nil
}
