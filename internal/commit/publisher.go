package commit

import (
	"context"
	"fmt"

	"innkeep/pkg/kafka"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

const (
	EventBookingReserved = "booking.reserved"
	SchemaVersion        = "1"
	SourceBookings       = "bookings"
)

type MessagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// Publisher puts accepted bookings on the commit topic, keyed by room so
// commits for one room stay on one partition.
type Publisher struct {
	producer MessagePublisher
	log      *logger.Logger
}

func NewPublisher(producer MessagePublisher, log *logger.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		log:      log,
	}
}

func (p *Publisher) PublishReserved(ctx context.Context, booking *model.Booking) error {
	if booking == nil || booking.RoomID == "" {
		return fmt.Errorf("publish reserved booking: %w", kafka.ErrInvalidMessage)
	}

	msg := kafka.NewMessage().
		WithKey(booking.RoomID).
		WithValue(booking).
		WithEventType(EventBookingReserved).
		WithSchemaVersion(SchemaVersion).
		WithSource(SourceBookings).
		WithCorrelationID(booking.ID).
		Build()

	if err := p.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish booking %s: %w", booking.ID, err)
	}

	p.log.Debug("Booking commit enqueued", "id", booking.ID, "room_id", booking.RoomID, "event_id", msg.GetEventID())
	return nil
}
