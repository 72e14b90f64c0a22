package model

import (
	"time"
)

type BookingStatus string

const (
	StatusBooked BookingStatus = "BOOKED"
	StatusVacant BookingStatus = "VACANT"
)

type Booking struct {
	ID         string        `json:"id" bson:"_id"`
	RoomID     string        `json:"room_id" bson:"room_id"`
	UserID     string        `json:"user_id" bson:"user_id"`
	CheckIn    time.Time     `json:"check_in" bson:"check_in"`
	CheckOut   time.Time     `json:"check_out" bson:"check_out"`
	TotalPrice float64       `json:"total_price" bson:"total_price"`
	Status     BookingStatus `json:"status" bson:"status"`
	CreatedAt  time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" bson:"updated_at"`
}

// CommitState tells a caller whether a booking has reached the durable store.
type CommitState string

const (
	CommitPending   CommitState = "pending"
	CommitCommitted CommitState = "committed"
	CommitFailed    CommitState = "failed"
)

type Reservation struct {
	Booking     *Booking    `json:"booking"`
	CommitState CommitState `json:"commit_state"`
}

type ReserveRequest struct {
	RoomID        string    `json:"room_id" validate:"required,min=1,max=64"`
	UserID        string    `json:"user_id" validate:"required,min=1,max=64"`
	CheckIn       time.Time `json:"check_in" validate:"required"`
	CheckOut      time.Time `json:"check_out" validate:"required"`
	ProposedPrice float64   `json:"proposed_price" validate:"gte=0"`
}

// BookingFilter carries the typed, whitelisted filters accepted by per-user listings.
type BookingFilter struct {
	Status      BookingStatus
	RoomID      string
	CheckInFrom *time.Time
	CheckInTo   *time.Time
}
