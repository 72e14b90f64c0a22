package model

import "time"

// Hold marks a room range as taken by a booking that was accepted but may not be durable yet.
type Hold struct {
	BookingID string    `json:"booking_id"`
	RoomID    string    `json:"room_id"`
	CheckIn   time.Time `json:"check_in"`
	CheckOut  time.Time `json:"check_out"`
	HeldAt    time.Time `json:"held_at"`
}
