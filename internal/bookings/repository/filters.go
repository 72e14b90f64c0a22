package repository

import (
	"fmt"
	bookingserrors "innkeep/internal/bookings/errors"
	"innkeep/pkg/model"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	FilterStatus      = "status"
	FilterRoomID      = "room_id"
	FilterCheckInFrom = "check_in_from"
	FilterCheckInTo   = "check_in_to"
)

// ParseBookingFilter maps caller supplied key/value pairs onto typed filters.
// Keys outside the allowed set are rejected rather than passed to the query.
func ParseBookingFilter(values map[string]string) (model.BookingFilter, error) {
	var f model.BookingFilter

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := strings.TrimSpace(values[key])
		if raw == "" {
			continue
		}

		switch key {
		case FilterStatus:
			status := model.BookingStatus(strings.ToUpper(raw))
			if status != model.StatusBooked && status != model.StatusVacant {
				return f, fmt.Errorf("%w: status must be BOOKED or VACANT, got %q", bookingserrors.ErrInvalidFilter, raw)
			}
			f.Status = status
		case FilterRoomID:
			f.RoomID = raw
		case FilterCheckInFrom, FilterCheckInTo:
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return f, fmt.Errorf("%w: %s must be RFC3339, got %q", bookingserrors.ErrInvalidFilter, key, raw)
			}
			if key == FilterCheckInFrom {
				f.CheckInFrom = &t
			} else {
				f.CheckInTo = &t
			}
		default:
			return f, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidFilter, key)
		}
	}

	if f.CheckInFrom != nil && f.CheckInTo != nil && f.CheckInTo.Before(*f.CheckInFrom) {
		return f, fmt.Errorf("%w: %s is before %s", bookingserrors.ErrInvalidFilter, FilterCheckInTo, FilterCheckInFrom)
	}

	return f, nil
}

// overlapFilter selects BOOKED bookings of the room whose inclusive range touches [start, end].
func overlapFilter(roomID string, start, end time.Time) bson.M {
	return bson.M{
		"room_id":   roomID,
		"status":    model.StatusBooked,
		"check_in":  bson.M{"$lte": end},
		"check_out": bson.M{"$gte": start},
	}
}

func expiredFilter(now time.Time) bson.M {
	return bson.M{
		"status":    model.StatusBooked,
		"check_out": bson.M{"$lt": now},
	}
}

func userFilter(userID string, f model.BookingFilter) bson.M {
	filter := bson.M{"user_id": userID}

	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.RoomID != "" {
		filter["room_id"] = f.RoomID
	}
	if f.CheckInFrom != nil || f.CheckInTo != nil {
		checkIn := bson.M{}
		if f.CheckInFrom != nil {
			checkIn["$gte"] = *f.CheckInFrom
		}
		if f.CheckInTo != nil {
			checkIn["$lte"] = *f.CheckInTo
		}
		filter["check_in"] = checkIn
	}

	return filter
}
