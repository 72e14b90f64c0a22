package availability

import (
	"innkeep/pkg/model"
	"time"
)

// Overlaps reports whether an existing booking conflicts with the candidate range.
// Boundaries are inclusive: a checkout on the candidate's check-in instant conflicts.
func Overlaps(existing *model.Booking, start, end time.Time) bool {
	return RangesOverlap(existing.CheckIn, existing.CheckOut, start, end)
}

func RangesOverlap(checkIn, checkOut, start, end time.Time) bool {
	return !(checkOut.Before(start) || checkIn.After(end))
}

// AnyOverlaps returns the first booking that conflicts with the range, or nil.
func AnyOverlaps(bookings []*model.Booking, start, end time.Time) *model.Booking {
	for _, b := range bookings {
		if b.Status != model.StatusBooked {
			continue
		}
		if Overlaps(b, start, end) {
			return b
		}
	}
	return nil
}
