package service

import (
	"math"
	"time"
)

// nightsBetween counts calendar nights between the two instants as seen in loc.
func nightsBetween(checkIn, checkOut time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	in := checkIn.In(loc)
	out := checkOut.In(loc)

	inDay := time.Date(in.Year(), in.Month(), in.Day(), 0, 0, 0, 0, time.UTC)
	outDay := time.Date(out.Year(), out.Month(), out.Day(), 0, 0, 0, 0, time.UTC)

	return int(outDay.Sub(inDay).Hours() / 24)
}

// toMinorUnits converts an amount to whole cents.
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromMinorUnits(cents int64) float64 {
	return float64(cents) / 100
}

// totalPrice is the stay price in cents.
func totalPrice(nights int, pricePerNight float64) int64 {
	return int64(nights) * toMinorUnits(pricePerNight)
}
