package model

type Room struct {
	ID            string  `json:"id" bson:"_id"`
	HotelID       string  `json:"hotel_id" bson:"hotel_id"`
	Type          string  `json:"type" bson:"type"`
	PricePerNight float64 `json:"price_per_night" bson:"price_per_night"`
	MaxOccupancy  int     `json:"max_occupancy" bson:"max_occupancy"`
}
