package validators

import "go.mongodb.org/mongo-driver/bson"

var RoomValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "hotel_id", "price_per_night"},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},
			"hotel_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"type": bson.M{
				"bsonType":  "string",
				"maxLength": 50,
			},
			"price_per_night": bson.M{
				"bsonType": "number",
				"minimum":  0,
			},
			"max_occupancy": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  20,
			},
		},
	},
}
