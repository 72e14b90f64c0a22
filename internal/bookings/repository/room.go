package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "innkeep/internal/bookings/errors"
	"innkeep/pkg/config"
	"innkeep/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const RoomsCollectionName = "Rooms"

type RoomRepository interface {
	FindByID(ctx context.Context, id string) (*model.Room, error)
}

type mongoRoomRepository struct {
	readTimeout time.Duration
	collection  *mongo.Collection
}

func NewMongoRoomRepository(cfg *config.Config) RoomRepository {
	return &mongoRoomRepository{
		readTimeout: cfg.ReadTimeout,
		collection:  cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(RoomsCollectionName),
	}
}

func (r *mongoRoomRepository) FindByID(ctx context.Context, id string) (*model.Room, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	var room model.Room
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&room); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &room, nil
}
