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

const UsersCollectionName = "Users"

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type mongoUserRepository struct {
	readTimeout time.Duration
	collection  *mongo.Collection
}

func NewMongoUserRepository(cfg *config.Config) UserRepository {
	return &mongoUserRepository{
		readTimeout: cfg.ReadTimeout,
		collection:  cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(UsersCollectionName),
	}
}

func (r *mongoUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	var user model.User
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}
