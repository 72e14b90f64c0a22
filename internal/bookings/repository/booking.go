package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "innkeep/internal/bookings/errors"
	"innkeep/pkg/config"
	"innkeep/pkg/model"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bookings"
)

type mongoBookingRepository struct {
	readTimeout  time.Duration
	writeTimeout time.Duration
	collection   *mongo.Collection
}

type BookingRepository interface {
	Insert(ctx context.Context, booking *model.Booking) (bool, error)
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	Save(ctx context.Context, booking *model.Booking) error
	SaveAll(ctx context.Context, bookings []*model.Booking) (int64, error)
	FindOverlapping(ctx context.Context, roomID string, start, end time.Time) ([]*model.Booking, error)
	FindExpired(ctx context.Context, now time.Time) ([]*model.Booking, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	Count(ctx context.Context) (int64, error)
	FindByUser(ctx context.Context, userID string, filter model.BookingFilter, limit int) ([]*model.Booking, error)
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		collection:   db.Collection(CollectionName),
	}
}

// withTimeout never extends a deadline the caller already set.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

// Insert writes a booking under its pre-assigned id. A duplicate key means the
// same commit message was already applied, so it reports inserted=false and no error.
func (r *mongoBookingRepository) Insert(ctx context.Context, booking *model.Booking) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	if booking.ID == "" {
		return false, fmt.Errorf("%w: empty id", bookingserrors.ErrInvalidID)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert booking: %w", err)
	}
	return true, nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) Save(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	booking.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": booking.ID}, statusUpdate(booking))
	if err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	if result.MatchedCount == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

// SaveAll persists the status of every booking in one unordered bulk write.
func (r *mongoBookingRepository) SaveAll(ctx context.Context, bookings []*model.Booking) (int64, error) {
	if len(bookings) == 0 {
		return 0, nil
	}

	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	writes := make([]mongo.WriteModel, 0, len(bookings))
	for _, b := range bookings {
		b.UpdatedAt = now
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": b.ID}).
			SetUpdate(statusUpdate(b)))
	}

	result, err := r.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("failed to save %d bookings: %w", len(bookings), err)
	}
	return result.ModifiedCount, nil
}

func (r *mongoBookingRepository) FindOverlapping(ctx context.Context, roomID string, start, end time.Time) ([]*model.Booking, error) {
	return r.find(ctx, overlapFilter(roomID, start, end), options.Find().SetSort(bson.D{{Key: "check_in", Value: 1}}))
}

func (r *mongoBookingRepository) FindExpired(ctx context.Context, now time.Time) ([]*model.Booking, error) {
	return r.find(ctx, expiredFilter(now), options.Find().SetSort(bson.D{{Key: "room_id", Value: 1}}))
}

func (r *mongoBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "check_in", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	return r.find(ctx, bson.M{}, opts)
}

func (r *mongoBookingRepository) FindByUser(ctx context.Context, userID string, filter model.BookingFilter, limit int) ([]*model.Booking, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "check_in", Value: -1}}).
		SetLimit(int64(limit))

	return r.find(ctx, userFilter(userID, filter), opts)
}

func (r *mongoBookingRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	return count, nil
}

func (r *mongoBookingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := []*model.Booking{}
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func statusUpdate(b *model.Booking) bson.M {
	return bson.M{
		"$set": bson.M{
			"status":     b.Status,
			"updated_at": b.UpdatedAt,
		},
	}
}
