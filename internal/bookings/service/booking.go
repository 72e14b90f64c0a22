package service

import (
	"context"
	"errors"
	"fmt"
	"innkeep/internal/bookings/availability"
	bookingserrors "innkeep/internal/bookings/errors"
	"innkeep/internal/bookings/repository"
	"innkeep/internal/bookings/validator"
	"innkeep/pkg/config"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/model"
	"sync"
	"time"

	"github.com/google/uuid"
)

type BookingService interface {
	Reserve(ctx context.Context, req *model.ReserveRequest) (*model.Reservation, error)
	CheckAvailability(ctx context.Context, roomID string, checkIn, checkOut time.Time) (bool, error)
	GetByID(ctx context.Context, id string) (*model.Reservation, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
	ListByUser(ctx context.Context, userID string, filters map[string]string, limit int) ([]*model.Booking, error)
	Cancel(ctx context.Context, id string) (*model.Booking, error)
}

type AvailabilityCache interface {
	Lookup(ctx context.Context, roomID string, checkIn, checkOut time.Time) (bool, bool, error)
	Holds(ctx context.Context, roomID string) ([]model.Hold, error)
	LockRoom(ctx context.Context, roomID string) (*availability.RoomLock, error)
	Store(ctx context.Context, lock *availability.RoomLock, checkIn, checkOut time.Time, available bool) error
	Hold(ctx context.Context, lock *availability.RoomLock, hold model.Hold) error
	FailedCommit(ctx context.Context, bookingID string) (*model.Booking, bool, error)
}

type RoomReleaser interface {
	Release(ctx context.Context, roomID string, bookingIDs ...string) error
}

type CommitPublisher interface {
	PublishReserved(ctx context.Context, booking *model.Booking) error
}

type bookingService struct {
	repo      repository.BookingRepository
	rooms     repository.RoomRepository
	users     repository.UserRepository
	cache     AvailabilityCache
	releaser  RoomReleaser
	publisher CommitPublisher
	validator *validator.BookingValidator
	cfg       *config.Config
	now       func() time.Time
}

func NewBookingService(
	repo repository.BookingRepository,
	rooms repository.RoomRepository,
	users repository.UserRepository,
	cache AvailabilityCache,
	releaser RoomReleaser,
	publisher CommitPublisher,
	validator *validator.BookingValidator,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		rooms:     rooms,
		users:     users,
		cache:     cache,
		releaser:  releaser,
		publisher: publisher,
		validator: validator,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Reserve accepts a booking and hands it to the commit pipeline. The returned
// reservation is pending until the booking is durably stored.
func (s *bookingService) Reserve(ctx context.Context, req *model.ReserveRequest) (*model.Reservation, error) {
	if req == nil {
		return nil, apperrors.InvalidInput("Reservation request cannot be empty")
	}
	if !req.CheckIn.Before(req.CheckOut) {
		return nil, apperrors.InvalidRange("check_out must be after check_in", bookingserrors.ErrInvalidRange)
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}

	room, err := s.resolveParties(ctx, req.UserID, req.RoomID)
	if err != nil {
		return nil, err
	}

	booking, err := s.holdRoom(ctx, req, room)
	if err != nil {
		return nil, err
	}

	if err := s.publisher.PublishReserved(ctx, booking); err != nil {
		s.cfg.Log.Error("Failed to enqueue booking commit, rolling back hold",
			"id", booking.ID,
			"room_id", booking.RoomID,
			"error", err,
		)
		if relErr := s.releaser.Release(context.WithoutCancel(ctx), booking.RoomID, booking.ID); relErr != nil {
			s.cfg.Log.Error("Failed to roll back room hold", "id", booking.ID, "room_id", booking.RoomID, "error", relErr)
		}
		return nil, apperrors.Internal("Failed to enqueue booking commit", err)
	}

	s.cfg.Log.Info("Booking accepted",
		"id", booking.ID,
		"room_id", booking.RoomID,
		"user_id", booking.UserID,
		"check_in", booking.CheckIn,
		"check_out", booking.CheckOut,
		"total_price", booking.TotalPrice,
	)

	return &model.Reservation{
		Booking:     booking,
		CommitState: model.CommitPending,
	}, nil
}

// holdRoom runs the check-and-reserve section under the room lock. Work is
// bounded by the lock lifetime and the final write is rejected if the lock
// was lost, so two overlapping requests can never both be held.
func (s *bookingService) holdRoom(ctx context.Context, req *model.ReserveRequest, room *model.Room) (*model.Booking, error) {
	lock, err := s.cache.LockRoom(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrRoomBusy) {
			return nil, apperrors.Conflict("Room is being reserved by another request, please retry").
				WithDetails(map[string]any{"room_id": req.RoomID})
		}
		s.cfg.Log.Error("Failed to lock room", "room_id", req.RoomID, "error", err)
		return nil, apperrors.Unavailable("Availability cache")
	}
	defer lock.Unlock()

	lockCtx, cancel := lock.Bound(ctx)
	defer cancel()

	booking, err := s.reserveLocked(lockCtx, lock, req, room)
	if err != nil && ctx.Err() == nil && errors.Is(lockCtx.Err(), context.DeadlineExceeded) {
		s.cfg.Log.Warn("Room lock expired during reservation",
			"room_id", req.RoomID,
			"lock_expired_at", lock.ExpiresAt(),
			"error", err,
		)
		return nil, apperrors.Timeout("Reservation did not complete while the room was held, please retry")
	}
	return booking, err
}

func (s *bookingService) reserveLocked(ctx context.Context, lock *availability.RoomLock, req *model.ReserveRequest, room *model.Room) (*model.Booking, error) {
	available, err := s.isAvailable(ctx, req.RoomID, req.CheckIn, req.CheckOut, lock)
	if err != nil {
		return nil, err
	}
	if !available {
		s.cfg.Log.Info("Room unavailable for requested range",
			"room_id", req.RoomID,
			"check_in", req.CheckIn,
			"check_out", req.CheckOut,
		)
		return nil, apperrors.RoomUnavailable(req.RoomID, bookingserrors.ErrUnavailable)
	}

	nights := nightsBetween(req.CheckIn, req.CheckOut, s.cfg.PricingLocation)
	if nights <= 0 {
		return nil, apperrors.InvalidRange("Stay must span at least one night", bookingserrors.ErrInvalidRange)
	}
	required := totalPrice(nights, room.PricePerNight)
	if toMinorUnits(req.ProposedPrice) < required {
		return nil, apperrors.PriceMismatch(req.ProposedPrice, fromMinorUnits(required), bookingserrors.ErrPriceMismatch)
	}

	now := s.now()
	booking := &model.Booking{
		ID:         uuid.NewString(),
		RoomID:     req.RoomID,
		UserID:     req.UserID,
		CheckIn:    req.CheckIn,
		CheckOut:   req.CheckOut,
		TotalPrice: req.ProposedPrice,
		Status:     model.StatusBooked,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.cache.Hold(ctx, lock, model.Hold{
		BookingID: booking.ID,
		RoomID:    booking.RoomID,
		CheckIn:   booking.CheckIn,
		CheckOut:  booking.CheckOut,
		HeldAt:    now,
	})
	if errors.Is(err, bookingserrors.ErrLockLost) {
		s.cfg.Log.Warn("Room lock lost before hold, rejecting reservation", "room_id", booking.RoomID, "id", booking.ID)
		return nil, apperrors.Conflict("Room hold expired before the reservation completed, please retry").
			WithDetails(map[string]any{"room_id": booking.RoomID})
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to hold room", err)
	}

	return booking, nil
}

// CheckAvailability answers from the cache, pending holds and the store. It never
// writes the cache since it runs outside the room lock.
func (s *bookingService) CheckAvailability(ctx context.Context, roomID string, checkIn, checkOut time.Time) (bool, error) {
	if roomID == "" {
		return false, apperrors.InvalidInput("Room ID cannot be empty")
	}
	if !checkIn.Before(checkOut) {
		return false, apperrors.InvalidRange("check_out must be after check_in", bookingserrors.ErrInvalidRange)
	}

	if _, err := s.rooms.FindByID(ctx, roomID); err != nil {
		return false, s.lookupError("Room", roomID, err)
	}

	return s.isAvailable(ctx, roomID, checkIn, checkOut, nil)
}

// isAvailable caches a store answer only when called under lock.
func (s *bookingService) isAvailable(ctx context.Context, roomID string, checkIn, checkOut time.Time, lock *availability.RoomLock) (bool, error) {
	cached, found, err := s.cache.Lookup(ctx, roomID, checkIn, checkOut)
	if err != nil {
		s.cfg.Log.Error("Failed to read availability cache", "room_id", roomID, "error", err)
		return false, apperrors.Unavailable("Availability cache")
	}
	if found && !cached {
		return false, nil
	}

	holds, err := s.cache.Holds(ctx, roomID)
	if err != nil {
		s.cfg.Log.Error("Failed to read room holds", "room_id", roomID, "error", err)
		return false, apperrors.Unavailable("Availability cache")
	}
	if h := availability.HoldConflict(holds, "", checkIn, checkOut); h != nil {
		s.cfg.Log.Debug("Range conflicts with pending hold", "room_id", roomID, "booking_id", h.BookingID)
		return false, nil
	}

	if found {
		return cached, nil
	}

	existing, err := s.repo.FindOverlapping(ctx, roomID, checkIn, checkOut)
	if err != nil {
		return false, apperrors.Internal("Failed to check existing bookings", err)
	}
	available := availability.AnyOverlaps(existing, checkIn, checkOut) == nil

	if lock != nil {
		if err := s.cache.Store(ctx, lock, checkIn, checkOut, available); err != nil {
			s.cfg.Log.Warn("Failed to cache availability", "room_id", roomID, "error", err)
		}
	}
	return available, nil
}

func (s *bookingService) resolveParties(ctx context.Context, userID, roomID string) (*model.Room, error) {
	var room *model.Room
	var errUser, errRoom error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_, errUser = s.users.FindByID(ctx, userID)
	}()

	go func() {
		defer wg.Done()
		room, errRoom = s.rooms.FindByID(ctx, roomID)
	}()

	wg.Wait()
	if errUser != nil {
		return nil, s.lookupError("User", userID, errUser)
	}
	if errRoom != nil {
		return nil, s.lookupError("Room", roomID, errRoom)
	}
	return room, nil
}

func (s *bookingService) lookupError(resource, id string, err error) error {
	if errors.Is(err, bookingserrors.ErrUserNotFound) || errors.Is(err, bookingserrors.ErrRoomNotFound) {
		return apperrors.NotFoundWithID(resource, id)
	}
	s.cfg.Log.Error("Failed to resolve "+resource, "id", id, "error", err)
	return apperrors.Internal(fmt.Sprintf("Failed to retrieve %s", resource), err)
}

// GetByID reads the durable store. A booking that is missing there but was
// dead-lettered is reported with a failed commit state.
func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	booking, err := s.findBooking(ctx, id)
	if err == nil {
		return &model.Reservation{Booking: booking, CommitState: model.CommitCommitted}, nil
	}
	if apperrors.AsAppError(err).Code != apperrors.CodeNotFound {
		return nil, err
	}

	failed, found, ferr := s.cache.FailedCommit(ctx, id)
	if ferr != nil {
		s.cfg.Log.Warn("Failed to read commit failure marker", "id", id, "error", ferr)
	}
	if found {
		return &model.Reservation{Booking: failed, CommitState: model.CommitFailed}, nil
	}
	return nil, err
}

func (s *bookingService) findBooking(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}

	return booking, nil
}

func (s *bookingService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

func (s *bookingService) ListByUser(ctx context.Context, userID string, filters map[string]string, limit int) ([]*model.Booking, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("User ID cannot be empty")
	}

	filter, err := repository.ParseBookingFilter(filters)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	bookings, err := s.repo.FindByUser(ctx, userID, filter, config.NormalizePaginationLimit(limit))
	if err != nil {
		s.cfg.Log.Error("Failed to list user bookings", "user_id", userID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve bookings", err)
	}

	s.cfg.Log.Debug("User booking listing completed", "user_id", userID, "count", len(bookings))
	return bookings, nil
}

// Cancel vacates a committed booking and releases its room. Cancelling an
// already vacant booking is a no-op.
func (s *bookingService) Cancel(ctx context.Context, id string) (*model.Booking, error) {
	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == model.StatusVacant {
		return booking, nil
	}

	booking.Status = model.StatusVacant
	if err := s.repo.Save(ctx, booking); err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		s.cfg.Log.Error("Failed to cancel booking", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to cancel booking", err)
	}

	if err := s.releaser.Release(ctx, booking.RoomID, booking.ID); err != nil {
		s.cfg.Log.Error("Booking cancelled but room release failed",
			"id", booking.ID,
			"room_id", booking.RoomID,
			"error", err,
		)
	}

	s.cfg.Log.Info("Booking cancelled", "id", booking.ID, "room_id", booking.RoomID)
	return booking, nil
}

func (s *bookingService) validate(req *model.ReserveRequest) error {
	if err := s.validator.ValidateReserve(req); err != nil {
		s.cfg.Log.Warn("Reservation validation failed", "error", err)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apperrors.Validation("Reservation validation failed", verrs.Details())
		}
		return apperrors.Validation("Reservation validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}
