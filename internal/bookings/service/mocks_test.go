package service

import (
	"context"
	bookingserrors "innkeep/internal/bookings/errors"
	"innkeep/pkg/model"
	"sync"
	"time"
)

type mockBookingRepository struct {
	insertFunc          func(ctx context.Context, b *model.Booking) (bool, error)
	findByIDFunc        func(ctx context.Context, id string) (*model.Booking, error)
	saveFunc            func(ctx context.Context, b *model.Booking) error
	saveAllFunc         func(ctx context.Context, bookings []*model.Booking) (int64, error)
	findOverlappingFunc func(ctx context.Context, roomID string, start, end time.Time) ([]*model.Booking, error)
	findExpiredFunc     func(ctx context.Context, now time.Time) ([]*model.Booking, error)
	findAllFunc         func(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	countFunc           func(ctx context.Context) (int64, error)
	findByUserFunc      func(ctx context.Context, userID string, filter model.BookingFilter, limit int) ([]*model.Booking, error)
}

func (m *mockBookingRepository) Insert(ctx context.Context, b *model.Booking) (bool, error) {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, b)
	}
	return true, nil
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, bookingserrors.ErrNotFound
}

func (m *mockBookingRepository) Save(ctx context.Context, b *model.Booking) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, b)
	}
	return nil
}

func (m *mockBookingRepository) SaveAll(ctx context.Context, bookings []*model.Booking) (int64, error) {
	if m.saveAllFunc != nil {
		return m.saveAllFunc(ctx, bookings)
	}
	return int64(len(bookings)), nil
}

func (m *mockBookingRepository) FindOverlapping(ctx context.Context, roomID string, start, end time.Time) ([]*model.Booking, error) {
	if m.findOverlappingFunc != nil {
		return m.findOverlappingFunc(ctx, roomID, start, end)
	}
	return []*model.Booking{}, nil
}

func (m *mockBookingRepository) FindExpired(ctx context.Context, now time.Time) ([]*model.Booking, error) {
	if m.findExpiredFunc != nil {
		return m.findExpiredFunc(ctx, now)
	}
	return []*model.Booking{}, nil
}

func (m *mockBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	if m.findAllFunc != nil {
		return m.findAllFunc(ctx, limit, offset)
	}
	return []*model.Booking{}, nil
}

func (m *mockBookingRepository) Count(ctx context.Context) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	return 0, nil
}

func (m *mockBookingRepository) FindByUser(ctx context.Context, userID string, filter model.BookingFilter, limit int) ([]*model.Booking, error) {
	if m.findByUserFunc != nil {
		return m.findByUserFunc(ctx, userID, filter, limit)
	}
	return []*model.Booking{}, nil
}

type mockRoomRepository struct {
	rooms map[string]*model.Room
}

func (m *mockRoomRepository) FindByID(ctx context.Context, id string) (*model.Room, error) {
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	return nil, bookingserrors.ErrRoomNotFound
}

type mockUserRepository struct {
	users map[string]*model.User
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, bookingserrors.ErrUserNotFound
}

type mockPublisher struct {
	mu          sync.Mutex
	publishFunc func(ctx context.Context, b *model.Booking) error
	published   []*model.Booking
}

func (m *mockPublisher) PublishReserved(ctx context.Context, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishFunc != nil {
		if err := m.publishFunc(ctx, b); err != nil {
			return err
		}
	}
	m.published = append(m.published, b)
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

type mockReleaser struct {
	mu    sync.Mutex
	calls map[string][]string
	err   error
}

func (m *mockReleaser) Release(ctx context.Context, roomID string, bookingIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string][]string)
	}
	m.calls[roomID] = append(m.calls[roomID], bookingIDs...)
	return m.err
}
