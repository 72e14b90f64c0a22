package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"innkeep/internal/bookings/availability"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type memoryStore struct {
	mu          sync.Mutex
	bookings    map[string]*model.Booking
	saveAllFunc func(ctx context.Context, bookings []*model.Booking) (int64, error)
	saveCalls   int
}

func newMemoryStore(bookings ...*model.Booking) *memoryStore {
	s := &memoryStore{bookings: make(map[string]*model.Booking)}
	for _, b := range bookings {
		s.bookings[b.ID] = b
	}
	return s
}

func (s *memoryStore) FindExpired(ctx context.Context, now time.Time) ([]*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Booking
	for _, b := range s.bookings {
		if b.Status == model.StatusBooked && b.CheckOut.Before(now) {
			c := *b
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memoryStore) SaveAll(ctx context.Context, bookings []*model.Booking) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.saveAllFunc != nil {
		return s.saveAllFunc(ctx, bookings)
	}
	for _, b := range bookings {
		c := *b
		s.bookings[b.ID] = &c
	}
	return int64(len(bookings)), nil
}

func (s *memoryStore) status(id string) model.BookingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookings[id].Status
}

type recordingReleaser struct {
	mu    sync.Mutex
	rooms []string
	ids   map[string][]string
	err   error
}

func (r *recordingReleaser) Release(ctx context.Context, roomID string, bookingIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids == nil {
		r.ids = make(map[string][]string)
	}
	r.rooms = append(r.rooms, roomID)
	r.ids[roomID] = bookingIDs
	return r.err
}

type recordingPruner struct {
	calls  []time.Time
	pruned int
	err    error
}

func (p *recordingPruner) PruneHolds(ctx context.Context, now time.Time) (int, error) {
	p.calls = append(p.calls, now)
	return p.pruned, p.err
}

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func booking(id, room string, checkOut time.Time, status model.BookingStatus) *model.Booking {
	return &model.Booking{
		ID:       id,
		RoomID:   room,
		CheckIn:  checkOut.AddDate(0, 0, -2),
		CheckOut: checkOut,
		Status:   status,
	}
}

func TestSweep_VacatesExpiredAndReleasesEachRoomOnce(t *testing.T) {
	store := newMemoryStore(
		booking("b1", "room-1", now.Add(-time.Hour), model.StatusBooked),
		booking("b2", "room-1", now.Add(-48*time.Hour), model.StatusBooked),
		booking("b3", "room-2", now.Add(-time.Minute), model.StatusBooked),
		booking("b4", "room-3", now.Add(time.Hour), model.StatusBooked),
		booking("b5", "room-4", now.Add(-time.Hour), model.StatusVacant),
		booking("b6", "room-5", now, model.StatusBooked),
	)
	releaser := &recordingReleaser{}
	s := New(store, releaser, &recordingPruner{}, logger.Discard())

	result, err := s.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	if result.Expired != 3 || result.Saved != 3 || result.Rooms != 2 {
		t.Errorf("result = %+v", result)
	}
	for _, id := range []string{"b1", "b2", "b3"} {
		if got := store.status(id); got != model.StatusVacant {
			t.Errorf("%s status = %s, want VACANT", id, got)
		}
	}
	for _, id := range []string{"b4", "b6"} {
		if got := store.status(id); got != model.StatusBooked {
			t.Errorf("%s status = %s, want BOOKED", id, got)
		}
	}

	if len(releaser.rooms) != 2 {
		t.Fatalf("released rooms = %v, want one call per room", releaser.rooms)
	}
	if ids := releaser.ids["room-1"]; len(ids) != 2 {
		t.Errorf("room-1 released bookings = %v, want 2", ids)
	}

	second, err := s.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if second.Expired != 0 || store.saveCalls != 1 {
		t.Errorf("second sweep = %+v, save calls = %d", second, store.saveCalls)
	}
	if len(releaser.rooms) != 2 {
		t.Errorf("second sweep released again: %v", releaser.rooms)
	}
}

func TestSweep_SaveFailureSkipsRelease(t *testing.T) {
	store := newMemoryStore(booking("b1", "room-1", now.Add(-time.Hour), model.StatusBooked))
	store.saveAllFunc = func(ctx context.Context, bookings []*model.Booking) (int64, error) {
		return 0, errors.New("mongo down")
	}
	releaser := &recordingReleaser{}

	_, err := New(store, releaser, &recordingPruner{}, logger.Discard()).Sweep(context.Background(), now)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(releaser.rooms) != 0 {
		t.Errorf("release called after failed save: %v", releaser.rooms)
	}
	if got := store.status("b1"); got != model.StatusBooked {
		t.Errorf("status = %s, want BOOKED", got)
	}
}

func TestSweep_ReportsReleaseFailures(t *testing.T) {
	store := newMemoryStore(
		booking("b1", "room-1", now.Add(-time.Hour), model.StatusBooked),
		booking("b2", "room-2", now.Add(-time.Hour), model.StatusBooked),
	)
	releaser := &recordingReleaser{err: errors.New("queue down")}

	result, err := New(store, releaser, &recordingPruner{}, logger.Discard()).Sweep(context.Background(), now)
	if err == nil {
		t.Fatal("expected joined release error")
	}
	if result.ReleaseFailures != 2 || result.Saved != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestHandleSweepTask(t *testing.T) {
	store := newMemoryStore(booking("b1", "room-1", now.Add(-time.Hour), model.StatusBooked))
	s := New(store, &recordingReleaser{}, &recordingPruner{}, logger.Discard())
	s.now = func() time.Time { return now }

	if err := s.HandleSweepTask(context.Background(), nil); err != nil {
		t.Fatalf("HandleSweepTask() error = %v", err)
	}
	if got := store.status("b1"); got != model.StatusVacant {
		t.Errorf("status = %s, want VACANT", got)
	}
}

func TestSweep_PrunesHoldsEvenWithNothingExpired(t *testing.T) {
	pruner := &recordingPruner{pruned: 2}

	result, err := New(newMemoryStore(), &recordingReleaser{}, pruner, logger.Discard()).Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(pruner.calls) != 1 || !pruner.calls[0].Equal(now) {
		t.Fatalf("prune calls = %v, want one at %v", pruner.calls, now)
	}
	if result.PrunedHolds != 2 {
		t.Errorf("PrunedHolds = %d, want 2", result.PrunedHolds)
	}
}

func TestSweep_ReportsPruneFailure(t *testing.T) {
	store := newMemoryStore(booking("b1", "room-1", now.Add(-time.Hour), model.StatusBooked))
	releaser := &recordingReleaser{}
	pruner := &recordingPruner{err: errors.New("redis down")}

	result, err := New(store, releaser, pruner, logger.Discard()).Sweep(context.Background(), now)
	if err == nil {
		t.Fatal("expected prune error")
	}
	if result.Saved != 1 || len(releaser.rooms) != 1 {
		t.Errorf("bookings must still be swept: result = %+v, released = %v", result, releaser.rooms)
	}
	if got := store.status("b1"); got != model.StatusVacant {
		t.Errorf("status = %s, want VACANT", got)
	}
}

func TestSweep_ReclaimsHoldOfNeverStoredBooking(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	cache := availability.NewRedisCache(rdb, time.Second, 100*time.Millisecond, logger.Discard())

	lock, err := cache.LockRoom(ctx, "room-1")
	if err != nil {
		t.Fatal(err)
	}
	stale := model.Hold{BookingID: "lost", RoomID: "room-1", CheckIn: now.AddDate(0, 0, -3), CheckOut: now.AddDate(0, 0, -1)}
	live := model.Hold{BookingID: "live", RoomID: "room-1", CheckIn: now, CheckOut: now.AddDate(0, 0, 2)}
	for _, h := range []model.Hold{stale, live} {
		if err := cache.Hold(ctx, lock, h); err != nil {
			t.Fatal(err)
		}
	}
	lock.Unlock()

	result, err := New(newMemoryStore(), &recordingReleaser{}, cache, logger.Discard()).Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.PrunedHolds != 1 {
		t.Errorf("PrunedHolds = %d, want 1", result.PrunedHolds)
	}
	holds, err := cache.Holds(ctx, "room-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(holds) != 1 || holds[0].BookingID != "live" {
		t.Errorf("holds = %+v, want only live", holds)
	}
}
