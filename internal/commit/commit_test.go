package commit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"innkeep/internal/bookings/availability"
	bookingserrors "innkeep/internal/bookings/errors"
	"innkeep/pkg/kafka"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type mockInserter struct {
	insertFunc func(ctx context.Context, b *model.Booking) (bool, error)
}

func (m *mockInserter) Insert(ctx context.Context, b *model.Booking) (bool, error) {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, b)
	}
	return true, nil
}

type mockProducer struct {
	mu        sync.Mutex
	published []kafka.Message
	err       error
}

func (m *mockProducer) Publish(ctx context.Context, msg kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, msg)
	return nil
}

type mockReleaser struct {
	releaseFunc func(ctx context.Context, roomID string, bookingIDs ...string) error
	calls       []string
	bookingIDs  [][]string
}

func (m *mockReleaser) Release(ctx context.Context, roomID string, bookingIDs ...string) error {
	m.calls = append(m.calls, roomID)
	m.bookingIDs = append(m.bookingIDs, bookingIDs)
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, roomID, bookingIDs...)
	}
	return nil
}

type mockLedger struct {
	holds  []model.Hold
	err    error
	failed []string
}

func (m *mockLedger) Holds(ctx context.Context, roomID string) ([]model.Hold, error) {
	return m.holds, m.err
}

func (m *mockLedger) MarkCommitFailed(ctx context.Context, b *model.Booking) error {
	m.failed = append(m.failed, b.ID)
	return nil
}

type mockFinder struct {
	stored map[string]bool
	err    error
}

func (m *mockFinder) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.stored[id] {
		return &model.Booking{ID: id}, nil
	}
	return nil, bookingserrors.ErrNotFound
}

var (
	checkIn  = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	checkOut = time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)
)

func testBooking() *model.Booking {
	return &model.Booking{
		ID:         "7d1f1d5e-3c4e-4a8e-9a59-0c5b7f3b2a10",
		RoomID:     "room-1",
		UserID:     "user-1",
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		TotalPrice: 300,
		Status:     model.StatusBooked,
	}
}

func publishedMessage(t *testing.T, b *model.Booking) kafka.Message {
	t.Helper()
	producer := &mockProducer{}
	if err := NewPublisher(producer, logger.Discard()).PublishReserved(context.Background(), b); err != nil {
		t.Fatalf("PublishReserved() error = %v", err)
	}
	return producer.published[0]
}

func TestPublisher_PublishReserved(t *testing.T) {
	msg := publishedMessage(t, testBooking())

	if msg.Key != "room-1" {
		t.Errorf("key = %q, want room-1", msg.Key)
	}
	if msg.GetEventType() != EventBookingReserved {
		t.Errorf("event type = %q", msg.GetEventType())
	}
	if msg.Headers[kafka.HeaderSchemaVersion] != SchemaVersion || msg.Headers[kafka.HeaderSource] != SourceBookings {
		t.Errorf("headers = %v", msg.Headers)
	}

	var decoded model.Booking
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.ID != testBooking().ID || !decoded.CheckIn.Equal(checkIn) {
		t.Errorf("payload = %+v", decoded)
	}
}

func TestPublisher_Errors(t *testing.T) {
	p := NewPublisher(&mockProducer{err: errors.New("broker down")}, logger.Discard())

	if err := p.PublishReserved(context.Background(), &model.Booking{}); !errors.Is(err, kafka.ErrInvalidMessage) {
		t.Errorf("missing room error = %v", err)
	}
	if err := p.PublishReserved(context.Background(), testBooking()); err == nil {
		t.Error("expected broker error")
	}
}

func TestPipeline_HandleCommit(t *testing.T) {
	storeDown := errors.New("server selection timeout")

	tests := []struct {
		name       string
		msg        func(t *testing.T) kafka.Message
		insert     func(ctx context.Context, b *model.Booking) (bool, error)
		wantErr    bool
		wantType   kafka.ErrorType
		wantCause  error
		wantInsert bool
	}{
		{
			name:       "stores new booking",
			msg:        func(t *testing.T) kafka.Message { return publishedMessage(t, testBooking()) },
			wantInsert: true,
		},
		{
			name:       "duplicate is already committed",
			msg:        func(t *testing.T) kafka.Message { return publishedMessage(t, testBooking()) },
			insert:     func(ctx context.Context, b *model.Booking) (bool, error) { return false, nil },
			wantInsert: true,
		},
		{
			name: "malformed payload is permanent",
			msg: func(t *testing.T) kafka.Message {
				return kafka.Message{Key: "room-1", Value: []byte(`{not json`), Headers: map[string]string{}}
			},
			wantErr:   true,
			wantType:  kafka.ErrorTypePermanent,
			wantCause: bookingserrors.ErrMalformedMessage,
		},
		{
			name: "inverted range is permanent",
			msg: func(t *testing.T) kafka.Message {
				b := testBooking()
				b.CheckIn, b.CheckOut = b.CheckOut, b.CheckIn
				return publishedMessage(t, b)
			},
			wantErr:   true,
			wantType:  kafka.ErrorTypePermanent,
			wantCause: bookingserrors.ErrMalformedMessage,
		},
		{
			name:       "store failure is transient",
			msg:        func(t *testing.T) kafka.Message { return publishedMessage(t, testBooking()) },
			insert:     func(ctx context.Context, b *model.Booking) (bool, error) { return false, storeDown },
			wantErr:    true,
			wantType:   kafka.ErrorTypeTransient,
			wantCause:  bookingserrors.ErrTransientCommit,
			wantInsert: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inserted := false
			store := &mockInserter{insertFunc: func(ctx context.Context, b *model.Booking) (bool, error) {
				inserted = true
				if tt.insert != nil {
					return tt.insert(ctx, b)
				}
				return true, nil
			}}

			err := NewPipeline(store, logger.Discard()).HandleCommit(context.Background(), tt.msg(t))

			if inserted != tt.wantInsert {
				t.Errorf("insert called = %v, want %v", inserted, tt.wantInsert)
			}
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("HandleCommit() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if got := kafka.ClassifyError(err); got != tt.wantType {
				t.Errorf("error type = %s, want %s", got, tt.wantType)
			}
			if !errors.Is(err, tt.wantCause) {
				t.Errorf("error %v does not wrap %v", err, tt.wantCause)
			}
		})
	}
}

func TestCompensator_ResolvesRoom(t *testing.T) {
	tests := []struct {
		name     string
		msg      kafka.Message
		wantRoom string
		wantIDs  []string
		wantErr  bool
	}{
		{
			name:     "from payload",
			msg:      kafka.Message{Key: "other", Value: []byte(`{"id":"b1","room_id":"room-9"}`)},
			wantRoom: "room-9",
			wantIDs:  []string{"b1"},
		},
		{
			name:     "from key when payload is unreadable",
			msg:      kafka.Message{Key: "room-3", Value: []byte(`garbage`)},
			wantRoom: "room-3",
		},
		{
			name:    "nothing to compensate",
			msg:     kafka.Message{Value: []byte(`garbage`), Headers: map[string]string{}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			releaser := &mockReleaser{}
			ledger := &mockLedger{}
			err := NewCompensator(releaser, ledger, &mockFinder{}, logger.Discard()).HandleDeadLetter(context.Background(), tt.msg)

			if tt.wantErr {
				if err == nil || kafka.ClassifyError(err) != kafka.ErrorTypePermanent {
					t.Fatalf("error = %v, want permanent error", err)
				}
				if len(releaser.calls) != 0 {
					t.Error("release must not be called")
				}
				return
			}
			if err != nil {
				t.Fatalf("HandleDeadLetter() error = %v", err)
			}
			if len(releaser.calls) != 1 || releaser.calls[0] != tt.wantRoom {
				t.Fatalf("release calls = %v, want [%s]", releaser.calls, tt.wantRoom)
			}
			if got := releaser.bookingIDs[0]; len(got) != len(tt.wantIDs) || (len(got) == 1 && got[0] != tt.wantIDs[0]) {
				t.Errorf("released booking ids = %v, want %v", got, tt.wantIDs)
			}
			if len(tt.wantIDs) == 1 && (len(ledger.failed) != 1 || ledger.failed[0] != tt.wantIDs[0]) {
				t.Errorf("commit failure marks = %v, want %v", ledger.failed, tt.wantIDs)
			}
		})
	}
}

func TestCompensator_KeyOnlyReleasesOrphanedHolds(t *testing.T) {
	published := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := kafka.Message{
		Key:   "room-1",
		Value: []byte(`garbage`),
		Headers: map[string]string{
			kafka.HeaderTimestamp: published.Format(time.RFC3339Nano),
			kafka.HeaderDLQError:  "decode commit: malformed",
		},
	}
	ledger := &mockLedger{holds: []model.Hold{
		{BookingID: "dead", RoomID: "room-1", HeldAt: published.Add(-time.Millisecond)},
		{BookingID: "stored", RoomID: "room-1", HeldAt: published.Add(-time.Minute)},
		{BookingID: "in-flight", RoomID: "room-1", HeldAt: published.Add(time.Millisecond)},
	}}
	finder := &mockFinder{stored: map[string]bool{"stored": true}}
	releaser := &mockReleaser{}

	if err := NewCompensator(releaser, ledger, finder, logger.Discard()).HandleDeadLetter(context.Background(), msg); err != nil {
		t.Fatalf("HandleDeadLetter() error = %v", err)
	}
	if len(releaser.bookingIDs) != 1 {
		t.Fatalf("release calls = %v", releaser.calls)
	}
	if got := releaser.bookingIDs[0]; len(got) != 1 || got[0] != "dead" {
		t.Errorf("released booking ids = %v, want [dead]", got)
	}
	if len(ledger.failed) != 0 {
		t.Errorf("no snapshot, nothing to mark: %v", ledger.failed)
	}
}

func TestCompensator_KeyOnlyStoreFailureIsTransient(t *testing.T) {
	msg := kafka.Message{
		Key:     "room-1",
		Value:   []byte(`garbage`),
		Headers: map[string]string{kafka.HeaderTimestamp: time.Now().UTC().Format(time.RFC3339Nano)},
	}
	ledger := &mockLedger{holds: []model.Hold{{BookingID: "b-1", RoomID: "room-1", HeldAt: time.Now().Add(-time.Hour)}}}
	releaser := &mockReleaser{}

	err := NewCompensator(releaser, ledger, &mockFinder{err: errors.New("mongo down")}, logger.Discard()).
		HandleDeadLetter(context.Background(), msg)
	if kafka.ClassifyError(err) != kafka.ErrorTypeTransient {
		t.Fatalf("error = %v, want transient", err)
	}
	if len(releaser.calls) != 0 {
		t.Error("release must wait until holds can be checked")
	}
}

func TestCompensator_ReleaseFailureIsTransient(t *testing.T) {
	releaser := &mockReleaser{releaseFunc: func(ctx context.Context, roomID string, bookingIDs ...string) error {
		return errors.New("redis down")
	}}

	err := NewCompensator(releaser, &mockLedger{}, &mockFinder{}, logger.Discard()).
		HandleDeadLetter(context.Background(), kafka.Message{Key: "room-1"})
	if kafka.ClassifyError(err) != kafka.ErrorTypeTransient {
		t.Fatalf("error = %v, want transient", err)
	}
}

func TestCompensator_ClearsOptimisticEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	cache := availability.NewRedisCache(rdb, time.Second, 100*time.Millisecond, logger.Discard())
	releaser := availability.NewReleaser(cache, nil, 3, logger.Discard())

	b := testBooking()
	lock, err := cache.LockRoom(ctx, b.RoomID)
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Hold(ctx, lock, model.Hold{BookingID: b.ID, RoomID: b.RoomID, CheckIn: b.CheckIn, CheckOut: b.CheckOut}); err != nil {
		t.Fatal(err)
	}
	lock.Unlock()

	compensator := NewCompensator(releaser, cache, &mockFinder{}, logger.Discard())
	if err := compensator.HandleDeadLetter(ctx, publishedMessage(t, b)); err != nil {
		t.Fatalf("HandleDeadLetter() error = %v", err)
	}

	if _, found, err := cache.Lookup(ctx, b.RoomID, b.CheckIn, b.CheckOut); err != nil || found {
		t.Errorf("Lookup() found = %v, err = %v, want absent", found, err)
	}
	holds, err := cache.Holds(ctx, b.RoomID)
	if err != nil || len(holds) != 0 {
		t.Errorf("Holds() = %v, %v, want none", holds, err)
	}
	failed, found, err := cache.FailedCommit(ctx, b.ID)
	if err != nil || !found || failed.RoomID != b.RoomID {
		t.Errorf("FailedCommit() = %+v, %v, %v, want marker for %s", failed, found, err, b.ID)
	}
}
