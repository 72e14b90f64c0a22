package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	bookingserrors "innkeep/internal/bookings/errors"
	apperrors "innkeep/pkg/errors"
	httputil "innkeep/pkg/http"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type mockBookingService struct {
	reserveFunc           func(ctx context.Context, req *model.ReserveRequest) (*model.Reservation, error)
	checkAvailabilityFunc func(ctx context.Context, roomID string, checkIn, checkOut time.Time) (bool, error)
	getByIDFunc           func(ctx context.Context, id string) (*model.Reservation, error)
	getAllFunc            func(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
	listByUserFunc        func(ctx context.Context, userID string, filters map[string]string, limit int) ([]*model.Booking, error)
	cancelFunc            func(ctx context.Context, id string) (*model.Booking, error)
}

func (m *mockBookingService) Reserve(ctx context.Context, req *model.ReserveRequest) (*model.Reservation, error) {
	return m.reserveFunc(ctx, req)
}

func (m *mockBookingService) CheckAvailability(ctx context.Context, roomID string, checkIn, checkOut time.Time) (bool, error) {
	return m.checkAvailabilityFunc(ctx, roomID, checkIn, checkOut)
}

func (m *mockBookingService) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockBookingService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	return m.getAllFunc(ctx, limit, offset)
}

func (m *mockBookingService) ListByUser(ctx context.Context, userID string, filters map[string]string, limit int) ([]*model.Booking, error) {
	return m.listByUserFunc(ctx, userID, filters, limit)
}

func (m *mockBookingService) Cancel(ctx context.Context, id string) (*model.Booking, error) {
	return m.cancelFunc(ctx, id)
}

func newRouter(svc *mockBookingService) *httprouter.Router {
	router := httprouter.New()
	NewBookingHandler(svc, logger.Discard()).RegisterRoutes(router)
	return router
}

func TestReserve(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{
			name:     "accepted",
			body:     `{"room_id":"room-1","user_id":"user-1","check_in":"2026-03-01T14:00:00Z","check_out":"2026-03-03T11:00:00Z","proposed_price":200}`,
			wantCode: http.StatusAccepted,
		},
		{
			name:     "malformed body",
			body:     `{"room_id":`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "price mismatch",
			body:     `{"room_id":"room-1","user_id":"user-1","check_in":"2026-03-01T14:00:00Z","check_out":"2026-03-03T11:00:00Z","proposed_price":199}`,
			err:      apperrors.PriceMismatch(199, 200, bookingserrors.ErrPriceMismatch),
			wantCode: http.StatusBadRequest,
			wantErr:  apperrors.CodePriceMismatch,
		},
		{
			name:     "room unavailable",
			body:     `{"room_id":"room-1","user_id":"user-1","check_in":"2026-03-01T14:00:00Z","check_out":"2026-03-03T11:00:00Z","proposed_price":200}`,
			err:      apperrors.RoomUnavailable("room-1", bookingserrors.ErrUnavailable),
			wantCode: http.StatusConflict,
			wantErr:  apperrors.CodeRoomUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockBookingService{
				reserveFunc: func(ctx context.Context, req *model.ReserveRequest) (*model.Reservation, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.Reservation{
						Booking:     &model.Booking{ID: "b1", RoomID: req.RoomID, Status: model.StatusBooked},
						CommitState: model.CommitPending,
					}, nil
				},
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			newRouter(svc).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}

			if tt.wantCode == http.StatusAccepted {
				var resp struct {
					Data model.Reservation `json:"data"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatal(err)
				}
				if resp.Data.CommitState != model.CommitPending || resp.Data.Booking.ID != "b1" {
					t.Errorf("response = %+v", resp.Data)
				}
			}
			if tt.wantErr != "" {
				var resp httputil.ErrorResponse
				_ = json.Unmarshal(rec.Body.Bytes(), &resp)
				if resp.Code != tt.wantErr {
					t.Errorf("code = %s, want %s", resp.Code, tt.wantErr)
				}
			}
		})
	}
}

func TestCheckAvailability(t *testing.T) {
	var gotRoom string
	svc := &mockBookingService{
		checkAvailabilityFunc: func(ctx context.Context, roomID string, checkIn, checkOut time.Time) (bool, error) {
			gotRoom = roomID
			return true, nil
		},
	}
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/rooms/room-7/availability?check_in=2026-03-01T14:00:00Z&check_out=2026-03-02T11:00:00Z", nil))

	if rec.Code != http.StatusOK || gotRoom != "room-7" {
		t.Fatalf("status = %d, room = %q", rec.Code, gotRoom)
	}
	var resp struct {
		Data AvailabilityResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Data.Available {
		t.Error("expected available = true")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rooms/room-7/availability?check_in=tomorrow", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", rec.Code)
	}
}

func TestListByUser_PassesFilters(t *testing.T) {
	var gotFilters map[string]string
	var gotLimit int
	svc := &mockBookingService{
		listByUserFunc: func(ctx context.Context, userID string, filters map[string]string, limit int) ([]*model.Booking, error) {
			gotFilters = filters
			gotLimit = limit
			return []*model.Booking{}, nil
		},
	}

	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bookings/user/user-1?status=BOOKED&limit=5", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotFilters["status"] != "BOOKED" || len(gotFilters) != 1 {
		t.Errorf("filters = %v", gotFilters)
	}
	if gotLimit != 5 {
		t.Errorf("limit = %d, want 5", gotLimit)
	}
}

func TestGetAll_InvalidQueryParameters(t *testing.T) {
	called := false
	svc := &mockBookingService{
		getAllFunc: func(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
			called = true
			return nil, 0, nil
		},
	}

	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bookings?limit=abc", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if called {
		t.Error("service must not be called with invalid pagination")
	}
}

func TestGetByIDAndCancel(t *testing.T) {
	svc := &mockBookingService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Reservation, error) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		},
		cancelFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{ID: id, Status: model.StatusVacant}, nil
		},
	}
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bookings/id/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GetByID status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/bookings/id/b1", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Cancel status = %d, want 200", rec.Code)
	}
}
