package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"innkeep/internal/bookings/service"
	apperrors "innkeep/pkg/errors"
	httputil "innkeep/pkg/http"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

type AvailabilityResponse struct {
	RoomID    string `json:"room_id"`
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out"`
	Available bool   `json:"available"`
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

// Reserve answers 202: the booking is accepted and its commit is still pending.
func (h *BookingHandler) Reserve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Reserve", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	reservation, err := h.service.Reserve(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Reserve", err)
		return
	}

	if err := httputil.WriteAccepted(w, reservation); err != nil {
		h.log.Error("failed to write accepted response", "handler", "Reserve", "operation", "WriteAccepted", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reservation, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	bookings, total, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

// ListByUser passes every query parameter except limit through as a filter;
// the service rejects keys it does not know.
func (h *BookingHandler) ListByUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit, _, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListByUser", err)
		return
	}

	filters := make(map[string]string)
	for key, values := range r.URL.Query() {
		if key == "limit" || key == "offset" || len(values) == 0 {
			continue
		}
		filters[key] = strings.TrimSpace(values[0])
	}

	bookings, err := h.service.ListByUser(r.Context(), ps.ByName("user_id"), filters, limit)
	if err != nil {
		h.writeError(w, "ListByUser", err)
		return
	}

	if err := httputil.WriteSuccess(w, bookings); err != nil {
		h.log.Error("failed to write success response", "handler", "ListByUser", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.Cancel(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) CheckAvailability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	checkIn, err := httputil.ExtractTime(r, "check_in")
	if err != nil {
		h.writeError(w, "CheckAvailability", err)
		return
	}
	checkOut, err := httputil.ExtractTime(r, "check_out")
	if err != nil {
		h.writeError(w, "CheckAvailability", err)
		return
	}

	roomID := ps.ByName("room_id")
	available, err := h.service.CheckAvailability(r.Context(), roomID, checkIn, checkOut)
	if err != nil {
		h.writeError(w, "CheckAvailability", err)
		return
	}

	if err := httputil.WriteSuccess(w, AvailabilityResponse{
		RoomID:    roomID,
		CheckIn:   r.URL.Query().Get("check_in"),
		CheckOut:  r.URL.Query().Get("check_out"),
		Available: available,
	}); err != nil {
		h.log.Error("failed to write success response", "handler", "CheckAvailability", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if !apperrors.IsAppError(err) {
		h.log.Error("unexpected error from service", "handler", handler, "error", err)
	}
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Reserve)
	router.GET("/api/v1/bookings", h.GetAll)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.DELETE("/api/v1/bookings/id/:id", h.Cancel)
	router.GET("/api/v1/bookings/user/:user_id", h.ListByUser)
	router.GET("/api/v1/rooms/:room_id/availability", h.CheckAvailability)
}
