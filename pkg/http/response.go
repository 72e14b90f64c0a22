package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "innkeep/pkg/errors"
)

type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type SuccessResponse struct {
	Data any `json:"data,omitempty"`
}

type PaginatedResponse struct {
	Data       any   `json:"data"`
	TotalCount int64 `json:"total_count"`
	Limit      int   `json:"limit"`
	Offset     int64 `json:"offset"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

func WriteError(w http.ResponseWriter, err error) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  apperrors.CodeInternal,
		})
	}

	resp := ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	}
	if appErr.Code == apperrors.CodeInternal {
		resp.Details = nil
	}
	return WriteJSON(w, statusFor(appErr), resp)
}

func statusFor(e *apperrors.AppError) int {
	switch e.Code {
	case apperrors.CodeInvalidInput, apperrors.CodeInvalidRange, apperrors.CodePriceMismatch:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeValidation:
		return http.StatusUnprocessableEntity
	case apperrors.CodeConflict, apperrors.CodeRoomUnavailable:
		return http.StatusConflict
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	}
	if status := e.StatusCode(); status != 0 {
		return status
	}
	return http.StatusInternalServerError
}

func WriteSuccess(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

func WriteCreated(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{Data: data})
}

func WriteAccepted(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusAccepted, SuccessResponse{Data: data})
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func WritePaginated(w http.ResponseWriter, data any, totalCount int64, limit int, offset int64) error {
	return WriteJSON(w, http.StatusOK, PaginatedResponse{
		Data:       data,
		TotalCount: totalCount,
		Limit:      limit,
		Offset:     offset,
	})
}
