package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrUserNotFound = errors.New("user not found")

	ErrRoomNotFound = errors.New("room not found")

	ErrUnavailable = errors.New("room is not available for the requested range")

	ErrInvalidRange = errors.New("check_out must be after check_in")

	ErrPriceMismatch = errors.New("proposed price is below the room rate")

	ErrMalformedMessage = errors.New("malformed commit message")

	ErrTransientCommit = errors.New("transient commit failure")

	ErrRoomBusy = errors.New("room is locked by another reservation")

	ErrLockLost = errors.New("room lock expired or was taken over")

	ErrInvalidFilter = errors.New("unsupported booking filter")
)
