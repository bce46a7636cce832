package service

import (
	"errors"

	"booking-service/internal/apperr"
	"booking-service/internal/store"
)

// lookupError converts a store lookup failure into an application error
func lookupError(err error, code, format string, args ...interface{}) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(code, format, args...)
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(err, format, args...)
}
