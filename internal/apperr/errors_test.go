package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFound(CodeSeatNotFound, "seat %d not found", 7), http.StatusBadRequest},
		{"conflict", Conflict(CodeSeatUnavailable, "taken"), http.StatusBadRequest},
		{"unauthenticated", Unauthenticated("missing token"), http.StatusUnauthorized},
		{"forbidden", Forbidden("not owner"), http.StatusForbidden},
		{"foreign error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("booking failed: %w", Conflict(CodeSeatUnavailable, "seat A1 is taken"))

	assert.Equal(t, CodeSeatUnavailable, CodeOf(err))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, errors.Is(err, &Error{Code: CodeSeatUnavailable}))
	assert.False(t, errors.Is(err, &Error{Code: CodeSeatNotFound}))
}

func TestPublicMessageHidesInternals(t *testing.T) {
	err := Internal(errors.New("pq: connection refused"), "failed to load showtime")

	assert.Equal(t, "internal error", PublicMessage(err))
	assert.Equal(t, "seat A1 is taken", PublicMessage(Conflict(CodeSeatUnavailable, "seat A1 is taken")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("raw")))
}
