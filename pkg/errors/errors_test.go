package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error carries status", New(ErrInvalidInput, http.StatusTeapot, "odd"), http.StatusTeapot},
		{"format helper", Format("bad blob"), http.StatusBadRequest},
		{"invalid helper", Invalid("record %q", "x"), http.StatusBadRequest},
		{"not found helper", NotFound("record %q", "x"), http.StatusNotFound},
		{"not found", fmt.Errorf("loading: %w", ErrRecordNotFound), http.StatusNotFound},
		{"invalid format", ErrInvalidFormat, http.StatusBadRequest},
		{"unavailable", ErrUnavailable, http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestFormatUnwraps(t *testing.T) {
	err := fmt.Errorf("importing: %w", Format("line %d", 3))
	assert.True(t, IsFormat(err))
	assert.True(t, errors.Is(err, ErrInvalidFormat))
	assert.Contains(t, err.Error(), "line 3")
	assert.False(t, IsFormat(ErrInternal))
}
