package common

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestCodeAndHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   codes.Code
		status int
	}{
		{"nil", nil, codes.OK, http.StatusOK},
		{"invalid", fmt.Errorf("bad: %w", ErrInvalidInput), codes.InvalidArgument, http.StatusBadRequest},
		{"validation", ValidationErrors{{Field: "x"}}, codes.InvalidArgument, http.StatusBadRequest},
		{"not found", NewAppError("JOB", "missing", ErrNotFound), codes.NotFound, http.StatusNotFound},
		{"not ready", ErrNotReady, codes.FailedPrecondition, http.StatusConflict},
		{"unavailable", WrapError(ErrUnavailable, "queue"), codes.Unavailable, http.StatusServiceUnavailable},
		{"failed", fmt.Errorf("job: %w", ErrFailed), codes.Aborted, http.StatusUnprocessableEntity},
		{"other", fmt.Errorf("boom"), codes.Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, Code(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestAppErrorFormatting(t *testing.T) {
	err := NewAppError("CONFIG_ERROR", "read config", fmt.Errorf("eof"))
	assert.Equal(t, "CONFIG_ERROR: read config: eof", err.Error())
	assert.Equal(t, "CONFIG_ERROR: bare", NewAppError("CONFIG_ERROR", "bare", nil).Error())
	assert.Nil(t, WrapError(nil, "ignored"))
}
