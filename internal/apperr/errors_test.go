package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("activate: %w", ErrMaxDevices.WithMessage("2 of 2 slots used"))

	assert.True(t, errors.Is(err, ErrMaxDevices))
	assert.False(t, errors.Is(err, ErrBlocked))
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
	assert.Equal(t, "MAX_DEVICES_REACHED", CodeOf(err))
	assert.Equal(t, "MAX_DEVICES_REACHED: 2 of 2 slots used", ErrMaxDevices.WithMessage("2 of 2 slots used").Error())
}

func TestNotFoundVariantsShareCode(t *testing.T) {
	assert.True(t, errors.Is(ErrLicenseNotFound, ErrNotFound))
	assert.True(t, errors.Is(ErrProjectNotFound, ErrNotFound))
}

func TestUnknownErrorIsInternal(t *testing.T) {
	err := errors.New("connection reset")
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	assert.Equal(t, "", CodeOf(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("pem: no block")
	err := ErrMissingEnv.Wrap(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrMissingEnv)
	assert.Nil(t, ErrMissingEnv.Err)
}
