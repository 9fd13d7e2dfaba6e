package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainErrorPassesThroughWrapped(t *testing.T) {
	err := fmt.Errorf("update ticket: %w", NewForbidden("nope"))

	domainErr := ToDomainError(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, CodeForbidden, domainErr.Code)
	assert.Equal(t, http.StatusForbidden, domainErr.HTTPStatus)
	assert.True(t, IsForbidden(err))
	assert.False(t, IsNotFound(err))
}

func TestToDomainErrorMapsNoRows(t *testing.T) {
	domainErr := ToDomainError(fmt.Errorf("get: %w", pgx.ErrNoRows))
	assert.Equal(t, CodeNotFound, domainErr.Code)
	assert.Equal(t, http.StatusNotFound, domainErr.HTTPStatus)
}

func TestToDomainErrorMapsFiberErrors(t *testing.T) {
	domainErr := ToDomainError(fiber.NewError(http.StatusForbidden, "insufficient role"))
	assert.Equal(t, CodeForbidden, domainErr.Code)
	assert.Equal(t, "insufficient role", domainErr.Message)
}

func TestToDomainErrorHidesUnknownCauses(t *testing.T) {
	cause := errors.New("connection reset")
	domainErr := ToDomainError(cause)
	assert.Equal(t, CodeInternal, domainErr.Code)
	assert.Equal(t, "internal server error", domainErr.Message)
	assert.ErrorIs(t, domainErr, cause)
}

func TestToDomainErrorNil(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))
}
