package autherr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindsMatchBySentinel(t *testing.T) {
	err := NotFoundf("User with email: %s not found", "a@x.com")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, "User with email: a@x.com not found", err.Error())
}

func TestWrappedErrorStillMatches(t *testing.T) {
	err := fmt.Errorf("service.Login: %w", InvalidCredentialsf("Email or password invalid"))

	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	var authErr *Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, KindInvalidCredentials, authErr.Kind)
	assert.Equal(t, "Email or password invalid", authErr.Message)
}

func TestDistinctKindsDoNotMatch(t *testing.T) {
	kinds := []error{
		ErrNotFound,
		ErrDuplicateEmail,
		ErrUnauthorized,
		ErrForbidden,
		ErrInvalidCredentials,
		ErrNotificationFailed,
	}

	for i, a := range kinds {
		for j, b := range kinds {
			if i == j {
				assert.True(t, errors.Is(a, b))
			} else {
				assert.False(t, errors.Is(a, b), "kind %d should not match kind %d", i, j)
			}
		}
	}
}
