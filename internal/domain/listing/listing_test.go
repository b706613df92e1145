package listing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusActive, StatusSold, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusExpired, true},
		{StatusActive, StatusActive, false},
		{StatusSold, StatusCancelled, false},
		{StatusCancelled, StatusSold, false},
		{StatusExpired, StatusSold, false},
		{StatusSold, StatusActive, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestListing_ExpiredAt(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := Listing{ExpiresAt: now}

	assert.True(t, l.ExpiredAt(now))
	assert.True(t, l.ExpiredAt(now.Add(time.Second)))
	assert.False(t, l.ExpiredAt(now.Add(-time.Second)))
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusActive.Terminal())
	assert.True(t, StatusSold.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusExpired.Terminal())
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(StatusActive, StatusSold))
	assert.NoError(t, ValidateTransition(StatusExpired, StatusActive))
	assert.ErrorIs(t, ValidateTransition(StatusSold, StatusExpired), ErrInvalidStatus)
}
