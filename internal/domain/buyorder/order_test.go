package buyorder

import (
	"testing"

	"github.com/example/market-engine/internal/domain/item"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusActive, StatusFulfilled))
	assert.True(t, CanTransition(StatusActive, StatusCancelled))
	assert.True(t, CanTransition(StatusActive, StatusExpired))
	assert.False(t, CanTransition(StatusFulfilled, StatusCancelled))
	assert.False(t, CanTransition(StatusExpired, StatusFulfilled))
	assert.False(t, CanTransition(StatusActive, StatusActive))
}

func TestTotal(t *testing.T) {
	total := Total(decimal.NewFromInt(20), 10)
	assert.True(t, total.Equal(decimal.NewFromInt(200)), "got %s", total)

	total = Total(decimal.RequireFromString("0.25"), 3)
	assert.True(t, total.Equal(decimal.RequireFromString("0.75")), "got %s", total)
}

func TestOrder_Requested(t *testing.T) {
	o := Order{Template: item.Stack{Material: "WHEAT", Quantity: 1}, Quantity: 32}

	req := o.Requested()
	assert.Equal(t, 32, req.Quantity)
	assert.Equal(t, "WHEAT", req.Material)
	assert.Equal(t, 1, o.Template.Quantity)
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(StatusActive, StatusCancelled))
	assert.ErrorIs(t, ValidateTransition(StatusCancelled, StatusFulfilled), ErrInvalidStatus)
}
