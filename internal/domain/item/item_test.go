package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStack_Validate(t *testing.T) {
	assert.NoError(t, Stack{Material: "DIAMOND", Quantity: 1}.Validate())
	assert.ErrorIs(t, Stack{Material: " ", Quantity: 1}.Validate(), ErrInvalidMaterial)
	assert.ErrorIs(t, Stack{Material: "DIAMOND"}.Validate(), ErrInvalidQuantity)
}

func TestStack_Similar(t *testing.T) {
	a := Stack{Material: "DIAMOND_SWORD", Meta: `{"sharpness":5}`, Quantity: 1}

	assert.True(t, a.Similar(a.WithQuantity(3)))
	assert.False(t, a.Similar(Stack{Material: "DIAMOND_SWORD", Quantity: 1}))
	assert.False(t, a.Similar(Stack{Material: "IRON_SWORD", Meta: a.Meta, Quantity: 1}))
	assert.True(t, a.Similar(a.WithQuantity(64)))
}

func TestStack_Matches(t *testing.T) {
	s := Stack{Material: "DIAMOND_SWORD", DisplayName: "Excalibur", Quantity: 1}

	assert.True(t, s.Matches(""))
	assert.True(t, s.Matches("diamond"))
	assert.True(t, s.Matches("EXCAL"))
	assert.False(t, s.Matches("pickaxe"))
	assert.Equal(t, "Excalibur", s.Name())
	assert.Equal(t, "STONE", Stack{Material: "STONE"}.Name())
}
