package item

import (
	"errors"
	"strings"
)

var (
	ErrInvalidMaterial = errors.New("item material is required")
	ErrInvalidQuantity = errors.New("item quantity must be positive")
)

// Stack is an immutable snapshot of an item stack. Meta holds the serialized
// item metadata (display name, enchantments, ...) exactly as the game
// server handed it over; two stacks with equal Material and Meta are
// interchangeable.
type Stack struct {
	Material    string `json:"material"`
	DisplayName string `json:"display_name,omitempty"`
	Meta        string `json:"meta,omitempty"`
	Quantity    int    `json:"quantity"`
}

func (s Stack) Validate() error {
	if strings.TrimSpace(s.Material) == "" {
		return ErrInvalidMaterial
	}
	if s.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// Similar reports whether o can be stacked with s, ignoring quantity.
func (s Stack) Similar(o Stack) bool {
	return s.Material == o.Material && s.Meta == o.Meta
}

func (s Stack) WithQuantity(n int) Stack {
	s.Quantity = n
	return s
}

// Name is the label shown to players.
func (s Stack) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Material
}

// Matches is used by browse filters.
func (s Stack) Matches(search string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s.Material), search) ||
		strings.Contains(strings.ToLower(s.DisplayName), search)
}

// Outcomes reported by inventory collaborators.
var (
	ErrInsufficientSpace    = errors.New("insufficient inventory space")
	ErrInsufficientQuantity = errors.New("insufficient item quantity")
)
