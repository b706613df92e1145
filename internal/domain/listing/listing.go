package listing

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/market-engine/internal/domain/item"
	"github.com/shopspring/decimal"
)

const AggregateType = "Listing"

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSold      Status = "SOLD"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

var ErrInvalidStatus = errors.New("invalid listing status transition")

// validTransitions defines allowed state transitions. The reverse edges out
// of SOLD, CANCELLED and EXPIRED exist only for compensation: they are taken
// by the caller that won the forward transition, never by anyone else.
var validTransitions = map[Status][]Status{
	StatusActive:    {StatusSold, StatusCancelled, StatusExpired},
	StatusSold:      {StatusActive},
	StatusCancelled: {StatusActive},
	StatusExpired:   {StatusActive},
}

// CanTransition checks if from -> to is an allowed edge
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition reports a disallowed edge as ErrInvalidStatus.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, from, to)
	}
	return nil
}

func (s Status) Terminal() bool {
	return s != StatusActive
}

type Listing struct {
	ID        string          `json:"id"`
	SellerID  string          `json:"seller_id"`
	Item      item.Stack      `json:"item"`
	Price     decimal.Decimal `json:"price"`
	Deposit   decimal.Decimal `json:"deposit"`
	Live      bool            `json:"live"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (l Listing) GetID() string         { return l.ID }
func (l Listing) OwnerID() string       { return l.SellerID }
func (l Listing) CurrentStatus() Status { return l.Status }

// ExpiredAt reports whether the listing's lifetime is over at now.
func (l Listing) ExpiredAt(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
