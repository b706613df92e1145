package market

import (
	"errors"

	"github.com/example/market-engine/internal/escrow"
)

// Kind classifies a failed Result.
type Kind string

const (
	KindValidation Kind = "validation"
	KindPermission Kind = "permission"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindEconomy    Kind = "economy"
	KindInternal   Kind = "internal"
)

// Message keys handed to the presentation layer for localization.
const (
	MsgListingCreated      = "listing.created"
	MsgListingInvalidItem  = "listing.invalid_item"
	MsgListingPriceTooLow  = "listing.price_too_low"
	MsgListingLimitReached = "listing.limit_reached"
	MsgListingItemMissing  = "listing.item_missing"
	MsgListingNotFound     = "listing.not_found"
	MsgListingOwnListing   = "listing.own_listing"
	MsgListingNotOwner     = "listing.not_owner"
	MsgListingUnavailable  = "listing.unavailable"
	MsgListingPurchased    = "listing.purchased"
	MsgListingCancelled    = "listing.cancelled"

	MsgOrderCreated         = "order.created"
	MsgOrderInvalidItem     = "order.invalid_item"
	MsgOrderInvalidQuantity = "order.invalid_quantity"
	MsgOrderInvalidPrice    = "order.invalid_price"
	MsgOrderPriceTooLow     = "order.price_too_low"
	MsgOrderLimitReached    = "order.limit_reached"
	MsgOrderNotFound        = "order.not_found"
	MsgOrderOwnOrder        = "order.own_order"
	MsgOrderNotOwner        = "order.not_owner"
	MsgOrderMissingItems    = "order.missing_items"
	MsgOrderUnavailable     = "order.unavailable"
	MsgOrderFulfilled       = "order.fulfilled"
	MsgOrderCancelled       = "order.cancelled"

	MsgReturnsClaimed       = "returns.claimed"
	MsgReturnsNone          = "returns.none"
	MsgReturnsInventoryFull = "returns.inventory_full"

	MsgEconomyInsufficientFunds = "economy.insufficient_funds"
	MsgEconomyTimeout           = "economy.timeout"
	MsgEconomyFailure           = "economy.failure"

	MsgInternalError = "error.internal"
)

// Notification keys sent to players through the Notifier.
const (
	NoteListingSold    = "listing.sold"
	NoteListingExpired = "listing.expired"
	NoteOrderFulfilled = "order.fulfilled"
	NoteOrderExpired   = "order.expired"
	NoteReturnsPending = "returns.pending"
)

// Result is what every mutating operation reports. Expected business
// outcomes are never returned as errors.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
	Kind    Kind   `json:"kind,omitempty"`
}

func succeeded(msg, id string) Result {
	return Result{Success: true, Message: msg, ID: id}
}

func failed(kind Kind, msg string) Result {
	return Result{Message: msg, Kind: kind}
}

func internalFailure() Result {
	return failed(KindInternal, MsgInternalError)
}

// economyFailure maps an escrow error; timeouts are economy failures too.
func economyFailure(err error) Result {
	switch {
	case errors.Is(err, escrow.ErrTimeout):
		return failed(KindEconomy, MsgEconomyTimeout)
	case errors.Is(err, escrow.ErrInsufficientFunds):
		return failed(KindEconomy, MsgEconomyInsufficientFunds)
	default:
		return failed(KindEconomy, MsgEconomyFailure)
	}
}
