package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/example/market-engine/internal/api/middleware"
	"github.com/example/market-engine/internal/domain/item"
	"github.com/example/market-engine/internal/infrastructure/store"
	"github.com/example/market-engine/internal/market"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	manager *market.Manager
	events  store.EventStoreInterface
}

// NewHandlers builds the HTTP handlers. events may be nil, in which case the
// audit endpoint reports no journal.
func NewHandlers(manager *market.Manager, events store.EventStoreInterface) *Handlers {
	return &Handlers{manager: manager, events: events}
}

// Listing Handlers

type createListingRequest struct {
	Item     item.Stack      `json:"item"`
	Price    decimal.Decimal `json:"price"`
	Duration string          `json:"duration,omitempty"`
	Live     bool            `json:"live"`
}

func (h *Handlers) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	duration, err := parseDuration(req.Duration)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.manager.CreateListing(r.Context(), market.CreateListing{
		SellerID: middleware.GetPlayerID(r.Context()),
		Item:     req.Item,
		Price:    req.Price,
		Duration: duration,
		Live:     req.Live,
	})
	respondResult(w, http.StatusCreated, res, err)
}

func (h *Handlers) GetListings(w http.ResponseWriter, r *http.Request) {
	listings := h.manager.ListActiveListings(queryFrom(r))
	respondJSON(w, http.StatusOK, listings)
}

func (h *Handlers) PurchaseListing(w http.ResponseWriter, r *http.Request) {
	res, err := h.manager.PurchaseListing(r.Context(), middleware.GetPlayerID(r.Context()), r.PathValue("id"))
	respondResult(w, http.StatusOK, res, err)
}

func (h *Handlers) CancelListing(w http.ResponseWriter, r *http.Request) {
	res, err := h.manager.CancelListing(r.Context(), middleware.GetPlayerID(r.Context()), r.PathValue("id"))
	respondResult(w, http.StatusOK, res, err)
}

// Order Handlers

type createOrderRequest struct {
	Template     item.Stack      `json:"template"`
	PricePerItem decimal.Decimal `json:"price_per_item"`
	Quantity     int             `json:"quantity"`
	Duration     string          `json:"duration,omitempty"`
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	duration, err := parseDuration(req.Duration)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.manager.CreateOrder(r.Context(), market.CreateOrder{
		BuyerID:      middleware.GetPlayerID(r.Context()),
		Template:     req.Template,
		PricePerItem: req.PricePerItem,
		Quantity:     req.Quantity,
		Duration:     duration,
	})
	respondResult(w, http.StatusCreated, res, err)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.manager.ListActiveOrders(queryFrom(r))
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) FulfillOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.manager.FulfillOrder(r.Context(), middleware.GetPlayerID(r.Context()), r.PathValue("id"))
	respondResult(w, http.StatusOK, res, err)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.manager.CancelOrder(r.Context(), middleware.GetPlayerID(r.Context()), r.PathValue("id"))
	respondResult(w, http.StatusOK, res, err)
}

// Live queue, returns and history

func (h *Handlers) GetLiveQueue(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.manager.ListQueuedLiveAuctions())
}

func (h *Handlers) GetReturns(w http.ResponseWriter, r *http.Request) {
	count := h.manager.CountPendingReturnItems(middleware.GetPlayerID(r.Context()))
	respondJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *Handlers) ClaimReturns(w http.ResponseWriter, r *http.Request) {
	res, err := h.manager.Claim(r.Context(), middleware.GetPlayerID(r.Context()))
	if err != nil {
		log.Printf("[API] Claim failed: %v", err)
	}
	status := http.StatusOK
	if !res.Success {
		status = statusFor(res.Kind)
	}
	respondJSON(w, status, res)
}

func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.manager.GetHistory(r.Context(), middleware.GetPlayerID(r.Context()))
	if err != nil {
		log.Printf("[API] History lookup failed: %v", err)
		respondError(w, http.StatusInternalServerError, market.MsgInternalError)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

type appraiseResponse struct {
	Price   decimal.Decimal `json:"price"`
	Deposit decimal.Decimal `json:"deposit"`
	Known   bool            `json:"known"`
}

// Appraise suggests a price for an item and quotes the listing deposit.
func (h *Handlers) Appraise(w http.ResponseWriter, r *http.Request) {
	var stack item.Stack
	if err := json.NewDecoder(r.Body).Decode(&stack); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := stack.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, ok := h.manager.Appraise(stack)
	respondJSON(w, http.StatusOK, appraiseResponse{
		Price:   price,
		Deposit: h.manager.Deposit(price),
		Known:   ok,
	})
}

// Sweep runs an expiry pass immediately.
func (h *Handlers) Sweep(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.manager.ExpireDue(r.Context()))
}

// GetEvents returns the journaled lifecycle events of one listing or order.
func (h *Handlers) GetEvents(w http.ResponseWriter, r *http.Request) {
	h.respondEvents(w, r, func() ([]store.Event, error) {
		return h.events.GetEvents(r.Context(), r.PathValue("id"))
	})
}

// GetAllEvents returns the whole journal in append order.
func (h *Handlers) GetAllEvents(w http.ResponseWriter, r *http.Request) {
	h.respondEvents(w, r, func() ([]store.Event, error) {
		return h.events.GetAllEvents(r.Context())
	})
}

func (h *Handlers) respondEvents(w http.ResponseWriter, r *http.Request, load func() ([]store.Event, error)) {
	if h.events == nil {
		respondError(w, http.StatusNotFound, "no journal configured")
		return
	}
	events, err := load()
	if err != nil {
		log.Printf("[API] Failed to load events for %s: %v", r.URL.Path, err)
		respondError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	respondJSON(w, http.StatusOK, events)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func queryFrom(r *http.Request) market.Query {
	q := r.URL.Query()
	return market.Query{
		Search: q.Get("q"),
		Sort:   market.SortMode(q.Get("sort")),
		Owner:  q.Get("owner"),
	}
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// statusFor maps a failed Result kind to an HTTP status.
func statusFor(kind market.Kind) int {
	switch kind {
	case market.KindValidation:
		return http.StatusBadRequest
	case market.KindPermission:
		return http.StatusForbidden
	case market.KindNotFound:
		return http.StatusNotFound
	case market.KindConflict:
		return http.StatusConflict
	case market.KindEconomy:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// respondResult writes a manager Result. An infrastructure error next to a
// successful Result means the trade completed and a follow-up step failed;
// it is logged and the success is reported.
func respondResult(w http.ResponseWriter, okStatus int, res market.Result, err error) {
	if err != nil {
		log.Printf("[API] %s: %v", res.Message, err)
		if !res.Success {
			respondJSON(w, http.StatusInternalServerError, res)
			return
		}
	}
	if !res.Success {
		respondJSON(w, statusFor(res.Kind), res)
		return
	}
	respondJSON(w, okStatus, res)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
