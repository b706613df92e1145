package api

import (
	"log"
	"net/http"
	"time"

	"github.com/example/market-engine/internal/api/middleware"
	"github.com/example/market-engine/internal/auth"
)

type RouterConfig struct {
	Handlers   *Handlers
	JWTService *auth.JWTService
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	h := cfg.Handlers

	authed := middleware.AuthMiddleware(cfg.JWTService)
	admin := func(next http.Handler) http.Handler {
		return authed(middleware.RequireRole(auth.RoleAdmin)(next))
	}
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authed(fn))
	}

	mux.HandleFunc("GET /health", h.Health)

	// Listings
	handle("GET /listings", h.GetListings)
	handle("POST /listings", h.CreateListing)
	handle("POST /listings/{id}/purchase", h.PurchaseListing)
	handle("POST /listings/{id}/cancel", h.CancelListing)

	// Buy orders
	handle("GET /orders", h.GetOrders)
	handle("POST /orders", h.CreateOrder)
	handle("POST /orders/{id}/fulfill", h.FulfillOrder)
	handle("POST /orders/{id}/cancel", h.CancelOrder)

	handle("GET /live", h.GetLiveQueue)
	handle("GET /returns", h.GetReturns)
	handle("POST /returns/claim", h.ClaimReturns)
	handle("GET /history", h.GetHistory)
	handle("POST /appraise", h.Appraise)

	mux.Handle("POST /admin/sweep", admin(http.HandlerFunc(h.Sweep)))
	mux.Handle("GET /admin/events", admin(http.HandlerFunc(h.GetAllEvents)))
	mux.Handle("GET /admin/events/{id}", admin(http.HandlerFunc(h.GetEvents)))

	return withLogging(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[API] %s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}
