package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/boma-settlement/internal/config"
	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/handler"
	"github.com/josh-kwaku/boma-settlement/internal/middleware"
	"github.com/josh-kwaku/boma-settlement/internal/repository"
)

type routerDeps struct {
	cfg         *config.Config
	db          *sql.DB
	rdb         *redis.Client
	bookings    *handler.BookingHandler
	payments    *handler.PaymentHandler
	webhooks    *handler.WebhookHandler
	ledger      *handler.LedgerHandler
	idempotency *repository.IdempotencyRepository
}

type mw = func(http.Handler) http.Handler

func chain(h http.Handler, mws ...mw) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func newRouter(d routerDeps) (http.Handler, error) {
	store, err := middleware.NewRateLimitStore(d.rdb)
	if err != nil {
		return nil, fmt.Errorf("rate limit store: %w", err)
	}
	rateLimit, err := middleware.RateLimit(store, d.cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	authed := middleware.Auth(d.cfg.JWTSecret)
	guest := middleware.RequireRole(domain.RoleGuest)
	host := middleware.RequireRole(domain.RoleHost, domain.RoleAdmin)
	admin := middleware.RequireRole(domain.RoleAdmin)

	// Payment initiation replays from Redis when available; the orchestrator
	// enforces idempotency on its own either way.
	initiate := []mw{authed, rateLimit, guest}
	if d.idempotency != nil {
		initiate = append(initiate, middleware.Idempotency(d.idempotency))
	}

	var extras map[string]handler.Pinger
	if d.rdb != nil {
		extras = map[string]handler.Pinger{
			"redis": handler.PingFunc(func(ctx context.Context) error { return d.rdb.Ping(ctx).Err() }),
		}
	}
	health := handler.NewHealthHandler(d.db, extras)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Liveness)
	mux.HandleFunc("GET /health/ready", health.Readiness)

	mux.Handle("POST /api/v1/bookings", chain(http.HandlerFunc(d.bookings.Create), authed, rateLimit, guest))
	mux.Handle("GET /api/v1/bookings/{id}", chain(http.HandlerFunc(d.bookings.Get), authed, rateLimit))
	mux.Handle("POST /api/v1/bookings/{id}/cancel", chain(http.HandlerFunc(d.bookings.Cancel), authed, rateLimit))
	mux.Handle("POST /api/v1/bookings/{id}/check-in", chain(http.HandlerFunc(d.bookings.CheckIn), authed, rateLimit, host))
	mux.Handle("POST /api/v1/bookings/{id}/check-out", chain(http.HandlerFunc(d.bookings.CheckOut), authed, rateLimit, host))
	mux.Handle("POST /api/v1/bookings/{id}/no-show", chain(http.HandlerFunc(d.bookings.NoShow), authed, rateLimit, host))
	mux.Handle("POST /api/v1/bookings/{id}/disputes", chain(http.HandlerFunc(d.bookings.FileDispute), authed, rateLimit, host))
	mux.Handle("POST /api/v1/bookings/{id}/disputes/resolve", chain(http.HandlerFunc(d.bookings.ResolveDispute), authed, rateLimit, admin))

	mux.Handle("POST /api/v1/bookings/{id}/payments", chain(http.HandlerFunc(d.payments.Initiate), initiate...))
	mux.Handle("GET /api/v1/payments/{id}", chain(http.HandlerFunc(d.payments.Get), authed, rateLimit))

	mux.Handle("GET /api/v1/ledger/balance", chain(http.HandlerFunc(d.ledger.Balance), authed, rateLimit))
	mux.Handle("GET /api/v1/ledger/entries", chain(http.HandlerFunc(d.ledger.Entries), authed, rateLimit, admin))

	mux.Handle("POST /api/v1/webhooks/{gateway}", chain(http.HandlerFunc(d.webhooks.Receive), middleware.WebhookRecovery))

	return chain(mux, middleware.Tracing, middleware.Logging, middleware.Recovery), nil
}
