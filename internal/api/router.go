package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/DiggAiHH/abu-abad-sub000/internal/booking"
	"github.com/DiggAiHH/abu-abad-sub000/internal/payment"
)

type RouterConfig struct {
	Booking    *booking.Service
	Payments   *payment.Service
	Reconciler *payment.Reconciler
	PgPool     *pgxpool.Pool
	Redis      *redis.Client
	Log        zerolog.Logger
	Env        string
	Version    string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(ActorMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Slot manager
	r.Post("/slots", createSlotHandler(cfg.Booking))
	r.Get("/slots/available", listAvailableHandler(cfg.Booking))
	r.Patch("/slots/{id}", updateSlotHandler(cfg.Booking))

	// Booking transaction
	r.Get("/appointments/my", listMineHandler(cfg.Booking))
	r.Post("/appointments/{id}/book", bookSlotHandler(cfg.Booking))
	r.Post("/appointments/{id}/cancel", cancelBookingHandler(cfg.Booking))
	r.Post("/appointments/{id}/complete", completeBookingHandler(cfg.Booking))

	// Payments
	r.Post("/payments/intents", createIntentHandler(cfg.Payments))
	r.Get("/payments/my", listPaymentsHandler(cfg.Payments))
	r.Post("/payments/{id}/refund", refundHandler(cfg.Payments))
	r.Post("/payments/webhook", webhookHandler(cfg.Reconciler))

	return r
}
