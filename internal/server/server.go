// Package server exposes the contract operations over an HTTP JSON
// API. Every mutation is a POST forwarded to the engine; reads are
// served from the engine's view methods.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"SynthLedger/internal/core"
	"SynthLedger/internal/observability"
)

type Server struct {
	engine  *core.Engine
	health  *observability.HealthChecker
	metrics *observability.Metrics
	logger  zerolog.Logger
	http    *http.Server
}

func New(addr string, engine *core.Engine, health *observability.HealthChecker, metrics *observability.Metrics) *Server {
	s := &Server{
		engine:  engine,
		health:  health,
		metrics: metrics,
		logger:  observability.NewLogger("server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.instrument)

	r.Get("/healthz", health.LivenessHandler)
	r.Get("/readyz", health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/wallet/fund", s.handleFundWallet)
		r.Post("/tokens/transfer", s.handleTransferTokens)

		r.Route("/positions", func(r chi.Router) {
			r.Post("/create", s.handleCreate)
			r.Post("/deposit", s.handleDeposit)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/withdraw/request", s.handleRequestWithdrawal)
			r.Post("/withdraw/cancel", s.handleCancelWithdrawal)
			r.Post("/withdraw/execute", s.handleWithdrawPassedRequest)
			r.Post("/redeem", s.handleRedeem)
			r.Post("/transfer/request", s.handleRequestTransfer)
			r.Post("/transfer/cancel", s.handleCancelTransfer)
			r.Post("/transfer/execute", s.handleExecuteTransfer)
			r.Get("/{sponsor}", s.handleGetPosition)
		})

		r.Route("/contract", func(r chi.Router) {
			r.Get("/", s.handleGetContract)
			r.Post("/expire", s.handleExpire)
			r.Post("/shutdown", s.handleEmergencyShutdown)
			r.Post("/settle", s.handleSettleExpired)
		})

		r.Route("/liquidations", func(r chi.Router) {
			r.Post("/create", s.handleCreateLiquidation)
			r.Post("/dispute", s.handleDispute)
			r.Post("/settle-dispute", s.handleSettleDispute)
			r.Post("/withdraw", s.handleWithdrawLiquidation)
			r.Get("/{sponsor}/{id}", s.handleGetLiquidation)
		})

		r.Get("/wallets/{id}", s.handleGetWallet)
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// instrument records per-endpoint request counts and latency.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if s.metrics != nil {
			endpoint := r.Method + " " + r.URL.Path
			s.metrics.APIRequests.WithLabelValues(endpoint, http.StatusText(ww.Status())).Inc()
			s.metrics.APIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	})
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("http server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
