package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/takapay/takapay/internal/api/handler"
	"github.com/takapay/takapay/internal/api/middleware"
	"github.com/takapay/takapay/internal/api/spec"
	"github.com/takapay/takapay/internal/config"
	"github.com/takapay/takapay/internal/domain"
	"github.com/takapay/takapay/internal/gateway"
	"github.com/takapay/takapay/internal/idempotency"
	"github.com/takapay/takapay/internal/ledger"
	"github.com/takapay/takapay/internal/service"
)

type Router struct {
	cfg    *config.Config
	logger *zap.Logger
	store  ledger.Store
	db     *pgxpool.Pool
	redis  redis.Cmdable
	idem   *idempotency.Store
	gw     gateway.Gateway
}

func NewRouter(cfg *config.Config, logger *zap.Logger, store ledger.Store, db *pgxpool.Pool, redisClient redis.Cmdable, idem *idempotency.Store, gw gateway.Gateway) *Router {
	return &Router{cfg: cfg, logger: logger, store: store, db: db, redis: redisClient, idem: idem, gw: gw}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	// Services
	engine := service.NewTransferEngine(api.store, service.TransferConfig{
		TransferFeeRate:       api.cfg.TransferFeeRate,
		DefaultCommissionRate: api.cfg.AgentCommission,
	})
	paymentSvc := service.NewPaymentService(api.store, api.gw, service.PaymentConfig{
		MinimumTopUp: api.cfg.MinimumTopUp,
		MaximumTopUp: api.cfg.MaximumTopUp,
	})
	adminSvc := service.NewAdminService(api.store, api.cfg.AgentCommission)
	historySvc := service.NewHistoryService(api.store)

	// Handlers
	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	walletHandler := handler.NewWalletHandler(engine, adminSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	historyHandler := handler.NewHistoryHandler(historySvc)
	adminHandler := handler.NewAdminHandler(adminSvc, engine)

	idem := middleware.IdempotencyMiddleware(api.idem, api.logger)

	// Operational endpoints
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Method("GET", "/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Gateway callbacks come unauthenticated from the outside.
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimit))
		r.Post("/v1/payments/callback/success", paymentHandler.Success)
		r.Post("/v1/payments/callback/failure", paymentHandler.Failure)
		r.Post("/v1/payments/callback/cancel", paymentHandler.Cancel)
	})

	// Authenticated surface
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimit))

		r.Get("/v1/wallet", walletHandler.GetBalance)
		r.With(idem).Post("/v1/wallet/send", walletHandler.SendMoney)
		r.With(idem).Post("/v1/wallet/withdraw", walletHandler.Withdraw)
		r.With(idem).Post("/v1/wallet/cash-out", walletHandler.CashOutToAgent)

		r.With(idem).Post("/v1/payments", paymentHandler.Initiate)
		r.Get("/v1/payments", paymentHandler.List)

		r.Get("/v1/transactions", historyHandler.Transactions)
		r.Get("/v1/wallet/statement", historyHandler.Statement)

		// Agent endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(string(domain.RoleAgent)))
			r.With(idem).Post("/v1/agent/cash-in", walletHandler.CashIn)
			r.With(idem).Post("/v1/agent/cash-out", walletHandler.CashOut)
			r.Get("/v1/agent/commissions", historyHandler.Commissions)
		})

		// Back office
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(string(domain.RoleAdmin)))
			r.Get("/v1/admin/dashboard", adminHandler.Dashboard)
			r.Post("/v1/admin/holders", adminHandler.RegisterHolder)
			r.Get("/v1/admin/wallets", adminHandler.ListWallets)
			r.Get("/v1/admin/entries", adminHandler.ListEntries)
			r.Post("/v1/admin/wallets/{id}/block", adminHandler.BlockWallet)
			r.Post("/v1/admin/wallets/{id}/unblock", adminHandler.UnblockWallet)
			r.Post("/v1/admin/agents/{id}/approve", adminHandler.ApproveAgent)
			r.Post("/v1/admin/agents/{id}/suspend", adminHandler.SuspendAgent)
			r.With(idem).Post("/v1/admin/deposit", adminHandler.Deposit)
		})
	})

	return r
}
