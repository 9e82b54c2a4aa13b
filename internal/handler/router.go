package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openbrokerage/sharetrading/internal/auth"
	"github.com/openbrokerage/sharetrading/internal/service"
)

// NewRouter creates a chi router with all routes registered, request
// logging, Content-Type validation and bearer-token authentication on
// the customer-scoped routes.
func NewRouter(
	authSvc *service.AuthService,
	accountSvc *service.AccountService,
	positionSvc *service.PositionService,
	orderSvc *service.OrderService,
	shareSvc *service.ShareService,
	tokens *auth.TokenManager,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	// Create handlers.
	authH := NewAuthHandler(authSvc)
	accountH := NewAccountHandler(accountSvc, positionSvc)
	orderH := NewOrderHandler(orderSvc)
	shareH := NewShareHandler(shareSvc)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth routes.
	r.Post("/auth/register", authH.Register)
	r.Post("/auth/login", authH.Login)

	// Public market data.
	r.Get("/shares", shareH.List)
	r.Get("/shares/{share_id}", shareH.Get)
	r.Get("/shares/{share_id}/price", shareH.GetPrice)
	r.Get("/shares/{share_id}/book", shareH.GetBook)
	r.Get("/shares/{share_id}/trades", shareH.GetTrades)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(authenticate(tokens))

		r.Get("/account", accountH.Get)
		r.Post("/account/deposits", accountH.Deposit)
		r.Post("/account/withdrawals", accountH.Withdraw)
		r.Get("/positions", accountH.ListPositions)

		r.Post("/orders", orderH.PlaceOrder)
		r.Get("/orders", orderH.ListOrders)
		r.Get("/orders/{order_id}", orderH.GetOrder)
		r.Delete("/orders/{order_id}", orderH.CancelOrder)

		// Share registry administration and the matching trigger.
		r.Post("/shares", shareH.Create)
		r.Patch("/shares/{share_id}", shareH.Update)
		r.Delete("/shares/{share_id}", shareH.Delete)
		r.Post("/shares/{share_id}/matching", shareH.ExecuteMatching)
	})

	return r
}
