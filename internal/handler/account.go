package handler

import (
	"net/http"

	"github.com/openbrokerage/sharetrading/internal/domain"
	"github.com/openbrokerage/sharetrading/internal/service"
)

// AccountHandler handles the cash account and position endpoints.
type AccountHandler struct {
	accountSvc  *service.AccountService
	positionSvc *service.PositionService
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accountSvc *service.AccountService, positionSvc *service.PositionService) *AccountHandler {
	return &AccountHandler{accountSvc: accountSvc, positionSvc: positionSvc}
}

type accountResponse struct {
	AccountID     string  `json:"account_id"`
	Balance       float64 `json:"balance"`
	BlockedAmount float64 `json:"blocked_amount"`
	Available     float64 `json:"available"`
}

func buildAccountResponse(a domain.Account) accountResponse {
	return accountResponse{
		AccountID:     a.ID,
		Balance:       domain.CentsToDollars(a.Balance),
		BlockedAmount: domain.CentsToDollars(a.BlockedAmount),
		Available:     domain.CentsToDollars(a.Available()),
	}
}

// Get handles GET /account.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountSvc.Get(r.Context(), CustomerID(r))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(account))
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

// Deposit handles POST /account/deposits.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	account, err := h.accountSvc.Deposit(r.Context(), CustomerID(r), req.Amount)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(account))
}

// Withdraw handles POST /account/withdrawals.
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	account, err := h.accountSvc.Withdraw(r.Context(), CustomerID(r), req.Amount)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(account))
}

type positionResponse struct {
	ShareID           string `json:"share_id"`
	TotalQuantity     int64  `json:"total_quantity"`
	BlockedQuantity   int64  `json:"blocked_quantity"`
	AvailableQuantity int64  `json:"available_quantity"`
}

// ListPositions handles GET /positions.
func (h *AccountHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positionSvc.List(r.Context(), CustomerID(r))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionResponse{
			ShareID:           p.ShareID,
			TotalQuantity:     p.TotalQuantity,
			BlockedQuantity:   p.BlockedQuantity,
			AvailableQuantity: p.Available(),
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"positions": out})
}
