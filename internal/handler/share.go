package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openbrokerage/sharetrading/internal/domain"
	"github.com/openbrokerage/sharetrading/internal/engine"
	"github.com/openbrokerage/sharetrading/internal/service"
)

// ShareHandler handles HTTP requests for the share registry and the
// share-scoped market data endpoints.
type ShareHandler struct {
	shareSvc *service.ShareService
}

// NewShareHandler creates a ShareHandler.
func NewShareHandler(shareSvc *service.ShareService) *ShareHandler {
	return &ShareHandler{shareSvc: shareSvc}
}

type createShareRequest struct {
	Name         string  `json:"name"`
	TotalParts   int64   `json:"total_parts"`
	InitialPrice float64 `json:"initial_price"`
}

type updateShareRequest struct {
	Name   *string `json:"name"`
	Active *bool   `json:"active"`
}

type shareResponse struct {
	ShareID           string   `json:"share_id"`
	Name              string   `json:"name"`
	TotalParts        int64    `json:"total_parts"`
	InitialPrice      float64  `json:"initial_price"`
	LastExecutedPrice *float64 `json:"last_executed_price"`
	Active            bool     `json:"active"`
	CreatedAt         string   `json:"created_at"`
}

func buildShareResponse(s domain.Share) shareResponse {
	resp := shareResponse{
		ShareID:      s.ID,
		Name:         s.Name,
		TotalParts:   s.TotalParts,
		InitialPrice: domain.CentsToDollars(s.InitialPrice),
		Active:       s.Active,
		CreatedAt:    s.CreatedAt.Format(timeFormat),
	}
	if s.LastExecutedPrice != nil {
		p := domain.CentsToDollars(*s.LastExecutedPrice)
		resp.LastExecutedPrice = &p
	}
	return resp
}

// Create handles POST /shares.
func (h *ShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createShareRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	share, err := h.shareSvc.Create(r.Context(), service.CreateShareRequest{
		Name:         req.Name,
		TotalParts:   req.TotalParts,
		InitialPrice: req.InitialPrice,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildShareResponse(share))
}

// Update handles PATCH /shares/{share_id}.
func (h *ShareHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateShareRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	share, err := h.shareSvc.Update(r.Context(), chi.URLParam(r, "share_id"), service.UpdateShareRequest{
		Name:   req.Name,
		Active: req.Active,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildShareResponse(share))
}

// Delete handles DELETE /shares/{share_id}.
func (h *ShareHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.shareSvc.Delete(r.Context(), chi.URLParam(r, "share_id")); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /shares/{share_id}.
func (h *ShareHandler) Get(w http.ResponseWriter, r *http.Request) {
	share, err := h.shareSvc.Get(r.Context(), chi.URLParam(r, "share_id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildShareResponse(share))
}

// List handles GET /shares.
func (h *ShareHandler) List(w http.ResponseWriter, r *http.Request) {
	shares, err := h.shareSvc.List(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	out := make([]shareResponse, 0, len(shares))
	for _, s := range shares {
		out = append(out, buildShareResponse(s))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"shares": out})
}

type priceResponse struct {
	Price  float64 `json:"price"`
	Source string  `json:"source"`
}

// GetPrice handles GET /shares/{share_id}/price.
func (h *ShareHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.shareSvc.Price(r.Context(), chi.URLParam(r, "share_id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	source := "initial"
	if price.LastExecuted {
		source = "last_executed"
	}
	WriteJSON(w, http.StatusOK, priceResponse{
		Price:  domain.CentsToDollars(price.Price),
		Source: source,
	})
}

type priceLevelResponse struct {
	Price      float64 `json:"price"`
	Quantity   int64   `json:"quantity"`
	OrderCount int     `json:"order_count"`
}

type bookResponse struct {
	Bids []priceLevelResponse `json:"bids"`
	Asks []priceLevelResponse `json:"asks"`
}

func buildLevels(levels []engine.PriceLevel) []priceLevelResponse {
	out := make([]priceLevelResponse, 0, len(levels))
	for _, l := range levels {
		out = append(out, priceLevelResponse{
			Price:      domain.CentsToDollars(l.Price),
			Quantity:   l.TotalQuantity,
			OrderCount: l.OrderCount,
		})
	}
	return out
}

// GetBook handles GET /shares/{share_id}/book with an optional depth
// query parameter.
func (h *ShareHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))

	view, err := h.shareSvc.Book(r.Context(), chi.URLParam(r, "share_id"), depth)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, bookResponse{
		Bids: buildLevels(view.Bids),
		Asks: buildLevels(view.Asks),
	})
}

type tradeResponse struct {
	TradeID     string  `json:"trade_id"`
	BuyOrderID  string  `json:"buy_order_id"`
	SellOrderID string  `json:"sell_order_id"`
	Quantity    int64   `json:"quantity"`
	Price       float64 `json:"price"`
	ExecutedAt  string  `json:"executed_at"`
}

func buildTradeResponse(t domain.ShareTransaction) tradeResponse {
	return tradeResponse{
		TradeID:     t.ID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Quantity:    t.Quantity,
		Price:       domain.CentsToDollars(t.ExecutionPrice),
		ExecutedAt:  t.ExecutedAt.Format(timeFormat),
	}
}

// GetTrades handles GET /shares/{share_id}/trades.
func (h *ShareHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.shareSvc.Trades(r.Context(), chi.URLParam(r, "share_id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, buildTradeResponse(t))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"trades": out})
}

// ExecuteMatching handles POST /shares/{share_id}/matching. It runs
// one matching pass and returns the trades it produced.
func (h *ShareHandler) ExecuteMatching(w http.ResponseWriter, r *http.Request) {
	trades, err := h.shareSvc.ExecuteMatching(r.Context(), chi.URLParam(r, "share_id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, buildTradeResponse(t))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"trades": out})
}
