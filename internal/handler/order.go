package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openbrokerage/sharetrading/internal/domain"
	"github.com/openbrokerage/sharetrading/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// placeOrderRequest is the JSON request body for POST /orders.
type placeOrderRequest struct {
	ShareID   string  `json:"share_id"`
	Direction string  `json:"direction"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
	Validity  string  `json:"validity"`
}

// orderResponse is the JSON representation of an order. Nullable
// fields use pointers; quantities the order direction doesn't use are
// omitted.
type orderResponse struct {
	OrderID           string   `json:"order_id"`
	ShareID           string   `json:"share_id"`
	Direction         string   `json:"direction"`
	Quantity          int64    `json:"quantity"`
	Price             float64  `json:"price"`
	Validity          string   `json:"validity"`
	Status            string   `json:"status"`
	FilledQuantity    int64    `json:"filled_quantity"`
	RemainingQuantity int64    `json:"remaining_quantity"`
	CancelledQuantity int64    `json:"cancelled_quantity"`
	BlockedAmount     *float64 `json:"blocked_amount,omitempty"`
	BlockedQuantity   *int64   `json:"blocked_quantity,omitempty"`
	CapturedAt        string   `json:"captured_at"`
	CancelledAt       *string  `json:"cancelled_at"`
	ExpiredAt         *string  `json:"expired_at"`
}

func buildOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:           o.ID,
		ShareID:           o.ShareID,
		Direction:         string(o.Direction),
		Quantity:          o.Quantity,
		Price:             domain.CentsToDollars(o.PriceLimit),
		Validity:          string(o.Validity),
		Status:            string(o.Status),
		FilledQuantity:    o.FilledQuantity,
		RemainingQuantity: o.RemainingQuantity,
		CancelledQuantity: o.CancelledQuantity,
	}
	if o.Direction == domain.OrderDirectionBuy {
		blocked := domain.CentsToDollars(o.BlockedAmount)
		resp.BlockedAmount = &blocked
	} else {
		blocked := o.BlockedQuantity
		resp.BlockedQuantity = &blocked
	}
	resp.CapturedAt = o.CapturedAt.Format(timeFormat)
	if o.CancelledAt != nil {
		t := o.CancelledAt.Format(timeFormat)
		resp.CancelledAt = &t
	}
	if o.ExpiredAt != nil {
		t := o.ExpiredAt.Format(timeFormat)
		resp.ExpiredAt = &t
	}
	return resp
}

// PlaceOrder handles POST /orders.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	order, err := h.orderSvc.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		CustomerID: CustomerID(r),
		ShareID:    req.ShareID,
		Direction:  req.Direction,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Validity:   req.Validity,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildOrderResponse(order))
}

// GetOrder handles GET /orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.GetOrder(r.Context(), chi.URLParam(r, "order_id"), CustomerID(r))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// CancelOrder handles DELETE /orders/{order_id}.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.CancelOrder(r.Context(), chi.URLParam(r, "order_id"), CustomerID(r))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// listOrdersResponse is the JSON response for GET /orders.
type listOrdersResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// ListOrders handles GET /orders with optional status, page and limit
// query parameters.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	orders, total, err := h.orderSvc.ListOrders(r.Context(), CustomerID(r), q.Get("status"), page, limit)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	resp := listOrdersResponse{
		Orders: make([]orderResponse, 0, len(orders)),
		Total:  total,
		Page:   page,
		Limit:  limit,
	}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, buildOrderResponse(o))
	}
	WriteJSON(w, http.StatusOK, resp)
}
