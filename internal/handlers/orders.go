package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/avc/storefront-orders/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxOrderBodyBytes = 1 << 20

// OrderService определяет методы оформления и просмотра заказов.
type OrderService interface {
	PlaceOrder(ctx context.Context, externalUserID string, sub *domain.OrderSubmission) (*service.PlaceOrderResult, error)
	GetOrder(ctx context.Context, externalUserID string, trackingID uuid.UUID) (*domain.Order, error)
}

// PaymentVerifier сверяет оплату заказа по запросу покупателя.
type PaymentVerifier interface {
	Reconcile(ctx context.Context, externalUserID string, orderID int64) (*service.ReconcileResult, error)
}

type OrdersHandler struct {
	orderService OrderService
	verifier     PaymentVerifier
	logger       *zap.Logger
}

func NewOrdersHandler(orderService OrderService, verifier PaymentVerifier, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{
		orderService: orderService,
		verifier:     verifier,
		logger:       logger,
	}
}

// PlaceOrderResponse: ответ на оформление заказа
type PlaceOrderResponse struct {
	Success     bool      `json:"success"`
	OrderID     int64     `json:"orderId"`
	TrackingID  uuid.UUID `json:"trackingId"`
	CheckoutURL string    `json:"checkoutUrl,omitempty"`
	SessionID   string    `json:"sessionId,omitempty"`
}

func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeErrorBody(w, http.StatusUnauthorized, string(domain.KindUnauthorized), "user is not authenticated", h.logger)
		return
	}

	var sub domain.OrderSubmission
	r.Body = http.MaxBytesReader(w, r.Body, maxOrderBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeErrorBody(w, http.StatusBadRequest, kindInvalidRequest, "invalid JSON body", h.logger)
		return
	}

	result, err := h.orderService.PlaceOrder(r.Context(), userID, &sub)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	h.logger.Info("order placed",
		zap.Int64("order_id", result.OrderID),
		zap.String("tracking_id", result.TrackingID.String()),
		zap.String("order_type", string(result.Order.Type)),
	)

	writeJSON(w, http.StatusCreated, PlaceOrderResponse{
		Success:     true,
		OrderID:     result.OrderID,
		TrackingID:  result.TrackingID,
		CheckoutURL: result.CheckoutURL,
		SessionID:   result.SessionID,
	}, h.logger)
}

type verifyPaymentRequest struct {
	OrderID *int64 `json:"orderId"`
}

// VerifyPaymentResponse: ответ на сверку оплаты
type VerifyPaymentResponse struct {
	Success       bool                 `json:"success"`
	Pending       bool                 `json:"pending,omitempty"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	Order         *domain.Order        `json:"order"`
}

func (h *OrdersHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeErrorBody(w, http.StatusUnauthorized, string(domain.KindUnauthorized), "user is not authenticated", h.logger)
		return
	}

	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorBody(w, http.StatusBadRequest, kindInvalidRequest, "invalid JSON body", h.logger)
		return
	}
	if req.OrderID == nil || *req.OrderID <= 0 {
		writeError(w, r, domain.NewError(domain.KindMissingField, `field "orderId" is required`,
			map[string]any{"field": "orderId"}), h.logger)
		return
	}

	result, err := h.verifier.Reconcile(r.Context(), userID, *req.OrderID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	if result.Success && !result.Pending {
		h.logger.Info("payment reconciled",
			zap.Int64("order_id", result.OrderID),
			zap.String("tracking_id", result.TrackingID.String()),
		)
	}

	writeJSON(w, http.StatusOK, VerifyPaymentResponse{
		Success:       result.Success,
		Pending:       result.Pending,
		PaymentStatus: result.PaymentStatus,
		Order:         result.Order,
	}, h.logger)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeErrorBody(w, http.StatusUnauthorized, string(domain.KindUnauthorized), "user is not authenticated", h.logger)
		return
	}

	trackingID, err := uuid.Parse(chi.URLParam(r, "trackingID"))
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, kindInvalidRequest, "invalid tracking id", h.logger)
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), userID, trackingID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			writeErrorBody(w, http.StatusNotFound, string(domain.KindOrderNotFound), "order not found", h.logger)
			return
		}
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": order}, h.logger)
}
