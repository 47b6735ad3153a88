package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/avc/storefront-orders/internal/payment"
	"github.com/avc/storefront-orders/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const placeOrderBody = `{
	"addressId": 3,
	"orderType": "ONLINE",
	"items": [{"productId": 2, "size": "L", "quantity": 1, "payableAmount": 1299}],
	"cartTotal": 1299,
	"deliveryCharge": 0,
	"payableAmount": 1299,
	"cashAmount": 0,
	"onlineAmount": 1299
}`

func withUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), UserIDKey, userID))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestOrdersHandler_PlaceOrder(t *testing.T) {
	logger := zap.NewNop()
	tracking := uuid.MustParse("7f1c2a4e-4c1b-4d2a-9a51-0d8b6e1f3c11")

	t.Run("Online order", func(t *testing.T) {
		orders := newOrderServiceMock(t)
		handler := NewOrdersHandler(orders, nil, logger)

		isSubmission := mock.MatchedBy(func(sub *domain.OrderSubmission) bool {
			return *sub.AddressID == 3 &&
				*sub.OrderType == "ONLINE" &&
				len(sub.Items) == 1 &&
				sub.Items[0].PayableAmount.Equal(decimal.NewFromInt(1299)) &&
				sub.OnlineAmount.Equal(decimal.NewFromInt(1299))
		})
		orders.On("PlaceOrder", mock.Anything, "user_abc", isSubmission).Return(&service.PlaceOrderResult{
			OrderID:     102,
			TrackingID:  tracking,
			CheckoutURL: "https://checkout.stripe.com/c/pay/cs_test_1",
			SessionID:   "cs_test_1",
			Order:       &domain.Order{ID: 102, Type: domain.OrderTypeOnline},
		}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/orders/place-order", bytes.NewBufferString(placeOrderBody))
		w := httptest.NewRecorder()

		handler.PlaceOrder(w, withUser(req, "user_abc"))
		require.Equal(t, http.StatusCreated, w.Code)

		var resp PlaceOrderResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Success)
		assert.Equal(t, int64(102), resp.OrderID)
		assert.Equal(t, tracking, resp.TrackingID)
		assert.Equal(t, "cs_test_1", resp.SessionID)
		assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", resp.CheckoutURL)
		orders.AssertExpectations(t)
	})

	t.Run("Cash order has no checkout fields", func(t *testing.T) {
		orders := newOrderServiceMock(t)
		handler := NewOrdersHandler(orders, nil, logger)

		orders.On("PlaceOrder", mock.Anything, "user_abc", mock.Anything).Return(&service.PlaceOrderResult{
			OrderID:    101,
			TrackingID: tracking,
			Order:      &domain.Order{ID: 101, Type: domain.OrderTypeCash},
		}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/orders/place-order", bytes.NewBufferString(placeOrderBody))
		w := httptest.NewRecorder()

		handler.PlaceOrder(w, withUser(req, "user_abc"))
		require.Equal(t, http.StatusCreated, w.Code)

		var raw map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
		assert.NotContains(t, raw, "checkoutUrl")
		assert.NotContains(t, raw, "sessionId")
	})

	t.Run("Validation error", func(t *testing.T) {
		orders := newOrderServiceMock(t)
		handler := NewOrdersHandler(orders, nil, logger)

		orders.On("PlaceOrder", mock.Anything, "user_abc", mock.Anything).Return(nil,
			domain.NewError(domain.KindTotalMismatch, "payable amount does not match cart total plus delivery",
				map[string]any{"field": "payableAmount"})).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/orders/place-order", bytes.NewBufferString(placeOrderBody))
		w := httptest.NewRecorder()

		handler.PlaceOrder(w, withUser(req, "user_abc"))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		body := decodeError(t, w)
		assert.False(t, body.Success)
		assert.Equal(t, "TotalMismatch", body.Kind)
		assert.Equal(t, "payableAmount", body.Details["field"])
		assert.False(t, body.Retriable)
	})

	t.Run("Checkout session failure is retriable", func(t *testing.T) {
		orders := newOrderServiceMock(t)
		handler := NewOrdersHandler(orders, nil, logger)

		orders.On("PlaceOrder", mock.Anything, "user_abc", mock.Anything).Return(nil,
			domain.WrapError(domain.KindCheckoutSessionFailed, "failed to create checkout session", errors.New("stripe down"))).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/orders/place-order", bytes.NewBufferString(placeOrderBody))
		w := httptest.NewRecorder()

		handler.PlaceOrder(w, withUser(req, "user_abc"))
		assert.Equal(t, http.StatusBadGateway, w.Code)

		body := decodeError(t, w)
		assert.Equal(t, "CheckoutSessionFailed", body.Kind)
		assert.Equal(t, "failed to create checkout session", body.Message)
		assert.True(t, body.Retriable)
	})

	t.Run("Internal error hides details", func(t *testing.T) {
		orders := newOrderServiceMock(t)
		handler := NewOrdersHandler(orders, nil, logger)

		orders.On("PlaceOrder", mock.Anything, "user_abc", mock.Anything).Return(nil, errors.New("pq: secret detail")).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/orders/place-order", bytes.NewBufferString(placeOrderBody))
		w := httptest.NewRecorder()

		handler.PlaceOrder(w, withUser(req, "user_abc"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "secret detail")
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		handler := NewOrdersHandler(newOrderServiceMock(t), nil, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/orders/place-order", bytes.NewBufferString(`{"addressId":`))
		w := httptest.NewRecorder()

		handler.PlaceOrder(w, withUser(req, "user_abc"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, kindInvalidRequest, decodeError(t, w).Kind)
	})

	t.Run("Unauthorized - no user ID in context", func(t *testing.T) {
		handler := NewOrdersHandler(newOrderServiceMock(t), nil, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/orders/place-order", bytes.NewBufferString(placeOrderBody))
		w := httptest.NewRecorder()

		handler.PlaceOrder(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestOrdersHandler_VerifyPayment(t *testing.T) {
	logger := zap.NewNop()

	t.Run("Paid", func(t *testing.T) {
		verifier := newReconcilerMock(t)
		handler := NewOrdersHandler(nil, verifier, logger)

		verifier.On("Reconcile", mock.Anything, "user_abc", int64(102)).Return(&service.ReconcileResult{
			Success:       true,
			OrderID:       102,
			PaymentStatus: domain.PaymentStatusPaid,
			Order:         &domain.Order{ID: 102, PaymentStatus: domain.PaymentStatusPaid},
		}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/orders/verify-payment", bytes.NewBufferString(`{"orderId": 102}`))
		w := httptest.NewRecorder()

		handler.VerifyPayment(w, withUser(req, "user_abc"))
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Success       bool   `json:"success"`
			Pending       bool   `json:"pending"`
			PaymentStatus string `json:"paymentStatus"`
			Order         struct {
				ID int64 `json:"id"`
			} `json:"order"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Success)
		assert.False(t, resp.Pending)
		assert.Equal(t, "paid", resp.PaymentStatus)
		assert.Equal(t, int64(102), resp.Order.ID)
	})

	t.Run("Pending", func(t *testing.T) {
		verifier := newReconcilerMock(t)
		handler := NewOrdersHandler(nil, verifier, logger)

		verifier.On("Reconcile", mock.Anything, "user_abc", int64(102)).Return(&service.ReconcileResult{
			Success:       true,
			Pending:       true,
			OrderID:       102,
			PaymentStatus: domain.PaymentStatusUnpaid,
		}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/orders/verify-payment", bytes.NewBufferString(`{"orderId": 102}`))
		w := httptest.NewRecorder()

		handler.VerifyPayment(w, withUser(req, "user_abc"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"pending":true`)
		assert.Contains(t, w.Body.String(), `"paymentStatus":"unpaid"`)
	})

	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"already reconciled", domain.NewError(domain.KindAlreadyReconciled, "payment is already reconciled", nil), http.StatusConflict, "AlreadyReconciled"},
		{"order of another user", domain.NewError(domain.KindOwnershipMismatch, "order belongs to another user", nil), http.StatusForbidden, "OwnershipMismatch"},
		{"unknown order", domain.NewError(domain.KindOrderNotFound, "order 102 not found", nil), http.StatusNotFound, "OrderNotFound"},
		{"cash order", domain.NewError(domain.KindNoPaymentSession, "order has no payment session", nil), http.StatusBadRequest, "NoPaymentSession"},
		{"captured amount differs", domain.NewError(domain.KindAmountMismatch, "captured amount does not match the online portion", nil), http.StatusUnprocessableEntity, "AmountMismatch"},
		{"stock ran out", domain.NewError(domain.KindInsufficientStock, "product ran out after payment", nil), http.StatusConflict, "InsufficientStock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := newReconcilerMock(t)
			handler := NewOrdersHandler(nil, verifier, logger)
			verifier.On("Reconcile", mock.Anything, "user_abc", int64(102)).Return(nil, tt.err).Once()

			req := httptest.NewRequest(http.MethodPost, "/api/orders/verify-payment", bytes.NewBufferString(`{"orderId": 102}`))
			w := httptest.NewRecorder()

			handler.VerifyPayment(w, withUser(req, "user_abc"))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.kind, decodeError(t, w).Kind)
		})
	}

	t.Run("Provider rate limit sets Retry-After", func(t *testing.T) {
		verifier := newReconcilerMock(t)
		handler := NewOrdersHandler(nil, verifier, logger)
		verifier.On("Reconcile", mock.Anything, "user_abc", int64(102)).Return(nil,
			domain.WrapError(domain.KindSessionLookupFailed, "failed to retrieve checkout session cs_test_1",
				domain.NewRateLimitError(30*time.Second))).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/orders/verify-payment", bytes.NewBufferString(`{"orderId": 102}`))
		w := httptest.NewRecorder()

		handler.VerifyPayment(w, withUser(req, "user_abc"))
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "30", w.Header().Get("Retry-After"))
		assert.True(t, decodeError(t, w).Retriable)
	})

	t.Run("Missing order id", func(t *testing.T) {
		handler := NewOrdersHandler(nil, newReconcilerMock(t), logger)

		req := httptest.NewRequest(http.MethodPost, "/api/orders/verify-payment", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()

		handler.VerifyPayment(w, withUser(req, "user_abc"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "MissingField", decodeError(t, w).Kind)
	})
}

func TestOrdersHandler_GetOrder(t *testing.T) {
	logger := zap.NewNop()
	tracking := uuid.MustParse("7f1c2a4e-4c1b-4d2a-9a51-0d8b6e1f3c11")

	newRouter := func(orders OrderService) http.Handler {
		handler := NewOrdersHandler(orders, nil, logger)
		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, withUser(r, "user_abc"))
			})
		})
		r.Get("/api/orders/{trackingID}", handler.GetOrder)
		return r
	}

	t.Run("Own order", func(t *testing.T) {
		orders := newOrderServiceMock(t)
		orders.On("GetOrder", mock.Anything, "user_abc", tracking).
			Return(&domain.Order{ID: 5, TrackingID: tracking, PaymentStatus: domain.PaymentStatusUnpaid}, nil).Once()

		w := httptest.NewRecorder()
		newRouter(orders).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/"+tracking.String(), nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), tracking.String())
	})

	t.Run("Unknown order", func(t *testing.T) {
		orders := newOrderServiceMock(t)
		orders.On("GetOrder", mock.Anything, "user_abc", tracking).Return(nil, domain.ErrOrderNotFound).Once()

		w := httptest.NewRecorder()
		newRouter(orders).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/"+tracking.String(), nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "OrderNotFound", decodeError(t, w).Kind)
	})

	t.Run("Malformed tracking id", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter(newOrderServiceMock(t)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/not-a-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWebhookHandler_Stripe(t *testing.T) {
	logger := zap.NewNop()
	body := []byte(`{"id":"evt_1"}`)

	newHandler := func(t *testing.T, event *payment.WebhookEvent, parseErr error) (*WebhookHandler, *reconcilerMock) {
		parser := &webhookParserMock{}
		parser.Test(t)
		parser.On("Parse", body, "t=1,v1=sig").Return(event, parseErr).Once()
		reconciler := newReconcilerMock(t)
		return NewWebhookHandler(parser, reconciler, logger), reconciler
	}

	send := func(h *WebhookHandler) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(body))
		req.Header.Set("Stripe-Signature", "t=1,v1=sig")
		w := httptest.NewRecorder()
		h.Stripe(w, req)
		return w
	}

	t.Run("Completed session reconciles the order", func(t *testing.T) {
		h, reconciler := newHandler(t, &payment.WebhookEvent{ID: "evt_1", Action: payment.ActionReconcile, OrderID: 102}, nil)
		reconciler.On("ReconcileOrder", mock.Anything, int64(102)).
			Return(&service.ReconcileResult{Success: true, OrderID: 102, PaymentStatus: domain.PaymentStatusPaid}, nil).Once()

		assert.Equal(t, http.StatusOK, send(h).Code)
		reconciler.AssertExpectations(t)
	})

	t.Run("Already reconciled is acknowledged", func(t *testing.T) {
		h, reconciler := newHandler(t, &payment.WebhookEvent{ID: "evt_1", Action: payment.ActionReconcile, OrderID: 102}, nil)
		reconciler.On("ReconcileOrder", mock.Anything, int64(102)).
			Return(nil, domain.NewError(domain.KindAlreadyReconciled, "payment is already reconciled", nil)).Once()

		assert.Equal(t, http.StatusOK, send(h).Code)
	})

	t.Run("Retriable failure asks for redelivery", func(t *testing.T) {
		h, reconciler := newHandler(t, &payment.WebhookEvent{ID: "evt_1", Action: payment.ActionReconcile, OrderID: 102}, nil)
		reconciler.On("ReconcileOrder", mock.Anything, int64(102)).
			Return(nil, domain.WrapError(domain.KindSessionLookupFailed, "failed to retrieve checkout session", errors.New("timeout"))).Once()

		assert.Equal(t, http.StatusInternalServerError, send(h).Code)
	})

	t.Run("Terminal failure is acknowledged", func(t *testing.T) {
		h, reconciler := newHandler(t, &payment.WebhookEvent{ID: "evt_1", Action: payment.ActionReconcile, OrderID: 102}, nil)
		reconciler.On("ReconcileOrder", mock.Anything, int64(102)).
			Return(nil, domain.NewError(domain.KindAmountMismatch, "captured amount does not match the online portion", nil)).Once()

		assert.Equal(t, http.StatusOK, send(h).Code)
	})

	t.Run("Expired session", func(t *testing.T) {
		h, reconciler := newHandler(t, &payment.WebhookEvent{ID: "evt_1", Action: payment.ActionExpire, OrderID: 104}, nil)
		reconciler.On("RecordSessionOutcome", mock.Anything, int64(104), domain.PaymentStatusExpired).Return(nil).Once()

		assert.Equal(t, http.StatusOK, send(h).Code)
		reconciler.AssertExpectations(t)
	})

	t.Run("Failed async payment", func(t *testing.T) {
		h, reconciler := newHandler(t, &payment.WebhookEvent{ID: "evt_1", Action: payment.ActionFail, OrderID: 105}, nil)
		reconciler.On("RecordSessionOutcome", mock.Anything, int64(105), domain.PaymentStatusFailed).Return(nil).Once()

		assert.Equal(t, http.StatusOK, send(h).Code)
		reconciler.AssertExpectations(t)
	})

	t.Run("Receipt backfill", func(t *testing.T) {
		h, reconciler := newHandler(t, &payment.WebhookEvent{
			ID: "evt_1", Action: payment.ActionReceipt, TransactionID: "pi_1", ReceiptURL: "https://pay.stripe.com/receipts/ch_1",
		}, nil)
		reconciler.On("BackfillReceipt", mock.Anything, "pi_1", "https://pay.stripe.com/receipts/ch_1").Return(nil).Once()

		assert.Equal(t, http.StatusOK, send(h).Code)
		reconciler.AssertExpectations(t)
	})

	t.Run("Ignored event", func(t *testing.T) {
		h, reconciler := newHandler(t, &payment.WebhookEvent{ID: "evt_1", Type: "customer.created"}, nil)

		assert.Equal(t, http.StatusOK, send(h).Code)
		reconciler.AssertNotCalled(t, "ReconcileOrder", mock.Anything, mock.Anything)
	})

	t.Run("Invalid signature", func(t *testing.T) {
		h, _ := newHandler(t, nil, payment.ErrInvalidSignature)

		assert.Equal(t, http.StatusBadRequest, send(h).Code)
	})
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind   domain.ErrorKind
		status int
	}{
		{domain.KindMissingField, http.StatusBadRequest},
		{domain.KindEmptyCart, http.StatusBadRequest},
		{domain.KindPriceMismatch, http.StatusUnprocessableEntity},
		{domain.KindOfferNotApplicable, http.StatusUnprocessableEntity},
		{domain.KindUnauthorized, http.StatusUnauthorized},
		{domain.KindOwnershipMismatch, http.StatusForbidden},
		{domain.KindAddressNotFound, http.StatusNotFound},
		{domain.KindAlreadyReconciled, http.StatusConflict},
		{domain.KindInsufficientStock, http.StatusConflict},
		{domain.KindCheckoutSessionFailed, http.StatusBadGateway},
		{domain.KindOrderPersistenceFailed, http.StatusInternalServerError},
		{domain.ErrorKind("Unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.status, StatusForKind(tt.kind))
		})
	}
}
