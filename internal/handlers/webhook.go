package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/avc/storefront-orders/internal/payment"
	"github.com/avc/storefront-orders/internal/service"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 64 << 10

// WebhookParser проверяет подпись и разбирает событие провайдера
type WebhookParser interface {
	Parse(payload []byte, signature string) (*payment.WebhookEvent, error)
}

// WebhookReconciler применяет события провайдера к заказам
type WebhookReconciler interface {
	ReconcileOrder(ctx context.Context, orderID int64) (*service.ReconcileResult, error)
	RecordSessionOutcome(ctx context.Context, orderID int64, status domain.PaymentStatus) error
	BackfillReceipt(ctx context.Context, transactionID, receiptURL string) error
}

type WebhookHandler struct {
	parser     WebhookParser
	reconciler WebhookReconciler
	logger     *zap.Logger
}

func NewWebhookHandler(parser WebhookParser, reconciler WebhookReconciler, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		parser:     parser,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Stripe принимает события Stripe. Ошибка, которую имеет смысл повторить,
// отдается как 500, чтобы Stripe прислал событие еще раз.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, kindInvalidRequest, "failed to read body", h.logger)
		return
	}

	event, err := h.parser.Parse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			h.logger.Warn("webhook signature rejected", zap.Error(err))
			writeErrorBody(w, http.StatusBadRequest, kindInvalidRequest, "invalid signature", h.logger)
			return
		}
		h.logger.Error("failed to parse webhook", zap.Error(err))
		writeErrorBody(w, http.StatusBadRequest, kindInvalidRequest, "malformed event", h.logger)
		return
	}

	log := h.logger.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.Int64("order_id", event.OrderID),
	)

	if err := h.apply(r.Context(), event); err != nil {
		if domain.IsRetriable(err) || domain.KindOf(err) == "" {
			log.Error("failed to apply webhook event", zap.Error(err))
			writeErrorBody(w, http.StatusInternalServerError, kindInternal, "event not applied", h.logger)
			return
		}
		// Окончательные ошибки повторять бесполезно
		log.Warn("webhook event rejected", zap.String("kind", string(domain.KindOf(err))), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true}, h.logger)
}

func (h *WebhookHandler) apply(ctx context.Context, event *payment.WebhookEvent) error {
	switch event.Action {
	case payment.ActionReconcile:
		result, err := h.reconciler.ReconcileOrder(ctx, event.OrderID)
		if errors.Is(err, domain.ErrAlreadyReconciled) {
			return nil
		}
		if err != nil {
			return err
		}
		if result.Success && !result.Pending {
			h.logger.Info("payment reconciled from webhook",
				zap.Int64("order_id", result.OrderID),
				zap.String("tracking_id", result.TrackingID.String()),
			)
		}
		return nil

	case payment.ActionExpire:
		return h.reconciler.RecordSessionOutcome(ctx, event.OrderID, domain.PaymentStatusExpired)

	case payment.ActionFail:
		return h.reconciler.RecordSessionOutcome(ctx, event.OrderID, domain.PaymentStatusFailed)

	case payment.ActionReceipt:
		return h.reconciler.BackfillReceipt(ctx, event.TransactionID, event.ReceiptURL)
	}

	return nil
}
