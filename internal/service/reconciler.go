package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconcileResult: итог сверки платежа.
// Pending означает, что провайдер еще не подтвердил оплату и состояние не менялось.
type ReconcileResult struct {
	Success       bool
	Pending       bool
	OrderID       int64
	TrackingID    uuid.UUID
	PaymentStatus domain.PaymentStatus
	Order         *domain.Order
}

// Reconciler сверяет оплату заказа с провайдером и применяет ее последствия ровно один раз
type Reconciler struct {
	users     domain.UserRepository
	orders    domain.OrderRepository
	payments  domain.PaymentRepository
	uow       domain.UnitOfWork
	provider  domain.PaymentProvider
	tolerance decimal.Decimal
	now       func() time.Time
}

// NewReconciler создает новый Reconciler
func NewReconciler(
	users domain.UserRepository,
	orders domain.OrderRepository,
	payments domain.PaymentRepository,
	uow domain.UnitOfWork,
	provider domain.PaymentProvider,
	tolerance decimal.Decimal,
	now func() time.Time,
) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		users:     users,
		orders:    orders,
		payments:  payments,
		uow:       uow,
		provider:  provider,
		tolerance: tolerance,
		now:       now,
	}
}

// Reconcile сверяет оплату по запросу владельца заказа
func (r *Reconciler) Reconcile(ctx context.Context, externalUserID string, orderID int64) (*ReconcileResult, error) {
	user, err := resolveUser(ctx, r.users, externalUserID)
	if err != nil {
		return nil, err
	}

	order, err := r.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.UserID != user.ID {
		return nil, domain.NewError(domain.KindOwnershipMismatch, "order belongs to another user",
			map[string]any{"orderId": orderID})
	}

	return r.reconcile(ctx, order)
}

// ReconcileOrder сверяет оплату без проверки владельца.
// Используется вебхуком провайдера и фоновой сверкой.
func (r *Reconciler) ReconcileOrder(ctx context.Context, orderID int64) (*ReconcileResult, error) {
	order, err := r.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return r.reconcile(ctx, order)
}

func (r *Reconciler) loadOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := r.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, domain.NewError(domain.KindOrderNotFound, fmt.Sprintf("order %d not found", orderID),
				map[string]any{"orderId": orderID})
		}
		return nil, fmt.Errorf("reconciler: failed to load order %d: %w", orderID, err)
	}

	return order, nil
}

func (r *Reconciler) reconcile(ctx context.Context, order *domain.Order) (*ReconcileResult, error) {
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return nil, alreadyReconciled(order.ID)
	}

	if order.PaymentSessionID == "" {
		return nil, domain.NewError(domain.KindNoPaymentSession, "order has no payment session",
			map[string]any{"orderId": order.ID, "orderType": order.Type})
	}

	session, err := r.provider.GetCheckoutSession(ctx, order.PaymentSessionID)
	if err != nil {
		return nil, providerLookupError("checkout session", order.PaymentSessionID, err)
	}

	switch {
	case session.PaymentStatus == domain.SessionPaid:
	case session.State == domain.SessionExpired:
		return r.recordFailure(ctx, order, domain.PaymentStatusExpired)
	case session.PaymentStatus == domain.SessionUnpaid:
		return &ReconcileResult{
			Success:       true,
			Pending:       true,
			OrderID:       order.ID,
			TrackingID:    order.TrackingID,
			PaymentStatus: order.PaymentStatus,
			Order:         order,
		}, nil
	default:
		return r.recordFailure(ctx, order, domain.PaymentStatusFailed)
	}

	if session.PaymentIntentID == "" {
		return nil, domain.NewError(domain.KindSessionLookupFailed, "paid session has no payment intent",
			map[string]any{"sessionId": session.ID})
	}

	intent, err := r.provider.GetPaymentIntent(ctx, session.PaymentIntentID)
	if err != nil {
		return nil, providerLookupError("payment intent", session.PaymentIntentID, err)
	}

	captured := domain.FromMinorUnits(intent.AmountReceived)
	if !domain.WithinTolerance(captured, order.OnlineAmount, r.tolerance) {
		return nil, domain.NewError(domain.KindAmountMismatch, "captured amount does not match the online portion",
			map[string]any{"orderId": order.ID, "expected": order.OnlineAmount, "captured": captured})
	}

	customerID := intent.CustomerID
	if customerID == "" {
		customerID = session.CustomerID
	}
	payment := &domain.Payment{
		OrderID:       order.ID,
		Status:        intent.Status,
		Method:        intent.Method,
		TransactionID: intent.ID,
		CustomerID:    customerID,
		ReceiptURL:    intent.ReceiptURL,
		PaidAt:        r.now(),
		SessionID:     session.ID,
		Amount:        captured,
	}

	err = r.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		// Первая запись в транзакции: конкурирующая сверка получит AlreadyReconciled
		if err := repos.Orders.MarkPaid(ctx, order.ID); err != nil {
			if errors.Is(err, domain.ErrAlreadyReconciled) {
				return alreadyReconciled(order.ID)
			}
			return err
		}

		if err := repos.Payments.CreatePayment(ctx, payment); err != nil {
			if errors.Is(err, domain.ErrPaymentExists) {
				return alreadyReconciled(order.ID)
			}
			return err
		}

		for _, d := range stockDecrements(order) {
			if _, err := repos.Inventory.Decrement(ctx, d); err != nil {
				if errors.Is(err, domain.ErrStockExhausted) {
					return domain.NewError(domain.KindInsufficientStock,
						fmt.Sprintf("product %d in size %s ran out after payment", d.ProductID, d.Size),
						map[string]any{"orderId": order.ID, "productId": d.ProductID, "size": d.Size, "requested": d.Quantity})
				}
				return err
			}
		}

		if err := repos.Orders.LinkPayment(ctx, order.ID, payment.ID); err != nil {
			return err
		}

		return repos.Users.ClearCart(ctx, order.UserID)
	})

	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return nil, err
		}
		return nil, domain.WrapError(domain.KindOrderPersistenceFailed, "failed to apply payment, nothing was changed", err)
	}

	order.PaymentStatus = domain.PaymentStatusPaid
	order.PaymentIDs = append(order.PaymentIDs, payment.ID)

	return &ReconcileResult{
		Success:       true,
		OrderID:       order.ID,
		TrackingID:    order.TrackingID,
		PaymentStatus: domain.PaymentStatusPaid,
		Order:         order,
	}, nil
}

// stockDecrements объединяет позиции с одинаковыми товаром и размером.
// Журнал списаний хранит одну запись на (заказ, товар, размер), поэтому
// повторная позиция иначе не была бы списана.
func stockDecrements(order *domain.Order) []domain.StockDecrement {
	index := make(map[stockKey]int, len(order.Items))
	decrements := make([]domain.StockDecrement, 0, len(order.Items))
	for _, it := range order.Items {
		key := stockKey{it.ProductID, it.Size}
		if i, ok := index[key]; ok {
			decrements[i].Quantity += it.Quantity
			continue
		}
		index[key] = len(decrements)
		decrements = append(decrements, domain.StockDecrement{
			OrderID:   order.ID,
			ProductID: it.ProductID,
			Size:      it.Size,
			Quantity:  it.Quantity,
		})
	}
	return decrements
}

func (r *Reconciler) recordFailure(ctx context.Context, order *domain.Order, status domain.PaymentStatus) (*ReconcileResult, error) {
	if err := r.orders.SetPaymentStatus(ctx, order.ID, status); err != nil {
		return nil, domain.WrapError(domain.KindOrderPersistenceFailed, "failed to record payment status", err)
	}
	order.PaymentStatus = status

	return &ReconcileResult{
		Success:       false,
		OrderID:       order.ID,
		TrackingID:    order.TrackingID,
		PaymentStatus: status,
		Order:         order,
	}, nil
}

// RecordSessionOutcome фиксирует истечение или отказ сессии оплаты по событию провайдера.
// Оплаченный заказ не меняется.
func (r *Reconciler) RecordSessionOutcome(ctx context.Context, orderID int64, status domain.PaymentStatus) error {
	if status != domain.PaymentStatusExpired && status != domain.PaymentStatusFailed {
		return fmt.Errorf("reconciler: unexpected session outcome %q", status)
	}

	order, err := r.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if order.PaymentStatus != domain.PaymentStatusUnpaid {
		return nil
	}

	if err := r.orders.SetPaymentStatus(ctx, orderID, status); err != nil {
		return fmt.Errorf("reconciler: failed to record %s for order %d: %w", status, orderID, err)
	}

	return nil
}

// BackfillReceipt дописывает ссылку на чек к уже сохраненному платежу
func (r *Reconciler) BackfillReceipt(ctx context.Context, transactionID, receiptURL string) error {
	if transactionID == "" || receiptURL == "" {
		return nil
	}

	if err := r.payments.SetReceiptURL(ctx, transactionID, receiptURL); err != nil {
		return fmt.Errorf("reconciler: failed to backfill receipt: %w", err)
	}

	return nil
}

func alreadyReconciled(orderID int64) error {
	return domain.NewError(domain.KindAlreadyReconciled, "payment is already reconciled",
		map[string]any{"orderId": orderID})
}

func providerLookupError(object, id string, err error) error {
	if errors.Is(err, domain.ErrProviderNotFound) {
		return domain.NewError(domain.KindSessionNotFound, fmt.Sprintf("%s %s not found at payment provider", object, id),
			map[string]any{"id": id})
	}
	return domain.WrapError(domain.KindSessionLookupFailed, fmt.Sprintf("failed to retrieve %s %s", object, id), err)
}
