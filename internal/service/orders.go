package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/google/uuid"
)

// OrderValidator проверяет заявку на заказ
type OrderValidator interface {
	Validate(ctx context.Context, userID int64, sub *domain.OrderSubmission) (*domain.OrderDraft, error)
}

// PlaceOrderResult: результат оформления заказа.
// CheckoutURL и SessionID заполняются только для заказов с онлайн-оплатой.
type PlaceOrderResult struct {
	OrderID     int64
	TrackingID  uuid.UUID
	CheckoutURL string
	SessionID   string
	Order       *domain.Order
}

// OrderService оформляет заказы
type OrderService struct {
	users     domain.UserRepository
	orders    domain.OrderRepository
	uow       domain.UnitOfWork
	provider  domain.PaymentProvider
	validator OrderValidator
	checkout  CheckoutConfig
}

// NewOrderService создает новый OrderService
func NewOrderService(
	users domain.UserRepository,
	orders domain.OrderRepository,
	uow domain.UnitOfWork,
	provider domain.PaymentProvider,
	validator OrderValidator,
	checkout CheckoutConfig,
) *OrderService {
	return &OrderService{
		users:     users,
		orders:    orders,
		uow:       uow,
		provider:  provider,
		validator: validator,
		checkout:  checkout,
	}
}

// resolveUser находит пользователя по внешнему идентификатору
func resolveUser(ctx context.Context, users domain.UserRepository, externalUserID string) (*domain.User, error) {
	if externalUserID == "" {
		return nil, domain.NewError(domain.KindUnauthorized, "user is not authenticated", nil)
	}

	user, err := users.GetUserByExternalID(ctx, externalUserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.NewError(domain.KindUnauthorized, "user is not registered", nil)
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	return user, nil
}

// PlaceOrder проверяет заявку и сохраняет заказ.
// Для онлайн-оплаты в той же транзакции создается сессия оплаты:
// при любой ошибке заказ не сохраняется.
func (s *OrderService) PlaceOrder(ctx context.Context, externalUserID string, sub *domain.OrderSubmission) (*PlaceOrderResult, error) {
	user, err := resolveUser(ctx, s.users, externalUserID)
	if err != nil {
		return nil, err
	}

	if sub != nil {
		sub.UserExternalID = externalUserID
	}
	draft, err := s.validator.Validate(ctx, user.ID, sub)
	if err != nil {
		return nil, err
	}

	order := newOrder(user.ID, draft)
	result := &PlaceOrderResult{TrackingID: order.TrackingID, Order: order}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Orders.CreateOrder(ctx, order); err != nil {
			return domain.WrapError(domain.KindOrderPersistenceFailed, "failed to save order", err)
		}

		if err := repos.Users.AppendOrder(ctx, user.ID, order.ID); err != nil {
			return domain.WrapError(domain.KindOrderPersistenceFailed, "failed to update order history", err)
		}

		if !order.Type.RequiresOnlinePayment() {
			return nil
		}

		customerID, err := s.ensureCustomer(ctx, repos.Users, user)
		if err != nil {
			return err
		}

		session, err := s.provider.CreateCheckoutSession(ctx, BuildCheckoutRequest(order, customerID, s.checkout))
		if err != nil {
			return domain.WrapError(domain.KindCheckoutSessionFailed, "failed to create checkout session", err)
		}

		if err := repos.Orders.SetPaymentSession(ctx, order.ID, session.ID); err != nil {
			return domain.WrapError(domain.KindOrderPersistenceFailed, "failed to save checkout session", err)
		}

		order.PaymentSessionID = session.ID
		result.SessionID = session.ID
		result.CheckoutURL = session.URL
		return nil
	})

	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return nil, err
		}
		return nil, domain.WrapError(domain.KindOrderPersistenceFailed, "failed to place order", err)
	}

	result.OrderID = order.ID
	return result, nil
}

// ensureCustomer возвращает идентификатор покупателя у провайдера, создавая его при первой онлайн-оплате
func (s *OrderService) ensureCustomer(ctx context.Context, users domain.UserRepository, user *domain.User) (string, error) {
	if user.PaymentCustomerID != "" {
		return user.PaymentCustomerID, nil
	}

	customerID, err := s.provider.CreateCustomer(ctx, user)
	if err != nil {
		return "", domain.WrapError(domain.KindCheckoutSessionFailed, "failed to create payment customer", err)
	}

	if err := users.SetPaymentCustomerID(ctx, user.ID, customerID); err != nil {
		return "", domain.WrapError(domain.KindOrderPersistenceFailed, "failed to save payment customer", err)
	}

	user.PaymentCustomerID = customerID
	return customerID, nil
}

func newOrder(userID int64, draft *domain.OrderDraft) *domain.Order {
	return &domain.Order{
		TrackingID:     uuid.New(),
		UserID:         userID,
		AddressID:      draft.AddressID,
		Items:          draft.Items,
		CartSubtotal:   draft.CartSubtotal,
		TotalDiscount:  draft.TotalDiscount,
		DeliveryCharge: draft.DeliveryCharge,
		PayableAmount:  draft.PayableAmount,
		Type:           draft.Payment.Type(),
		CashAmount:     draft.Payment.CashPortion(),
		OnlineAmount:   draft.Payment.OnlinePortion(),
		Status:         domain.OrderStatusProcessing,
		PaymentStatus:  domain.PaymentStatusUnpaid,
	}
}

// GetOrder возвращает заказ пользователя по публичному идентификатору
func (s *OrderService) GetOrder(ctx context.Context, externalUserID string, trackingID uuid.UUID) (*domain.Order, error) {
	user, err := resolveUser(ctx, s.users, externalUserID)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.GetOrderByTrackingID(ctx, trackingID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("order service: failed to get order %s: %w", trackingID, err)
	}

	if order.UserID != user.ID {
		return nil, domain.NewError(domain.KindOwnershipMismatch, "order belongs to another user",
			map[string]any{"trackingId": trackingID})
	}

	return order, nil
}
