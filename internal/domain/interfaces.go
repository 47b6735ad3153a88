package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository определяет методы для работы с пользователями
type UserRepository interface {
	GetUserByExternalID(ctx context.Context, externalID string) (*User, error)
	AppendOrder(ctx context.Context, userID, orderID int64) error
	SetPaymentCustomerID(ctx context.Context, userID int64, customerID string) error
	ClearCart(ctx context.Context, userID int64) error
}

// AddressRepository определяет методы для работы с адресами доставки
type AddressRepository interface {
	GetUserAddress(ctx context.Context, addressID, userID int64) (*Address, error)
}

// CatalogRepository определяет методы для работы с товарами и акциями
type CatalogRepository interface {
	GetProductWithOffer(ctx context.Context, productID int64) (*Product, error)
	ListOffers(ctx context.Context) ([]*Offer, error)
	SetOfferStatus(ctx context.Context, offerID int64, status bool) error
}

// InventoryRepository определяет методы для работы со складскими остатками
type InventoryRepository interface {
	GetInventory(ctx context.Context, productID int64) (*Inventory, error)
	// Decrement списывает остаток один раз на позицию заказа.
	// Возвращает false, если списание по этой позиции уже было.
	Decrement(ctx context.Context, d StockDecrement) (bool, error)
}

// OrderRepository определяет методы для работы с заказами
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrderByID(ctx context.Context, id int64) (*Order, error)
	GetOrderByTrackingID(ctx context.Context, trackingID uuid.UUID) (*Order, error)
	SetPaymentSession(ctx context.Context, orderID int64, sessionID string) error
	// MarkPaid переводит оплату unpaid -> paid. Возвращает ErrAlreadyReconciled,
	// если заказ уже оплачен.
	MarkPaid(ctx context.Context, orderID int64) error
	SetPaymentStatus(ctx context.Context, orderID int64, status PaymentStatus) error
	LinkPayment(ctx context.Context, orderID, paymentID int64) error
	GetPendingOnlineOrders(ctx context.Context, createdBefore time.Time, limit int) ([]*Order, error)
	// FlagForAttention исключает неоплаченный заказ из фоновой сверки
	FlagForAttention(ctx context.Context, orderID int64, reason string) error
}

// PaymentRepository определяет методы для работы с платежами
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *Payment) error
	SetReceiptURL(ctx context.Context, transactionID, receiptURL string) error
}

// Repositories: набор репозиториев, привязанных к одной транзакции
type Repositories struct {
	Users     UserRepository
	Orders    OrderRepository
	Payments  PaymentRepository
	Inventory InventoryRepository
}

// UnitOfWork выполняет fn в одной транзакции: commit при успехе, rollback при ошибке
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// PaymentProvider определяет методы взаимодействия с платежным провайдером
type PaymentProvider interface {
	CreateCustomer(ctx context.Context, user *User) (string, error)
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)
}
