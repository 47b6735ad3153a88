package domain

import "time"

// CheckoutLineItem: строка счета в сессии оплаты. Суммы в пайсах.
type CheckoutLineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
	Metadata   map[string]string
}

// CheckoutSessionRequest содержит параметры создания сессии оплаты
type CheckoutSessionRequest struct {
	CustomerID     string
	IdempotencyKey string
	LineItems      []CheckoutLineItem
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
}

// SessionPaymentStatus: статус оплаты сессии у провайдера
type SessionPaymentStatus string

const (
	SessionPaid              SessionPaymentStatus = "paid"
	SessionUnpaid            SessionPaymentStatus = "unpaid"
	SessionNoPaymentRequired SessionPaymentStatus = "no_payment_required"
)

// SessionState: состояние самой сессии у провайдера
type SessionState string

const (
	SessionOpen     SessionState = "open"
	SessionComplete SessionState = "complete"
	SessionExpired  SessionState = "expired"
)

// CheckoutSession представляет сессию оплаты у провайдера
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentStatus   SessionPaymentStatus
	State           SessionState
	PaymentIntentID string
	CustomerID      string
	AmountTotal     int64
	Metadata        map[string]string
}

// PaymentIntent представляет подтвержденное списание у провайдера
type PaymentIntent struct {
	ID             string
	Amount         int64
	AmountReceived int64
	Currency       string
	Status         string
	Method         string
	CustomerID     string
	ReceiptURL     string
	CreatedAt      time.Time
}
