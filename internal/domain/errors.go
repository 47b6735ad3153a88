package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind: машиночитаемый вид ошибки, который отдается клиенту
type ErrorKind string

// Ошибки формы заявки и проверки сумм
const (
	KindMissingField          ErrorKind = "MissingField"
	KindInvalidOrderType      ErrorKind = "InvalidOrderType"
	KindEmptyCart             ErrorKind = "EmptyCart"
	KindAddressNotFound       ErrorKind = "AddressNotFound"
	KindTotalMismatch         ErrorKind = "TotalMismatch"
	KindPaymentSplitInvalid   ErrorKind = "PaymentSplitInvalid"
	KindAmountExceedsLimit    ErrorKind = "AmountExceedsLimit"
	KindDeliveryChargeInvalid ErrorKind = "DeliveryChargeInvalid"
	KindProductNotInInventory ErrorKind = "ProductNotInInventory"
	KindSizeUnavailable       ErrorKind = "SizeUnavailable"
	KindInsufficientStock     ErrorKind = "InsufficientStock"
	KindPriceMismatch         ErrorKind = "PriceMismatch"
	KindOfferNotApplicable    ErrorKind = "OfferNotApplicable"
)

// Ошибки оформления заказа
const (
	KindCheckoutSessionFailed  ErrorKind = "CheckoutSessionFailed"
	KindOrderPersistenceFailed ErrorKind = "OrderPersistenceFailed"
)

// Ошибки сверки платежа
const (
	KindUnauthorized        ErrorKind = "Unauthorized"
	KindUserNotFound        ErrorKind = "UserNotFound"
	KindOrderNotFound       ErrorKind = "OrderNotFound"
	KindOwnershipMismatch   ErrorKind = "OwnershipMismatch"
	KindAlreadyReconciled   ErrorKind = "AlreadyReconciled"
	KindNoPaymentSession    ErrorKind = "NoPaymentSession"
	KindSessionLookupFailed ErrorKind = "SessionLookupFailed"
	KindSessionNotFound     ErrorKind = "SessionNotFound"
	KindAmountMismatch      ErrorKind = "AmountMismatch"
)

// Error: ошибка предметной области с видом и подробностями для клиента
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
	Err     error
}

// NewError создает ошибку заданного вида
func NewError(kind ErrorKind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// WrapError создает ошибку заданного вида поверх причины
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по виду, поэтому errors.Is(err, ErrPriceMismatch)
// срабатывает для любой ошибки вида PriceMismatch
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Эталонные ошибки для сравнения через errors.Is
var (
	ErrMissingField          = &Error{Kind: KindMissingField}
	ErrInvalidOrderType      = &Error{Kind: KindInvalidOrderType}
	ErrEmptyCart             = &Error{Kind: KindEmptyCart}
	ErrAddressNotFound       = &Error{Kind: KindAddressNotFound}
	ErrTotalMismatch         = &Error{Kind: KindTotalMismatch}
	ErrPaymentSplitInvalid   = &Error{Kind: KindPaymentSplitInvalid}
	ErrAmountExceedsLimit    = &Error{Kind: KindAmountExceedsLimit}
	ErrDeliveryChargeInvalid = &Error{Kind: KindDeliveryChargeInvalid}
	ErrProductNotInInventory = &Error{Kind: KindProductNotInInventory}
	ErrSizeUnavailable       = &Error{Kind: KindSizeUnavailable}
	ErrInsufficientStock     = &Error{Kind: KindInsufficientStock}
	ErrPriceMismatch         = &Error{Kind: KindPriceMismatch}
	ErrOfferNotApplicable    = &Error{Kind: KindOfferNotApplicable}

	ErrCheckoutSessionFailed  = &Error{Kind: KindCheckoutSessionFailed}
	ErrOrderPersistenceFailed = &Error{Kind: KindOrderPersistenceFailed}

	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrUserNotFound        = &Error{Kind: KindUserNotFound}
	ErrOrderNotFound       = &Error{Kind: KindOrderNotFound}
	ErrOwnershipMismatch   = &Error{Kind: KindOwnershipMismatch}
	ErrAlreadyReconciled   = &Error{Kind: KindAlreadyReconciled}
	ErrNoPaymentSession    = &Error{Kind: KindNoPaymentSession}
	ErrSessionLookupFailed = &Error{Kind: KindSessionLookupFailed}
	ErrSessionNotFound     = &Error{Kind: KindSessionNotFound}
	ErrAmountMismatch      = &Error{Kind: KindAmountMismatch}
)

// Ошибки хранилища, которые не отдаются клиенту напрямую
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInventoryNotFound = errors.New("inventory not found")
	ErrPaymentExists     = errors.New("payment already recorded")
	ErrStockExhausted    = errors.New("stock exhausted")
)

// ErrProviderNotFound возвращается провайдером платежей, если объект не найден
var ErrProviderNotFound = errors.New("payment provider: resource not found")

var retriableKinds = map[ErrorKind]bool{
	KindCheckoutSessionFailed:  true,
	KindOrderPersistenceFailed: true,
	KindSessionLookupFailed:    true,
}

// IsRetriable сообщает, можно ли повторить операцию без изменения запроса
func IsRetriable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return retriableKinds[e.Kind]
}

// KindOf возвращает вид ошибки или пустую строку для внутренних ошибок
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// RateLimitError возвращается провайдером, когда превышен лимит запросов
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// NewRateLimitError создает новую ошибку rate limit
func NewRateLimitError(retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{RetryAfter: retryAfter}
}
