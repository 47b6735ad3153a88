package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

// ErrInvalidSignature возвращается, если подпись события не прошла проверку
var ErrInvalidSignature = errors.New("stripe webhook: invalid signature")

// WebhookAction: что нужно сделать по событию
type WebhookAction int

const (
	// ActionIgnore: событие не интересует сервис
	ActionIgnore WebhookAction = iota
	// ActionReconcile: сессия оплачена, нужна сверка заказа
	ActionReconcile
	// ActionExpire: сессия истекла без оплаты
	ActionExpire
	// ActionFail: асинхронная оплата отклонена
	ActionFail
	// ActionReceipt: появилась ссылка на чек
	ActionReceipt
)

// WebhookEvent: разобранное событие Stripe
type WebhookEvent struct {
	ID            string
	Type          string
	Action        WebhookAction
	OrderID       int64
	SessionID     string
	TransactionID string
	ReceiptURL    string
}

// WebhookParser проверяет подпись и разбирает события Stripe
type WebhookParser struct {
	secret string
}

// NewWebhookParser создает новый WebhookParser
func NewWebhookParser(secret string) *WebhookParser {
	return &WebhookParser{secret: secret}
}

// Parse проверяет подпись payload и определяет действие по типу события
func (p *WebhookParser) Parse(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	ev := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return ev, nil
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		ev.Action = ActionReconcile
	case "checkout.session.expired":
		ev.Action = ActionExpire
	case "checkout.session.async_payment_failed":
		ev.Action = ActionFail
	case "charge.succeeded":
		return parseCharge(ev, event.Data.Raw)
	default:
		return ev, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("stripe webhook: failed to decode checkout session: %w", err)
	}
	ev.SessionID = s.ID

	ref := s.Metadata["order_id"]
	if ref == "" {
		ref = s.ClientReferenceID
	}
	orderID, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stripe webhook: session %s has no order id: %w", s.ID, err)
	}
	ev.OrderID = orderID

	return ev, nil
}

func parseCharge(ev *WebhookEvent, raw json.RawMessage) (*WebhookEvent, error) {
	var ch stripe.Charge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, fmt.Errorf("stripe webhook: failed to decode charge: %w", err)
	}

	if ch.PaymentIntent == nil || ch.ReceiptURL == "" {
		return ev, nil
	}

	ev.Action = ActionReceipt
	ev.TransactionID = ch.PaymentIntent.ID
	ev.ReceiptURL = ch.ReceiptURL
	return ev, nil
}
