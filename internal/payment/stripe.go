// Package payment реализует domain.PaymentProvider поверх Stripe.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/stripe/stripe-go/v83"
	"go.uber.org/zap"
)

// Config содержит параметры подключения к Stripe
type Config struct {
	SecretKey  string
	Currency   string
	Timeout    time.Duration
	MaxRetries int64
	// BaseURL переопределяет адрес API, используется в тестах
	BaseURL string
}

const defaultRetryAfter = 2 * time.Second

// StripeProvider реализует domain.PaymentProvider
type StripeProvider struct {
	client   *stripe.Client
	currency string
	timeout  time.Duration
}

// NewStripeProvider создает новый StripeProvider
func NewStripeProvider(cfg Config, logger *zap.Logger) *StripeProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "inr"
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
		LeveledLogger:     logger.Named("stripe").Sugar(),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}

	return &StripeProvider{
		client:   stripe.NewClient(cfg.SecretKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendCfg))),
		currency: currency,
		timeout:  timeout,
	}
}

// CreateCustomer создает покупателя в Stripe. Повторный вызов для того же пользователя
// возвращает того же покупателя за счет ключа идемпотентности.
func (p *StripeProvider) CreateCustomer(ctx context.Context, user *domain.User) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CustomerCreateParams{
		Metadata: map[string]string{
			"user_id":     strconv.FormatInt(user.ID, 10),
			"external_id": user.ExternalID,
		},
	}
	if user.Email != "" {
		params.Email = stripe.String(user.Email)
	}
	if user.Name != "" {
		params.Name = stripe.String(user.Name)
	}
	params.SetIdempotencyKey("customer-" + strconv.FormatInt(user.ID, 10))

	customer, err := p.client.V1Customers.Create(ctx, params)
	if err != nil {
		return "", mapError("create customer", err)
	}

	return customer.ID, nil
}

// CreateCheckoutSession создает платежную сессию в режиме разовой оплаты
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req *domain.CheckoutSessionRequest) (*domain.CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		Metadata:   req.Metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if ref, ok := req.Metadata["order_id"]; ok {
		params.ClientReferenceID = stripe.String(ref)
	}

	for _, li := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionCreateLineItemParams{
			Quantity: stripe.Int64(li.Quantity),
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency:   stripe.String(p.currency),
				UnitAmount: stripe.Int64(li.UnitAmount),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name:     stripe.String(li.Name),
					Metadata: li.Metadata,
				},
			},
		})
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := p.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, mapError("create checkout session", err)
	}

	return toCheckoutSession(s), nil
}

// GetCheckoutSession получает текущее состояние платежной сессии
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	s, err := p.client.V1CheckoutSessions.Retrieve(ctx, sessionID, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		return nil, mapError("retrieve checkout session", err)
	}

	return toCheckoutSession(s), nil
}

// GetPaymentIntent получает списание вместе с последним платежом для ссылки на чек
func (p *StripeProvider) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.PaymentIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.PaymentIntentRetrieveParams{}
	params.AddExpand("latest_charge")

	pi, err := p.client.V1PaymentIntents.Retrieve(ctx, paymentIntentID, params)
	if err != nil {
		return nil, mapError("retrieve payment intent", err)
	}

	return toPaymentIntent(pi), nil
}

func toCheckoutSession(s *stripe.CheckoutSession) *domain.CheckoutSession {
	cs := &domain.CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: domain.SessionPaymentStatus(s.PaymentStatus),
		State:         domain.SessionState(s.Status),
		AmountTotal:   s.AmountTotal,
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		cs.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.Customer != nil {
		cs.CustomerID = s.Customer.ID
	}
	return cs
}

func toPaymentIntent(pi *stripe.PaymentIntent) *domain.PaymentIntent {
	intent := &domain.PaymentIntent{
		ID:             pi.ID,
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Status:         string(pi.Status),
		CreatedAt:      time.Unix(pi.Created, 0).UTC(),
	}
	if len(pi.PaymentMethodTypes) > 0 {
		intent.Method = pi.PaymentMethodTypes[0]
	}
	if pi.Customer != nil {
		intent.CustomerID = pi.Customer.ID
	}
	if pi.LatestCharge != nil {
		intent.ReceiptURL = pi.LatestCharge.ReceiptURL
		if pi.LatestCharge.PaymentMethodDetails != nil && pi.LatestCharge.PaymentMethodDetails.Type != "" {
			intent.Method = string(pi.LatestCharge.PaymentMethodDetails.Type)
		}
	}
	return intent
}

// mapError переводит ошибки Stripe в ошибки domain:
// 404 -> domain.ErrProviderNotFound, 429 -> *domain.RateLimitError
func mapError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.HTTPStatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("stripe: %s: %w", op, domain.ErrProviderNotFound)
		case http.StatusTooManyRequests:
			return domain.NewRateLimitError(retryAfter(stripeErr))
		}
		return fmt.Errorf("stripe: %s: %s (status %d): %w", op, stripeErr.Msg, stripeErr.HTTPStatusCode, err)
	}

	return fmt.Errorf("stripe: %s: %w", op, err)
}

func retryAfter(e *stripe.Error) time.Duration {
	if e.LastResponse == nil {
		return defaultRetryAfter
	}
	seconds, err := strconv.Atoi(e.LastResponse.Header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}
