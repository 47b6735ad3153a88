package mocks

import (
	"context"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/stretchr/testify/mock"
)

// PaymentProviderMock: мок domain.PaymentProvider
type PaymentProviderMock struct {
	mock.Mock
}

// NewPaymentProviderMock создает мок и проверяет ожидания по завершении теста
func NewPaymentProviderMock(t mock.TestingT) *PaymentProviderMock {
	m := &PaymentProviderMock{}
	m.Test(t)
	registerCleanup(t, &m.Mock)
	return m
}

func (m *PaymentProviderMock) CreateCustomer(ctx context.Context, user *domain.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

func (m *PaymentProviderMock) CreateCheckoutSession(ctx context.Context, req *domain.CheckoutSessionRequest) (*domain.CheckoutSession, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(*domain.CheckoutSession)
	return s, args.Error(1)
}

func (m *PaymentProviderMock) GetCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	s, _ := args.Get(0).(*domain.CheckoutSession)
	return s, args.Error(1)
}

func (m *PaymentProviderMock) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.PaymentIntent, error) {
	args := m.Called(ctx, paymentIntentID)
	pi, _ := args.Get(0).(*domain.PaymentIntent)
	return pi, args.Error(1)
}
