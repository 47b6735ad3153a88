package handlers

import (
	"context"
	"time"

	"github.com/avc/storefront-orders/internal/cache"
	"github.com/avc/storefront-orders/internal/domain"
	"github.com/avc/storefront-orders/internal/payment"
	"github.com/avc/storefront-orders/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type orderServiceMock struct {
	mock.Mock
}

func newOrderServiceMock(t mock.TestingT) *orderServiceMock {
	m := &orderServiceMock{}
	m.Test(t)
	return m
}

func (m *orderServiceMock) PlaceOrder(ctx context.Context, externalUserID string, sub *domain.OrderSubmission) (*service.PlaceOrderResult, error) {
	args := m.Called(ctx, externalUserID, sub)
	res, _ := args.Get(0).(*service.PlaceOrderResult)
	return res, args.Error(1)
}

func (m *orderServiceMock) GetOrder(ctx context.Context, externalUserID string, trackingID uuid.UUID) (*domain.Order, error) {
	args := m.Called(ctx, externalUserID, trackingID)
	order, _ := args.Get(0).(*domain.Order)
	return order, args.Error(1)
}

type reconcilerMock struct {
	mock.Mock
}

func newReconcilerMock(t mock.TestingT) *reconcilerMock {
	m := &reconcilerMock{}
	m.Test(t)
	return m
}

func (m *reconcilerMock) Reconcile(ctx context.Context, externalUserID string, orderID int64) (*service.ReconcileResult, error) {
	args := m.Called(ctx, externalUserID, orderID)
	res, _ := args.Get(0).(*service.ReconcileResult)
	return res, args.Error(1)
}

func (m *reconcilerMock) ReconcileOrder(ctx context.Context, orderID int64) (*service.ReconcileResult, error) {
	args := m.Called(ctx, orderID)
	res, _ := args.Get(0).(*service.ReconcileResult)
	return res, args.Error(1)
}

func (m *reconcilerMock) RecordSessionOutcome(ctx context.Context, orderID int64, status domain.PaymentStatus) error {
	return m.Called(ctx, orderID, status).Error(0)
}

func (m *reconcilerMock) BackfillReceipt(ctx context.Context, transactionID, receiptURL string) error {
	return m.Called(ctx, transactionID, receiptURL).Error(0)
}

type webhookParserMock struct {
	mock.Mock
}

func (m *webhookParserMock) Parse(payload []byte, signature string) (*payment.WebhookEvent, error) {
	args := m.Called(payload, signature)
	ev, _ := args.Get(0).(*payment.WebhookEvent)
	return ev, args.Error(1)
}

type rateLimiterMock struct {
	mock.Mock
}

func (m *rateLimiterMock) Allow(ctx context.Context, scope, subject string) (bool, time.Duration, error) {
	args := m.Called(ctx, scope, subject)
	return args.Bool(0), args.Get(1).(time.Duration), args.Error(2)
}

type idempotencyStoreMock struct {
	mock.Mock
}

func (m *idempotencyStoreMock) Reserve(ctx context.Context, scope, key string) (*cache.StoredResponse, error) {
	args := m.Called(ctx, scope, key)
	resp, _ := args.Get(0).(*cache.StoredResponse)
	return resp, args.Error(1)
}

func (m *idempotencyStoreMock) Complete(ctx context.Context, scope, key string, resp *cache.StoredResponse) error {
	return m.Called(ctx, scope, key, resp).Error(0)
}

func (m *idempotencyStoreMock) Release(ctx context.Context, scope, key string) error {
	return m.Called(ctx, scope, key).Error(0)
}
