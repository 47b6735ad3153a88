// Package mocks содержит testify-моки интерфейсов domain для тестов сервисов и обработчиков.
package mocks

import (
	"context"
	"time"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// UserRepositoryMock: мок domain.UserRepository
type UserRepositoryMock struct {
	mock.Mock
}

// NewUserRepositoryMock создает мок и проверяет ожидания по завершении теста
func NewUserRepositoryMock(t mock.TestingT) *UserRepositoryMock {
	m := &UserRepositoryMock{}
	m.Test(t)
	registerCleanup(t, &m.Mock)
	return m
}

func (m *UserRepositoryMock) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	args := m.Called(ctx, externalID)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

func (m *UserRepositoryMock) AppendOrder(ctx context.Context, userID, orderID int64) error {
	return m.Called(ctx, userID, orderID).Error(0)
}

func (m *UserRepositoryMock) SetPaymentCustomerID(ctx context.Context, userID int64, customerID string) error {
	return m.Called(ctx, userID, customerID).Error(0)
}

func (m *UserRepositoryMock) ClearCart(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

// AddressRepositoryMock: мок domain.AddressRepository
type AddressRepositoryMock struct {
	mock.Mock
}

// NewAddressRepositoryMock создает мок и проверяет ожидания по завершении теста
func NewAddressRepositoryMock(t mock.TestingT) *AddressRepositoryMock {
	m := &AddressRepositoryMock{}
	m.Test(t)
	registerCleanup(t, &m.Mock)
	return m
}

func (m *AddressRepositoryMock) GetUserAddress(ctx context.Context, addressID, userID int64) (*domain.Address, error) {
	args := m.Called(ctx, addressID, userID)
	addr, _ := args.Get(0).(*domain.Address)
	return addr, args.Error(1)
}

// CatalogRepositoryMock: мок domain.CatalogRepository
type CatalogRepositoryMock struct {
	mock.Mock
}

// NewCatalogRepositoryMock создает мок и проверяет ожидания по завершении теста
func NewCatalogRepositoryMock(t mock.TestingT) *CatalogRepositoryMock {
	m := &CatalogRepositoryMock{}
	m.Test(t)
	registerCleanup(t, &m.Mock)
	return m
}

func (m *CatalogRepositoryMock) GetProductWithOffer(ctx context.Context, productID int64) (*domain.Product, error) {
	args := m.Called(ctx, productID)
	p, _ := args.Get(0).(*domain.Product)
	return p, args.Error(1)
}

func (m *CatalogRepositoryMock) ListOffers(ctx context.Context) ([]*domain.Offer, error) {
	args := m.Called(ctx)
	offers, _ := args.Get(0).([]*domain.Offer)
	return offers, args.Error(1)
}

func (m *CatalogRepositoryMock) SetOfferStatus(ctx context.Context, offerID int64, status bool) error {
	return m.Called(ctx, offerID, status).Error(0)
}

// InventoryRepositoryMock: мок domain.InventoryRepository
type InventoryRepositoryMock struct {
	mock.Mock
}

// NewInventoryRepositoryMock создает мок и проверяет ожидания по завершении теста
func NewInventoryRepositoryMock(t mock.TestingT) *InventoryRepositoryMock {
	m := &InventoryRepositoryMock{}
	m.Test(t)
	registerCleanup(t, &m.Mock)
	return m
}

func (m *InventoryRepositoryMock) GetInventory(ctx context.Context, productID int64) (*domain.Inventory, error) {
	args := m.Called(ctx, productID)
	inv, _ := args.Get(0).(*domain.Inventory)
	return inv, args.Error(1)
}

func (m *InventoryRepositoryMock) Decrement(ctx context.Context, d domain.StockDecrement) (bool, error) {
	args := m.Called(ctx, d)
	return args.Bool(0), args.Error(1)
}

// OrderRepositoryMock: мок domain.OrderRepository
type OrderRepositoryMock struct {
	mock.Mock
}

// NewOrderRepositoryMock создает мок и проверяет ожидания по завершении теста
func NewOrderRepositoryMock(t mock.TestingT) *OrderRepositoryMock {
	m := &OrderRepositoryMock{}
	m.Test(t)
	registerCleanup(t, &m.Mock)
	return m
}

func (m *OrderRepositoryMock) CreateOrder(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *OrderRepositoryMock) GetOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(*domain.Order)
	return o, args.Error(1)
}

func (m *OrderRepositoryMock) GetOrderByTrackingID(ctx context.Context, trackingID uuid.UUID) (*domain.Order, error) {
	args := m.Called(ctx, trackingID)
	o, _ := args.Get(0).(*domain.Order)
	return o, args.Error(1)
}

func (m *OrderRepositoryMock) SetPaymentSession(ctx context.Context, orderID int64, sessionID string) error {
	return m.Called(ctx, orderID, sessionID).Error(0)
}

func (m *OrderRepositoryMock) MarkPaid(ctx context.Context, orderID int64) error {
	return m.Called(ctx, orderID).Error(0)
}

func (m *OrderRepositoryMock) SetPaymentStatus(ctx context.Context, orderID int64, status domain.PaymentStatus) error {
	return m.Called(ctx, orderID, status).Error(0)
}

func (m *OrderRepositoryMock) LinkPayment(ctx context.Context, orderID, paymentID int64) error {
	return m.Called(ctx, orderID, paymentID).Error(0)
}

func (m *OrderRepositoryMock) GetPendingOnlineOrders(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Order, error) {
	args := m.Called(ctx, createdBefore, limit)
	orders, _ := args.Get(0).([]*domain.Order)
	return orders, args.Error(1)
}

func (m *OrderRepositoryMock) FlagForAttention(ctx context.Context, orderID int64, reason string) error {
	return m.Called(ctx, orderID, reason).Error(0)
}

// PaymentRepositoryMock: мок domain.PaymentRepository
type PaymentRepositoryMock struct {
	mock.Mock
}

// NewPaymentRepositoryMock создает мок и проверяет ожидания по завершении теста
func NewPaymentRepositoryMock(t mock.TestingT) *PaymentRepositoryMock {
	m := &PaymentRepositoryMock{}
	m.Test(t)
	registerCleanup(t, &m.Mock)
	return m
}

func (m *PaymentRepositoryMock) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	return m.Called(ctx, payment).Error(0)
}

func (m *PaymentRepositoryMock) SetReceiptURL(ctx context.Context, transactionID, receiptURL string) error {
	return m.Called(ctx, transactionID, receiptURL).Error(0)
}

// UnitOfWorkMock выполняет fn сразу, передавая Repos.
// Ошибка, заданная через On("WithinTx"), возвращается до вызова fn.
type UnitOfWorkMock struct {
	mock.Mock
	Repos domain.Repositories
}

// NewUnitOfWorkMock создает UnitOfWorkMock поверх переданных репозиториев
func NewUnitOfWorkMock(t mock.TestingT, repos domain.Repositories) *UnitOfWorkMock {
	m := &UnitOfWorkMock{Repos: repos}
	m.Test(t)
	registerCleanup(t, &m.Mock)
	return m
}

func (m *UnitOfWorkMock) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := m.Called(ctx).Error(0); err != nil {
		return err
	}
	return fn(ctx, m.Repos)
}

type cleanuper interface {
	Cleanup(func())
}

func registerCleanup(t mock.TestingT, m *mock.Mock) {
	if c, ok := t.(cleanuper); ok {
		c.Cleanup(func() { m.AssertExpectations(t) })
	}
}
