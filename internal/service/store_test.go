package service

import (
	"context"
	"sync"
	"time"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/google/uuid"
)

// memStore: хранилище в памяти с сериализуемыми транзакциями.
// Транзакция держит мьютекс целиком и при ошибке восстанавливает снимок.
type memStore struct {
	mu sync.Mutex

	users         map[string]*domain.User
	orders        map[int64]*domain.Order
	payments      map[string]*domain.Payment
	stock         map[stockKey]int
	decremented   map[memDecrementKey]bool
	clearedCarts  map[int64]int
	attention     map[int64]string
	nextPaymentID int64
}

type memDecrementKey struct {
	orderID int64
	stockKey
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]*domain.User),
		orders:        make(map[int64]*domain.Order),
		payments:      make(map[string]*domain.Payment),
		stock:         make(map[stockKey]int),
		decremented:   make(map[memDecrementKey]bool),
		clearedCarts:  make(map[int64]int),
		attention:     make(map[int64]string),
		nextPaymentID: 1,
	}
}

func (s *memStore) addOrder(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = copyOrder(o)
}

func (s *memStore) setStock(productID int64, size string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[stockKey{productID, size}] = qty
}

func (s *memStore) stockOf(productID int64, size string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[stockKey{productID, size}]
}

func (s *memStore) order(id int64) *domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyOrder(s.orders[id])
}

func (s *memStore) paymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

func (s *memStore) cartClears(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearedCarts[userID]
}

func copyOrder(o *domain.Order) *domain.Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	c.PaymentIDs = append([]int64(nil), o.PaymentIDs...)
	return &c
}

type memSnapshot struct {
	orders        map[int64]*domain.Order
	payments      map[string]*domain.Payment
	stock         map[stockKey]int
	decremented   map[memDecrementKey]bool
	clearedCarts  map[int64]int
	nextPaymentID int64
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		orders:        make(map[int64]*domain.Order, len(s.orders)),
		payments:      make(map[string]*domain.Payment, len(s.payments)),
		stock:         make(map[stockKey]int, len(s.stock)),
		decremented:   make(map[memDecrementKey]bool, len(s.decremented)),
		clearedCarts:  make(map[int64]int, len(s.clearedCarts)),
		nextPaymentID: s.nextPaymentID,
	}
	for k, v := range s.orders {
		snap.orders[k] = copyOrder(v)
	}
	for k, v := range s.payments {
		p := *v
		snap.payments[k] = &p
	}
	for k, v := range s.stock {
		snap.stock[k] = v
	}
	for k, v := range s.decremented {
		snap.decremented[k] = v
	}
	for k, v := range s.clearedCarts {
		snap.clearedCarts[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.orders = snap.orders
	s.payments = snap.payments
	s.stock = snap.stock
	s.decremented = snap.decremented
	s.clearedCarts = snap.clearedCarts
	s.nextPaymentID = snap.nextPaymentID
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	tx := &memTx{s: s}
	if err := fn(ctx, domain.Repositories{Users: tx, Orders: tx, Payments: tx, Inventory: tx}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Методы вне транзакции берут мьютекс и выполняются как отдельная транзакция

func (s *memStore) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).GetUserByExternalID(ctx, externalID)
}

func (s *memStore) AppendOrder(ctx context.Context, userID, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).AppendOrder(ctx, userID, orderID)
}

func (s *memStore) SetPaymentCustomerID(ctx context.Context, userID int64, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).SetPaymentCustomerID(ctx, userID, customerID)
}

func (s *memStore) ClearCart(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).ClearCart(ctx, userID)
}

func (s *memStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).CreateOrder(ctx, order)
}

func (s *memStore) GetOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).GetOrderByID(ctx, id)
}

func (s *memStore) GetOrderByTrackingID(ctx context.Context, trackingID uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).GetOrderByTrackingID(ctx, trackingID)
}

func (s *memStore) SetPaymentSession(ctx context.Context, orderID int64, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).SetPaymentSession(ctx, orderID, sessionID)
}

func (s *memStore) MarkPaid(ctx context.Context, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).MarkPaid(ctx, orderID)
}

func (s *memStore) SetPaymentStatus(ctx context.Context, orderID int64, status domain.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).SetPaymentStatus(ctx, orderID, status)
}

func (s *memStore) LinkPayment(ctx context.Context, orderID, paymentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).LinkPayment(ctx, orderID, paymentID)
}

func (s *memStore) GetPendingOnlineOrders(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).GetPendingOnlineOrders(ctx, createdBefore, limit)
}

func (s *memStore) FlagForAttention(ctx context.Context, orderID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).FlagForAttention(ctx, orderID, reason)
}

func (s *memStore) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).CreatePayment(ctx, payment)
}

func (s *memStore) SetReceiptURL(ctx context.Context, transactionID, receiptURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).SetReceiptURL(ctx, transactionID, receiptURL)
}

// memTx работает с состоянием memStore под уже взятым мьютексом
type memTx struct {
	s *memStore
}

func (t *memTx) GetUserByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	u, ok := t.s.users[externalID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (t *memTx) userByID(id int64) *domain.User {
	for _, u := range t.s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (t *memTx) AppendOrder(_ context.Context, userID, orderID int64) error {
	if u := t.userByID(userID); u != nil {
		u.OrderIDs = append(u.OrderIDs, orderID)
		return nil
	}
	return domain.ErrUserNotFound
}

func (t *memTx) SetPaymentCustomerID(_ context.Context, userID int64, customerID string) error {
	if u := t.userByID(userID); u != nil {
		u.PaymentCustomerID = customerID
		return nil
	}
	return domain.ErrUserNotFound
}

func (t *memTx) ClearCart(_ context.Context, userID int64) error {
	t.s.clearedCarts[userID]++
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, order *domain.Order) error {
	order.ID = int64(len(t.s.orders) + 1)
	t.s.orders[order.ID] = copyOrder(order)
	return nil
}

func (t *memTx) GetOrderByID(_ context.Context, id int64) (*domain.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (t *memTx) GetOrderByTrackingID(_ context.Context, trackingID uuid.UUID) (*domain.Order, error) {
	for _, o := range t.s.orders {
		if o.TrackingID == trackingID {
			return copyOrder(o), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (t *memTx) SetPaymentSession(_ context.Context, orderID int64, sessionID string) error {
	o, ok := t.s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.PaymentSessionID = sessionID
	return nil
}

func (t *memTx) MarkPaid(_ context.Context, orderID int64) error {
	o, ok := t.s.orders[orderID]
	if !ok || o.PaymentStatus == domain.PaymentStatusPaid {
		return domain.ErrAlreadyReconciled
	}
	o.PaymentStatus = domain.PaymentStatusPaid
	return nil
}

func (t *memTx) SetPaymentStatus(_ context.Context, orderID int64, status domain.PaymentStatus) error {
	o, ok := t.s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.PaymentStatus == domain.PaymentStatusUnpaid {
		o.PaymentStatus = status
	}
	return nil
}

func (t *memTx) LinkPayment(_ context.Context, orderID, paymentID int64) error {
	o, ok := t.s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.PaymentIDs = append(o.PaymentIDs, paymentID)
	return nil
}

func (t *memTx) GetPendingOnlineOrders(_ context.Context, createdBefore time.Time, limit int) ([]*domain.Order, error) {
	var pending []*domain.Order
	for _, o := range t.s.orders {
		if len(pending) == limit {
			break
		}
		if _, flagged := t.s.attention[o.ID]; flagged {
			continue
		}
		if o.PaymentStatus == domain.PaymentStatusUnpaid && o.PaymentSessionID != "" && o.CreatedAt.Before(createdBefore) {
			pending = append(pending, copyOrder(o))
		}
	}
	return pending, nil
}

func (t *memTx) FlagForAttention(_ context.Context, orderID int64, reason string) error {
	if o, ok := t.s.orders[orderID]; ok && o.PaymentStatus == domain.PaymentStatusUnpaid {
		t.s.attention[orderID] = reason
	}
	return nil
}

func (t *memTx) CreatePayment(_ context.Context, payment *domain.Payment) error {
	if _, ok := t.s.payments[payment.TransactionID]; ok {
		return domain.ErrPaymentExists
	}
	payment.ID = t.s.nextPaymentID
	t.s.nextPaymentID++
	p := *payment
	t.s.payments[payment.TransactionID] = &p
	return nil
}

func (t *memTx) SetReceiptURL(_ context.Context, transactionID, receiptURL string) error {
	if p, ok := t.s.payments[transactionID]; ok && p.ReceiptURL == "" {
		p.ReceiptURL = receiptURL
	}
	return nil
}

func (t *memTx) GetInventory(_ context.Context, productID int64) (*domain.Inventory, error) {
	inv := &domain.Inventory{ProductID: productID}
	for k, qty := range t.s.stock {
		if k.productID == productID {
			inv.Sizes = append(inv.Sizes, domain.SizeStock{Size: k.size, Quantity: qty})
			inv.TotalQuantity += qty
		}
	}
	if len(inv.Sizes) == 0 {
		return nil, domain.ErrInventoryNotFound
	}
	return inv, nil
}

func (t *memTx) Decrement(_ context.Context, d domain.StockDecrement) (bool, error) {
	key := memDecrementKey{orderID: d.OrderID, stockKey: stockKey{d.ProductID, d.Size}}
	if t.s.decremented[key] {
		return false, nil
	}
	if t.s.stock[key.stockKey] < d.Quantity {
		return false, domain.ErrStockExhausted
	}
	t.s.stock[key.stockKey] -= d.Quantity
	t.s.decremented[key] = true
	return true, nil
}
