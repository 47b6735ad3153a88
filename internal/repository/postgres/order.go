package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderRepository реализует domain.OrderRepository
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository создает новый OrderRepository
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, tracking_id, user_id, address_id, cart_subtotal, total_discount, delivery_charge,
	payable_amount, order_type, cash_amount, online_amount, status, payment_status,
	COALESCE(payment_session_id, ''), payment_ids, created_at, updated_at`

func scanOrder(row pgx.Row, o *domain.Order) error {
	return row.Scan(&o.ID, &o.TrackingID, &o.UserID, &o.AddressID, &o.CartSubtotal, &o.TotalDiscount, &o.DeliveryCharge,
		&o.PayableAmount, &o.Type, &o.CashAmount, &o.OnlineAmount, &o.Status, &o.PaymentStatus,
		&o.PaymentSessionID, &o.PaymentIDs, &o.CreatedAt, &o.UpdatedAt)
}

// CreateOrder сохраняет заказ вместе с позициями.
// ID, CreatedAt и UpdatedAt заполняются из базы.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO orders (tracking_id, user_id, address_id, cart_subtotal, total_discount, delivery_charge,
		                     payable_amount, order_type, cash_amount, online_amount, status, payment_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`,
		order.TrackingID, order.UserID, order.AddressID, order.CartSubtotal, order.TotalDiscount, order.DeliveryCharge,
		order.PayableAmount, order.Type, order.CashAmount, order.OnlineAmount, order.Status, order.PaymentStatus,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("repository: order with tracking id %s already exists: %w", order.TrackingID, err)
		}
		return fmt.Errorf("repository: failed to create order: %w", err)
	}

	for i, item := range order.Items {
		_, err := r.db.Exec(ctx,
			`INSERT INTO order_items (order_id, line_no, product_id, size, quantity, payable_amount,
			                          product_name, unit_price, image_url)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			order.ID, i+1, item.ProductID, item.Size, item.Quantity, item.PayableAmount,
			item.ProductName, item.UnitPrice, item.ImageURL,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to create item %d of order %d: %w", i+1, order.ID, err)
		}
	}

	return nil
}

// GetOrderByID получает заказ с позициями по ID
func (r *OrderRepository) GetOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	order := &domain.Order{}

	err := scanOrder(r.db.QueryRow(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE id = $1`,
		id,
	), order)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to get order %d: %w", id, err)
	}

	if order.Items, err = r.getItems(ctx, order.ID); err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrderByTrackingID получает заказ с позициями по публичному идентификатору
func (r *OrderRepository) GetOrderByTrackingID(ctx context.Context, trackingID uuid.UUID) (*domain.Order, error) {
	order := &domain.Order{}

	err := scanOrder(r.db.QueryRow(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE tracking_id = $1`,
		trackingID,
	), order)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to get order by tracking id %s: %w", trackingID, err)
	}

	if order.Items, err = r.getItems(ctx, order.ID); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) getItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT product_id, size, quantity, payable_amount, product_name, unit_price, image_url
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY line_no`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to get items of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Size, &it.Quantity, &it.PayableAmount, &it.ProductName, &it.UnitPrice, &it.ImageURL); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}

	return items, nil
}

// SetPaymentSession привязывает к заказу сессию оплаты
func (r *OrderRepository) SetPaymentSession(ctx context.Context, orderID int64, sessionID string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE orders
		 SET payment_session_id = $2, updated_at = NOW()
		 WHERE id = $1`,
		orderID, sessionID,
	)

	if err != nil {
		return fmt.Errorf("repository: failed to set payment session of order %d: %w", orderID, err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

// MarkPaid переводит заказ в оплаченные. Условие в WHERE гарантирует,
// что из двух параллельных сверок запись выполнит только одна.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID int64) error {
	result, err := r.db.Exec(ctx,
		`UPDATE orders
		 SET payment_status = $2, updated_at = NOW()
		 WHERE id = $1 AND payment_status <> $2`,
		orderID, domain.PaymentStatusPaid,
	)

	if err != nil {
		return fmt.Errorf("repository: failed to mark order %d paid: %w", orderID, err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrAlreadyReconciled
	}

	return nil
}

// SetPaymentStatus выставляет итоговый статус неуспешной оплаты.
// Меняется только неоплаченный заказ.
func (r *OrderRepository) SetPaymentStatus(ctx context.Context, orderID int64, status domain.PaymentStatus) error {
	_, err := r.db.Exec(ctx,
		`UPDATE orders
		 SET payment_status = $2, updated_at = NOW()
		 WHERE id = $1 AND payment_status = $3`,
		orderID, status, domain.PaymentStatusUnpaid,
	)

	if err != nil {
		return fmt.Errorf("repository: failed to set payment status of order %d: %w", orderID, err)
	}

	return nil
}

// LinkPayment добавляет платеж в список платежей заказа
func (r *OrderRepository) LinkPayment(ctx context.Context, orderID, paymentID int64) error {
	result, err := r.db.Exec(ctx,
		`UPDATE orders
		 SET payment_ids = array_append(payment_ids, $2), updated_at = NOW()
		 WHERE id = $1`,
		orderID, paymentID,
	)

	if err != nil {
		return fmt.Errorf("repository: failed to link payment %d to order %d: %w", paymentID, orderID, err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

// GetPendingOnlineOrders получает неоплаченные заказы с сессией оплаты,
// созданные раньше createdBefore. Заказы, отложенные для ручного разбора, пропускаются.
// Позиции не загружаются.
func (r *OrderRepository) GetPendingOnlineOrders(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE payment_status = $1 AND payment_session_id IS NOT NULL AND NOT needs_attention AND created_at < $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		domain.PaymentStatusUnpaid, createdBefore, limit,
	)

	if err != nil {
		return nil, fmt.Errorf("repository: failed to get pending online orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order := &domain.Order{}
		if err := scanOrder(rows, order); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating pending orders: %w", err)
	}

	return orders, nil
}

// FlagForAttention откладывает неоплаченный заказ для ручного разбора.
// Ручная сверка по заказу остается доступной.
func (r *OrderRepository) FlagForAttention(ctx context.Context, orderID int64, reason string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE orders
		 SET needs_attention = TRUE, attention_reason = $2, updated_at = NOW()
		 WHERE id = $1 AND payment_status = $3`,
		orderID, reason, domain.PaymentStatusUnpaid,
	)

	if err != nil {
		return fmt.Errorf("repository: failed to flag order %d for attention: %w", orderID, err)
	}

	return nil
}
