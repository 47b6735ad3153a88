package postgres

import (
	"context"
	"fmt"

	"github.com/avc/storefront-orders/internal/domain"
)

// PaymentRepository реализует domain.PaymentRepository
type PaymentRepository struct {
	db DBTX
}

// NewPaymentRepository создает новый PaymentRepository
func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreatePayment сохраняет платеж. Один transaction_id записывается только один раз:
// при повторе возвращается domain.ErrPaymentExists.
func (r *PaymentRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO payments (order_id, status, method, transaction_id, customer_id, receipt_url, paid_at, session_id, amount)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		payment.OrderID, payment.Status, payment.Method, payment.TransactionID, payment.CustomerID,
		payment.ReceiptURL, payment.PaidAt, payment.SessionID, payment.Amount,
	).Scan(&payment.ID, &payment.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentExists
		}
		return fmt.Errorf("repository: failed to create payment for order %d: %w", payment.OrderID, err)
	}

	return nil
}

// SetReceiptURL дописывает ссылку на чек, если ее еще нет
func (r *PaymentRepository) SetReceiptURL(ctx context.Context, transactionID, receiptURL string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE payments
		 SET receipt_url = $2
		 WHERE transaction_id = $1 AND receipt_url = ''`,
		transactionID, receiptURL,
	)

	if err != nil {
		return fmt.Errorf("repository: failed to set receipt for payment %q: %w", transactionID, err)
	}

	return nil
}
