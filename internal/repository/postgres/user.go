package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/jackc/pgx/v5"
)

// UserRepository реализует domain.UserRepository
type UserRepository struct {
	db DBTX
}

// NewUserRepository создает новый UserRepository
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// GetUserByExternalID получает пользователя по идентификатору провайдера аутентификации
func (r *UserRepository) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	user := &domain.User{}

	err := r.db.QueryRow(ctx,
		`SELECT id, external_id, email, name, COALESCE(payment_customer_id, ''), order_ids, created_at
		 FROM users
		 WHERE external_id = $1`,
		externalID,
	).Scan(&user.ID, &user.ExternalID, &user.Email, &user.Name, &user.PaymentCustomerID, &user.OrderIDs, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("repository: failed to get user %q: %w", externalID, err)
	}

	return user, nil
}

// AppendOrder добавляет заказ в историю заказов пользователя
func (r *UserRepository) AppendOrder(ctx context.Context, userID, orderID int64) error {
	result, err := r.db.Exec(ctx,
		`UPDATE users
		 SET order_ids = array_append(order_ids, $2)
		 WHERE id = $1`,
		userID, orderID,
	)

	if err != nil {
		return fmt.Errorf("repository: failed to append order %d to user %d: %w", orderID, userID, err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// SetPaymentCustomerID сохраняет идентификатор покупателя у платежного провайдера.
// Уже сохраненный идентификатор не перезаписывается.
func (r *UserRepository) SetPaymentCustomerID(ctx context.Context, userID int64, customerID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users
		 SET payment_customer_id = $2
		 WHERE id = $1 AND payment_customer_id IS NULL`,
		userID, customerID,
	)

	if err != nil {
		return fmt.Errorf("repository: failed to set payment customer for user %d: %w", userID, err)
	}

	return nil
}

// ClearCart очищает корзину пользователя
func (r *UserRepository) ClearCart(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("repository: failed to clear cart for user %d: %w", userID, err)
	}

	return nil
}
