package postgres

import (
	"context"
	"fmt"

	"github.com/avc/storefront-orders/internal/domain"
)

// UnitOfWork реализует domain.UnitOfWork поверх пула соединений
type UnitOfWork struct {
	db DBTX
}

// NewUnitOfWork создает новый UnitOfWork
func NewUnitOfWork(db DBTX) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// WithinTx выполняет fn в транзакции. Репозитории, переданные в fn,
// работают через эту транзакцию. Ошибка fn откатывает все изменения.
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback после Commit безопасен

	repos := domain.Repositories{
		Users:     NewUserRepository(tx),
		Orders:    NewOrderRepository(tx),
		Payments:  NewPaymentRepository(tx),
		Inventory: NewInventoryRepository(tx),
	}

	if err := fn(ctx, repos); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}

	return nil
}
