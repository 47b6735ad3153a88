package postgres

import (
	"context"
	"fmt"

	"github.com/avc/storefront-orders/internal/domain"
)

// InventoryRepository реализует domain.InventoryRepository
type InventoryRepository struct {
	db DBTX
}

// NewInventoryRepository создает новый InventoryRepository
func NewInventoryRepository(db DBTX) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// GetInventory получает остатки товара по размерам
func (r *InventoryRepository) GetInventory(ctx context.Context, productID int64) (*domain.Inventory, error) {
	rows, err := r.db.Query(ctx,
		`SELECT i.total_quantity, s.size, s.quantity
		 FROM inventories i
		 JOIN inventory_sizes s ON s.product_id = i.product_id
		 WHERE i.product_id = $1
		 ORDER BY s.size`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to get inventory for product %d: %w", productID, err)
	}
	defer rows.Close()

	inv := &domain.Inventory{ProductID: productID}
	found := false
	for rows.Next() {
		var s domain.SizeStock
		if err := rows.Scan(&inv.TotalQuantity, &s.Size, &s.Quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan inventory size: %w", err)
		}
		inv.Sizes = append(inv.Sizes, s)
		found = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating inventory sizes: %w", err)
	}

	if !found {
		return nil, domain.ErrInventoryNotFound
	}

	return inv, nil
}

// Decrement списывает остаток по позиции заказа.
// Запись в inventory_movements делает списание однократным: повторный вызов
// для той же позиции возвращает false и остатки не трогает.
// Если остатка не хватает, возвращается domain.ErrStockExhausted.
// Метод рассчитан на вызов внутри транзакции.
func (r *InventoryRepository) Decrement(ctx context.Context, d domain.StockDecrement) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO inventory_movements (order_id, product_id, size, quantity)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (order_id, product_id, size) DO NOTHING`,
		d.OrderID, d.ProductID, d.Size, d.Quantity,
	)
	if err != nil {
		return false, fmt.Errorf("repository: failed to record stock movement for order %d: %w", d.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	tag, err = r.db.Exec(ctx,
		`UPDATE inventory_sizes
		 SET quantity = quantity - $3
		 WHERE product_id = $1 AND size = $2 AND quantity >= $3`,
		d.ProductID, d.Size, d.Quantity,
	)
	if err != nil {
		return false, fmt.Errorf("repository: failed to decrement size %q of product %d: %w", d.Size, d.ProductID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, domain.ErrStockExhausted
	}

	tag, err = r.db.Exec(ctx,
		`UPDATE inventories
		 SET total_quantity = total_quantity - $2
		 WHERE product_id = $1 AND total_quantity >= $2`,
		d.ProductID, d.Quantity,
	)
	if err != nil {
		return false, fmt.Errorf("repository: failed to decrement total of product %d: %w", d.ProductID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, domain.ErrStockExhausted
	}

	return true, nil
}
