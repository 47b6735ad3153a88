package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/jackc/pgx/v5"
)

// AddressRepository реализует domain.AddressRepository
type AddressRepository struct {
	db DBTX
}

// NewAddressRepository создает новый AddressRepository
func NewAddressRepository(db DBTX) *AddressRepository {
	return &AddressRepository{db: db}
}

// GetUserAddress получает адрес, только если он принадлежит пользователю
func (r *AddressRepository) GetUserAddress(ctx context.Context, addressID, userID int64) (*domain.Address, error) {
	addr := &domain.Address{}

	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, full_name, line1, city, state, postal_code, phone
		 FROM addresses
		 WHERE id = $1 AND user_id = $2`,
		addressID, userID,
	).Scan(&addr.ID, &addr.UserID, &addr.FullName, &addr.Line1, &addr.City, &addr.State, &addr.PostalCode, &addr.Phone)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAddressNotFound
		}
		return nil, fmt.Errorf("repository: failed to get address %d: %w", addressID, err)
	}

	return addr, nil
}
