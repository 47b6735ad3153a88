package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CatalogRepository реализует domain.CatalogRepository
type CatalogRepository struct {
	db DBTX
}

// NewCatalogRepository создает новый CatalogRepository
func NewCatalogRepository(db DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetProductWithOffer получает товар вместе с привязанной акцией
func (r *CatalogRepository) GetProductWithOffer(ctx context.Context, productID int64) (*domain.Product, error) {
	p := &domain.Product{}
	var (
		offerID       int64
		title         string
		status        bool
		discountValue decimal.Decimal
		startDate     time.Time
		endDate       time.Time
		offerProducts []int64
	)

	err := r.db.QueryRow(ctx,
		`SELECT p.id, p.name, p.price, p.image_url, p.sizes,
		        COALESCE(o.id, 0), COALESCE(o.title, ''), COALESCE(o.status, FALSE),
		        COALESCE(o.discount_value, 0), COALESCE(o.start_date, 'epoch'), COALESCE(o.end_date, 'epoch'),
		        COALESCE(o.product_ids, '{}')
		 FROM products p
		 LEFT JOIN offers o ON o.id = p.offer_id
		 WHERE p.id = $1`,
		productID,
	).Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL, &p.Sizes,
		&offerID, &title, &status, &discountValue, &startDate, &endDate, &offerProducts)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to get product %d: %w", productID, err)
	}

	if offerID != 0 {
		p.OfferID = &offerID
		p.Offer = &domain.Offer{
			ID:            offerID,
			Title:         title,
			Status:        status,
			DiscountValue: discountValue,
			StartDate:     startDate,
			EndDate:       endDate,
			ProductIDs:    offerProducts,
		}
	}

	return p, nil
}

// ListOffers получает все акции
func (r *CatalogRepository) ListOffers(ctx context.Context) ([]*domain.Offer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, title, status, discount_value, start_date, end_date, product_ids
		 FROM offers
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list offers: %w", err)
	}
	defer rows.Close()

	var offers []*domain.Offer
	for rows.Next() {
		o := &domain.Offer{}
		if err := rows.Scan(&o.ID, &o.Title, &o.Status, &o.DiscountValue, &o.StartDate, &o.EndDate, &o.ProductIDs); err != nil {
			return nil, fmt.Errorf("repository: failed to scan offer: %w", err)
		}
		offers = append(offers, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating offers: %w", err)
	}

	return offers, nil
}

// SetOfferStatus включает или выключает акцию. Повторный вызов с тем же статусом ничего не меняет.
func (r *CatalogRepository) SetOfferStatus(ctx context.Context, offerID int64, status bool) error {
	_, err := r.db.Exec(ctx,
		`UPDATE offers SET status = $2 WHERE id = $1 AND status <> $2`,
		offerID, status,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to set offer %d status: %w", offerID, err)
	}

	return nil
}
