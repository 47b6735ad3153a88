package service

import (
	"context"
	"fmt"
	"time"

	"github.com/avc/storefront-orders/internal/domain"
)

// OfferTransition: изменение статуса акции
type OfferTransition struct {
	OfferID  int64
	Activate bool
}

// ComputeOfferTransitions возвращает акции, статус которых расходится с периодом действия в момент now:
// акции внутри периода включаются, вне периода выключаются.
func ComputeOfferTransitions(now time.Time, offers []*domain.Offer) []OfferTransition {
	var transitions []OfferTransition
	for _, o := range offers {
		if o == nil {
			continue
		}
		active := o.InWindow(now)
		if o.Status != active {
			transitions = append(transitions, OfferTransition{OfferID: o.ID, Activate: active})
		}
	}
	return transitions
}

// OfferService синхронизирует статусы акций с их периодом действия
type OfferService struct {
	catalog domain.CatalogRepository
	now     func() time.Time
}

// NewOfferService создает новый OfferService
func NewOfferService(catalog domain.CatalogRepository, now func() time.Time) *OfferService {
	if now == nil {
		now = time.Now
	}
	return &OfferService{catalog: catalog, now: now}
}

// SyncOfferStatuses применяет переходы статусов и возвращает примененные переходы.
// Повторный запуск без изменения времени ничего не меняет.
func (s *OfferService) SyncOfferStatuses(ctx context.Context) ([]OfferTransition, error) {
	offers, err := s.catalog.ListOffers(ctx)
	if err != nil {
		return nil, fmt.Errorf("offer service: failed to list offers: %w", err)
	}

	transitions := ComputeOfferTransitions(s.now(), offers)
	for i, tr := range transitions {
		if err := s.catalog.SetOfferStatus(ctx, tr.OfferID, tr.Activate); err != nil {
			return transitions[:i], fmt.Errorf("offer service: failed to update offer %d: %w", tr.OfferID, err)
		}
	}

	return transitions, nil
}
