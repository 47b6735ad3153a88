package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discounted применяет скидку акции к цене
func (o *Offer) Discounted(price decimal.Decimal) decimal.Decimal {
	return price.Mul(hundred.Sub(o.DiscountValue)).Div(hundred).Round(2)
}

// EffectivePrice возвращает цену товара с учетом акции в момент now
// и признак того, что акция применилась
func (p *Product) EffectivePrice(now time.Time) (decimal.Decimal, bool) {
	if p.Offer.AppliesTo(p.ID, now) {
		return p.Offer.Discounted(p.Price), true
	}
	return p.Price, false
}
