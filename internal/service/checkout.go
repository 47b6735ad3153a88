package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/shopspring/decimal"
)

// CheckoutConfig содержит адреса возврата из платежной страницы.
// Подстрока {order_id} заменяется на ID заказа.
type CheckoutConfig struct {
	SuccessURL string
	CancelURL  string
}

const orderIDPlaceholder = "{order_id}"

func expandURL(tmpl string, orderID int64) string {
	return strings.ReplaceAll(tmpl, orderIDPlaceholder, strconv.FormatInt(orderID, 10))
}

// BuildCheckoutRequest формирует запрос на создание сессии оплаты.
// ONLINE: по строке на товар и отдельная строка доставки.
// CASH+ONLINE: одна строка на онлайн-часть с разбивкой в метаданных.
// Сумма строк всегда равна онлайн-части заказа в пайсах: с ней сверяется списанная сумма.
func BuildCheckoutRequest(order *domain.Order, customerID string, cfg CheckoutConfig) *domain.CheckoutSessionRequest {
	orderID := strconv.FormatInt(order.ID, 10)
	metadata := map[string]string{
		"order_id":     orderID,
		"tracking_id":  order.TrackingID.String(),
		"order_type":   string(order.Type),
		"total_amount": order.PayableAmount.StringFixed(2),
	}

	var lines []domain.CheckoutLineItem
	switch order.Type {
	case domain.OrderTypeHybrid:
		split := map[string]string{
			"cash_amount":    order.CashAmount.StringFixed(2),
			"online_amount":  order.OnlineAmount.StringFixed(2),
			"payable_amount": order.PayableAmount.StringFixed(2),
		}
		for k, v := range split {
			metadata[k] = v
		}
		lines = append(lines, domain.CheckoutLineItem{
			Name:       fmt.Sprintf("Online part of order %s", order.TrackingID),
			UnitAmount: domain.ToMinorUnits(order.OnlineAmount),
			Quantity:   1,
			Metadata:   split,
		})

	default:
		lines = itemLines(order)
		if lineTotal(lines) != domain.ToMinorUnits(order.OnlineAmount) {
			// Цены строк не сходятся с онлайн-частью после округления, выставляем заказ одной строкой
			lines = []domain.CheckoutLineItem{{
				Name:       fmt.Sprintf("Order %s", order.TrackingID),
				UnitAmount: domain.ToMinorUnits(order.OnlineAmount),
				Quantity:   1,
			}}
		}
	}

	return &domain.CheckoutSessionRequest{
		CustomerID:     customerID,
		IdempotencyKey: "checkout-" + order.TrackingID.String(),
		LineItems:      lines,
		SuccessURL:     expandURL(cfg.SuccessURL, order.ID),
		CancelURL:      expandURL(cfg.CancelURL, order.ID),
		Metadata:       metadata,
	}
}

func itemLines(order *domain.Order) []domain.CheckoutLineItem {
	lines := make([]domain.CheckoutLineItem, 0, len(order.Items)+1)
	for _, it := range order.Items {
		name := it.ProductName
		if name == "" {
			name = fmt.Sprintf("Product %d", it.ProductID)
		}
		unit := it.PayableAmount.Div(decimal.NewFromInt(int64(it.Quantity)))
		lines = append(lines, domain.CheckoutLineItem{
			Name:       fmt.Sprintf("%s (%s)", name, it.Size),
			UnitAmount: domain.ToMinorUnits(unit),
			Quantity:   int64(it.Quantity),
			Metadata: map[string]string{
				"product_id": strconv.FormatInt(it.ProductID, 10),
				"size":       it.Size,
			},
		})
	}
	if order.DeliveryCharge.IsPositive() {
		lines = append(lines, domain.CheckoutLineItem{
			Name:       "Delivery charge",
			UnitAmount: domain.ToMinorUnits(order.DeliveryCharge),
			Quantity:   1,
		})
	}
	return lines
}

func lineTotal(lines []domain.CheckoutLineItem) int64 {
	var total int64
	for _, l := range lines {
		total += l.UnitAmount * l.Quantity
	}
	return total
}
