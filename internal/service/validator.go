package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/shopspring/decimal"
)

// ValidatorConfig содержит пороги проверки сумм заказа
type ValidatorConfig struct {
	// Допустимое расхождение сумм из-за округления
	Tolerance decimal.Decimal
	// Максимальная сумма заказа, ноль отключает проверку
	MaxOrderAmount decimal.Decimal
	// Порог бесплатной доставки, ноль отключает проверку стоимости доставки
	FreeDeliveryThreshold decimal.Decimal
	// Стоимость доставки ниже порога
	StandardDeliveryCharge decimal.Decimal
}

// DefaultValidatorConfig возвращает пороги по умолчанию
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		Tolerance:              decimal.NewFromInt(1),
		MaxOrderAmount:         decimal.NewFromInt(500000),
		FreeDeliveryThreshold:  decimal.NewFromInt(1000),
		StandardDeliveryCharge: decimal.NewFromInt(49),
	}
}

// Validator проверяет заявку на заказ до записи в базу
type Validator struct {
	addresses domain.AddressRepository
	catalog   domain.CatalogRepository
	inventory domain.InventoryRepository
	cfg       ValidatorConfig
	now       func() time.Time
}

// NewValidator создает новый Validator. now задает текущее время для проверки акций.
func NewValidator(
	addresses domain.AddressRepository,
	catalog domain.CatalogRepository,
	inventory domain.InventoryRepository,
	cfg ValidatorConfig,
	now func() time.Time,
) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{
		addresses: addresses,
		catalog:   catalog,
		inventory: inventory,
		cfg:       cfg,
		now:       now,
	}
}

// Validate выполняет все проверки по порядку и возвращает проверенный черновик заказа
func (v *Validator) Validate(ctx context.Context, userID int64, sub *domain.OrderSubmission) (*domain.OrderDraft, error) {
	draft, err := v.ValidateRequestShape(sub)
	if err != nil {
		return nil, err
	}

	if err := v.ValidateAddressOwnership(ctx, draft.AddressID, userID); err != nil {
		return nil, err
	}

	if err := v.ValidateAmounts(draft); err != nil {
		return nil, err
	}

	if err := v.ValidateInventoryAvailability(ctx, draft.Items); err != nil {
		return nil, err
	}

	discount, err := v.ValidateLineItemPricing(ctx, draft.Items)
	if err != nil {
		return nil, err
	}
	draft.TotalDiscount = discount

	return draft, nil
}

func missingField(field string) error {
	return domain.NewError(domain.KindMissingField, fmt.Sprintf("field %q is required", field),
		map[string]any{"field": field})
}

// ValidateRequestShape проверяет наличие обязательных полей и тип заказа.
// Отсутствующие суммы наличной и онлайн-частей считаются нулевыми.
func (v *Validator) ValidateRequestShape(sub *domain.OrderSubmission) (*domain.OrderDraft, error) {
	if sub == nil {
		return nil, domain.NewError(domain.KindMissingField, "order data is required", nil)
	}

	switch {
	case sub.UserExternalID == "":
		return nil, missingField("user")
	case sub.AddressID == nil:
		return nil, missingField("addressId")
	case sub.PayableAmount == nil:
		return nil, missingField("payableAmount")
	case sub.OrderType == nil || *sub.OrderType == "":
		return nil, missingField("orderType")
	case sub.Items == nil:
		return nil, missingField("items")
	case sub.DeliveryCharge == nil:
		return nil, missingField("deliveryCharge")
	}

	orderType := domain.OrderType(*sub.OrderType)
	if !orderType.Valid() {
		return nil, domain.NewError(domain.KindInvalidOrderType,
			fmt.Sprintf("order type %q is not supported", *sub.OrderType),
			map[string]any{"orderType": *sub.OrderType})
	}

	if len(sub.Items) == 0 {
		return nil, domain.NewError(domain.KindEmptyCart, "cart is empty", nil)
	}

	items := make([]domain.OrderItem, 0, len(sub.Items))
	subtotal := decimal.Zero
	for i, it := range sub.Items {
		switch {
		case it.ProductID <= 0:
			return nil, missingField(fmt.Sprintf("items[%d].productId", i))
		case it.Size == "":
			return nil, missingField(fmt.Sprintf("items[%d].size", i))
		case it.Quantity <= 0:
			return nil, missingField(fmt.Sprintf("items[%d].quantity", i))
		}
		items = append(items, domain.OrderItem{
			ProductID:     it.ProductID,
			Size:          it.Size,
			Quantity:      it.Quantity,
			PayableAmount: it.PayableAmount,
		})
		subtotal = subtotal.Add(it.PayableAmount)
	}

	draft := &domain.OrderDraft{
		UserExternalID: sub.UserExternalID,
		AddressID:      *sub.AddressID,
		Type:           orderType,
		Items:          items,
		CartSubtotal:   subtotal,
		DeliveryCharge: *sub.DeliveryCharge,
		PayableAmount:  *sub.PayableAmount,
	}
	if sub.CartSubtotal != nil {
		draft.CartSubtotal = *sub.CartSubtotal
	}
	if sub.CashAmount != nil {
		draft.CashAmount = *sub.CashAmount
	}
	if sub.OnlineAmount != nil {
		draft.OnlineAmount = *sub.OnlineAmount
	}

	return draft, nil
}

// ValidateAddressOwnership проверяет, что адрес существует и принадлежит пользователю
func (v *Validator) ValidateAddressOwnership(ctx context.Context, addressID, userID int64) error {
	_, err := v.addresses.GetUserAddress(ctx, addressID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrAddressNotFound) {
			return domain.NewError(domain.KindAddressNotFound,
				fmt.Sprintf("address %d not found", addressID),
				map[string]any{"addressId": addressID})
		}
		return fmt.Errorf("validator: failed to load address %d: %w", addressID, err)
	}

	return nil
}

// ValidateAmounts сверяет итоговые суммы и распределение оплаты.
// При успехе заполняет draft.Payment.
func (v *Validator) ValidateAmounts(draft *domain.OrderDraft) error {
	tol := v.cfg.Tolerance

	lineSum := decimal.Zero
	for _, it := range draft.Items {
		lineSum = lineSum.Add(it.PayableAmount)
	}
	if !domain.WithinTolerance(lineSum, draft.CartSubtotal, tol) {
		return domain.NewError(domain.KindTotalMismatch, "cart total does not match the sum of items",
			map[string]any{"field": "cartTotal", "expected": lineSum, "submitted": draft.CartSubtotal})
	}

	expectedPayable := draft.CartSubtotal.Add(draft.DeliveryCharge)
	if !domain.WithinTolerance(expectedPayable, draft.PayableAmount, tol) {
		return domain.NewError(domain.KindTotalMismatch, "payable amount does not match cart total plus delivery",
			map[string]any{"field": "payableAmount", "expected": expectedPayable, "submitted": draft.PayableAmount})
	}

	if err := v.validateDeliveryCharge(draft); err != nil {
		return err
	}

	split, err := v.paymentSplit(draft)
	if err != nil {
		return err
	}

	if v.cfg.MaxOrderAmount.IsPositive() && draft.PayableAmount.GreaterThan(v.cfg.MaxOrderAmount) {
		return domain.NewError(domain.KindAmountExceedsLimit, "order amount exceeds the allowed limit",
			map[string]any{"limit": v.cfg.MaxOrderAmount, "submitted": draft.PayableAmount})
	}

	draft.Payment = split
	return nil
}

func (v *Validator) validateDeliveryCharge(draft *domain.OrderDraft) error {
	charge := draft.DeliveryCharge
	if charge.IsNegative() {
		return domain.NewError(domain.KindDeliveryChargeInvalid, "delivery charge cannot be negative",
			map[string]any{"submitted": charge})
	}

	threshold := v.cfg.FreeDeliveryThreshold
	if !threshold.IsPositive() {
		return nil
	}

	expected := v.cfg.StandardDeliveryCharge
	if draft.CartSubtotal.GreaterThanOrEqual(threshold) {
		expected = decimal.Zero
	}
	if !charge.Equal(expected) {
		return domain.NewError(domain.KindDeliveryChargeInvalid, "delivery charge does not match the delivery policy",
			map[string]any{"expected": expected, "submitted": charge, "freeDeliveryThreshold": threshold})
	}

	return nil
}

func splitInvalid(msg string, draft *domain.OrderDraft) error {
	return domain.NewError(domain.KindPaymentSplitInvalid, msg, map[string]any{
		"orderType":     draft.Type,
		"cashAmount":    draft.CashAmount,
		"onlineAmount":  draft.OnlineAmount,
		"payableAmount": draft.PayableAmount,
	})
}

func (v *Validator) paymentSplit(draft *domain.OrderDraft) (domain.PaymentSplit, error) {
	tol := v.cfg.Tolerance
	cash, online, payable := draft.CashAmount, draft.OnlineAmount, draft.PayableAmount

	if cash.IsNegative() || online.IsNegative() {
		return nil, splitInvalid("payment portions cannot be negative", draft)
	}

	switch draft.Type {
	case domain.OrderTypeCash:
		if !online.IsZero() || !domain.WithinTolerance(cash, payable, tol) {
			return nil, splitInvalid("cash order must be paid fully in cash", draft)
		}
		return domain.CashPayment{Amount: cash}, nil

	case domain.OrderTypeOnline:
		if !cash.IsZero() || !domain.WithinTolerance(online, payable, tol) {
			return nil, splitInvalid("online order must be paid fully online", draft)
		}
		return domain.OnlinePayment{Amount: online}, nil

	case domain.OrderTypeHybrid:
		if !cash.IsPositive() || !online.IsPositive() {
			return nil, splitInvalid("both cash and online portions are required", draft)
		}
		if !domain.WithinTolerance(cash.Add(online), payable, tol) {
			return nil, splitInvalid("cash and online portions must add up to the payable amount", draft)
		}
		return domain.HybridPayment{Cash: cash, Online: online}, nil
	}

	return nil, domain.NewError(domain.KindInvalidOrderType,
		fmt.Sprintf("order type %q is not supported", draft.Type), nil)
}

type stockKey struct {
	productID int64
	size      string
}

// ValidateInventoryAvailability проверяет остатки по каждой позиции.
// Позиции с одинаковыми товаром и размером суммируются.
func (v *Validator) ValidateInventoryAvailability(ctx context.Context, items []domain.OrderItem) error {
	requested := make(map[stockKey]int, len(items))
	for _, it := range items {
		requested[stockKey{it.ProductID, it.Size}] += it.Quantity
	}

	loaded := make(map[int64]*domain.Inventory)
	checked := make(map[stockKey]bool, len(items))
	for _, it := range items {
		key := stockKey{it.ProductID, it.Size}
		if checked[key] {
			continue
		}
		checked[key] = true

		inv, ok := loaded[it.ProductID]
		if !ok {
			var err error
			inv, err = v.inventory.GetInventory(ctx, it.ProductID)
			if err != nil {
				if errors.Is(err, domain.ErrInventoryNotFound) {
					return domain.NewError(domain.KindProductNotInInventory,
						fmt.Sprintf("product %d is not in inventory", it.ProductID),
						map[string]any{"productId": it.ProductID})
				}
				return fmt.Errorf("validator: failed to load inventory for product %d: %w", it.ProductID, err)
			}
			loaded[it.ProductID] = inv
		}

		available, stocked := inv.Available(it.Size)
		if !stocked {
			return domain.NewError(domain.KindSizeUnavailable,
				fmt.Sprintf("size %s of product %d is not available", it.Size, it.ProductID),
				map[string]any{"productId": it.ProductID, "size": it.Size})
		}
		if available < requested[key] {
			return domain.NewError(domain.KindInsufficientStock,
				fmt.Sprintf("only %d left of product %d in size %s", available, it.ProductID, it.Size),
				map[string]any{"productId": it.ProductID, "size": it.Size, "available": available, "requested": requested[key]})
		}
	}

	return nil
}

// ValidateLineItemPricing сверяет цену каждой позиции с ценой каталога с учетом акции.
// Заполняет отображаемые поля позиций и возвращает общую сумму скидки.
func (v *Validator) ValidateLineItemPricing(ctx context.Context, items []domain.OrderItem) (decimal.Decimal, error) {
	now := v.now()
	tol := v.cfg.Tolerance
	totalDiscount := decimal.Zero

	for i := range items {
		it := &items[i]

		product, err := v.catalog.GetProductWithOffer(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				return decimal.Zero, domain.NewError(domain.KindProductNotInInventory,
					fmt.Sprintf("product %d not found", it.ProductID),
					map[string]any{"productId": it.ProductID})
			}
			return decimal.Zero, fmt.Errorf("validator: failed to load product %d: %w", it.ProductID, err)
		}

		qty := decimal.NewFromInt(int64(it.Quantity))
		unit, offerApplied := product.EffectivePrice(now)
		expected := unit.Mul(qty)

		if !domain.WithinTolerance(expected, it.PayableAmount, tol) {
			details := map[string]any{
				"productId":    it.ProductID,
				"expected":     expected,
				"submitted":    it.PayableAmount,
				"offerApplied": offerApplied,
			}
			mismatch := domain.NewError(domain.KindPriceMismatch,
				fmt.Sprintf("price of product %d does not match", it.ProductID), details)

			// Цена посчитана по акции, которая сейчас не действует
			if product.Offer != nil && !offerApplied &&
				domain.WithinTolerance(product.Offer.Discounted(product.Price).Mul(qty), it.PayableAmount, tol) {
				details["offerId"] = product.Offer.ID
				return decimal.Zero, &domain.Error{
					Kind:    domain.KindOfferNotApplicable,
					Message: fmt.Sprintf("offer %d does not apply to product %d", product.Offer.ID, it.ProductID),
					Details: details,
					Err:     mismatch,
				}
			}
			return decimal.Zero, mismatch
		}

		it.ProductName = product.Name
		it.UnitPrice = unit
		it.ImageURL = product.ImageURL
		totalDiscount = totalDiscount.Add(product.Price.Mul(qty).Sub(expected))
	}

	return totalDiscount, nil
}
