package domain

import "github.com/shopspring/decimal"

// SubmittedItem представляет позицию заказа в том виде, в каком ее прислал клиент
type SubmittedItem struct {
	ProductID     int64           `json:"productId"`
	Size          string          `json:"size"`
	Quantity      int             `json:"quantity"`
	PayableAmount decimal.Decimal `json:"payableAmount"`
}

// OrderSubmission представляет непроверенную заявку на заказ.
// Указатели позволяют отличить отсутствующее поле от нулевого значения.
type OrderSubmission struct {
	UserExternalID string           `json:"-"`
	AddressID      *int64           `json:"addressId"`
	OrderType      *string          `json:"orderType"`
	Items          []SubmittedItem  `json:"items"`
	CartSubtotal   *decimal.Decimal `json:"cartTotal"`
	DeliveryCharge *decimal.Decimal `json:"deliveryCharge"`
	PayableAmount  *decimal.Decimal `json:"payableAmount"`
	CashAmount     *decimal.Decimal `json:"cashAmount"`
	OnlineAmount   *decimal.Decimal `json:"onlineAmount"`
}

// PaymentSplit: распределение суммы заказа между наличными и онлайн-оплатой.
// Реализуется только типами CashPayment, OnlinePayment и HybridPayment.
type PaymentSplit interface {
	Type() OrderType
	CashPortion() decimal.Decimal
	OnlinePortion() decimal.Decimal
	isPaymentSplit()
}

// CashPayment: оплата наличными при получении
type CashPayment struct {
	Amount decimal.Decimal
}

func (CashPayment) Type() OrderType { return OrderTypeCash }
func (p CashPayment) CashPortion() decimal.Decimal { return p.Amount }
func (CashPayment) OnlinePortion() decimal.Decimal { return decimal.Zero }
func (CashPayment) isPaymentSplit() {}

// OnlinePayment: полная онлайн-оплата
type OnlinePayment struct {
	Amount decimal.Decimal
}

func (OnlinePayment) Type() OrderType { return OrderTypeOnline }
func (OnlinePayment) CashPortion() decimal.Decimal { return decimal.Zero }
func (p OnlinePayment) OnlinePortion() decimal.Decimal { return p.Amount }
func (OnlinePayment) isPaymentSplit() {}

// HybridPayment: часть онлайн, остаток наличными при получении
type HybridPayment struct {
	Cash   decimal.Decimal
	Online decimal.Decimal
}

func (HybridPayment) Type() OrderType { return OrderTypeHybrid }
func (p HybridPayment) CashPortion() decimal.Decimal { return p.Cash }
func (p HybridPayment) OnlinePortion() decimal.Decimal { return p.Online }
func (HybridPayment) isPaymentSplit() {}

// OrderDraft: заявка, прошедшая проверку формы.
// Payment заполняется после проверки сумм.
type OrderDraft struct {
	UserExternalID string
	AddressID      int64
	Type           OrderType
	Items          []OrderItem
	CartSubtotal   decimal.Decimal
	TotalDiscount  decimal.Decimal
	DeliveryCharge decimal.Decimal
	PayableAmount  decimal.Decimal
	CashAmount     decimal.Decimal
	OnlineAmount   decimal.Decimal
	Payment        PaymentSplit
}
