package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderType представляет способ оплаты заказа
type OrderType string

const (
	OrderTypeCash   OrderType = "CASH"
	OrderTypeOnline OrderType = "ONLINE"
	OrderTypeHybrid OrderType = "CASH+ONLINE"
)

// Valid проверяет, что тип заказа известен
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeCash, OrderTypeOnline, OrderTypeHybrid:
		return true
	}
	return false
}

// RequiresOnlinePayment сообщает, нужна ли для заказа сессия оплаты у провайдера
func (t OrderType) RequiresOnlinePayment() bool {
	return t == OrderTypeOnline || t == OrderTypeHybrid
}

// OrderStatus представляет статус доставки заказа
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

// PaymentStatus представляет статус оплаты заказа
type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
	PaymentStatusExpired PaymentStatus = "expired"
)

// User представляет покупателя
type User struct {
	ID                int64     `json:"id"`
	ExternalID        string    `json:"-"` // Идентификатор у провайдера аутентификации
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	PaymentCustomerID string    `json:"-"`
	OrderIDs          []int64   `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// Address представляет адрес доставки пользователя
type Address struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"-"`
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone"`
}

// Offer представляет скидочную акцию
type Offer struct {
	ID            int64           `json:"id"`
	Title         string          `json:"title"`
	Status        bool            `json:"status"`
	DiscountValue decimal.Decimal `json:"discount_value"` // Процент скидки
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	ProductIDs    []int64         `json:"product_ids"` // Пустой список: акция на все товары
}

// InWindow сообщает, попадает ли момент now в период действия акции
func (o *Offer) InWindow(now time.Time) bool {
	return !now.Before(o.StartDate) && !now.After(o.EndDate)
}

// AppliesTo сообщает, действует ли акция на товар в момент now
func (o *Offer) AppliesTo(productID int64, now time.Time) bool {
	if o == nil || !o.Status || !o.InWindow(now) {
		return false
	}
	if len(o.ProductIDs) == 0 {
		return true
	}
	for _, id := range o.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// Product представляет товар каталога вместе с привязанной акцией
type Product struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url"`
	Sizes    []string        `json:"sizes"`
	OfferID  *int64          `json:"offer_id,omitempty"`
	Offer    *Offer          `json:"offer,omitempty"`
}

// SizeStock представляет остаток одного размера
type SizeStock struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

// Inventory представляет складские остатки товара
type Inventory struct {
	ProductID     int64       `json:"product_id"`
	Sizes         []SizeStock `json:"sizes"`
	TotalQuantity int         `json:"total_quantity"`
}

// Available возвращает остаток размера и признак того, что размер заведен
func (i *Inventory) Available(size string) (int, bool) {
	for _, s := range i.Sizes {
		if s.Size == size {
			return s.Quantity, true
		}
	}
	return 0, false
}

// OrderItem представляет позицию заказа
type OrderItem struct {
	ProductID     int64           `json:"product_id"`
	Size          string          `json:"size"`
	Quantity      int             `json:"quantity"`
	PayableAmount decimal.Decimal `json:"payable_amount"`

	// Денормализованные поля для отображения
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ImageURL    string          `json:"image_url,omitempty"`
}

// Order представляет заказ покупателя
type Order struct {
	ID               int64           `json:"id"`
	TrackingID       uuid.UUID       `json:"tracking_id"`
	UserID           int64           `json:"-"`
	AddressID        int64           `json:"address_id"`
	Items            []OrderItem     `json:"items"`
	CartSubtotal     decimal.Decimal `json:"cart_subtotal"`
	TotalDiscount    decimal.Decimal `json:"total_discount"`
	DeliveryCharge   decimal.Decimal `json:"delivery_charge"`
	PayableAmount    decimal.Decimal `json:"payable_amount"`
	Type             OrderType       `json:"order_type"`
	CashAmount       decimal.Decimal `json:"cash_amount"`
	OnlineAmount     decimal.Decimal `json:"online_amount"`
	Status           OrderStatus     `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	PaymentSessionID string          `json:"-"`
	PaymentIDs       []int64         `json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Payment представляет подтвержденный платеж по заказу
type Payment struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"order_id"`
	Status        string          `json:"status"`
	Method        string          `json:"method"`
	TransactionID string          `json:"transaction_id"`
	CustomerID    string          `json:"customer_id"`
	ReceiptURL    string          `json:"receipt_url,omitempty"`
	PaidAt        time.Time       `json:"paid_at"`
	SessionID     string          `json:"session_id"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

// StockDecrement описывает списание остатка по одной позиции заказа
type StockDecrement struct {
	OrderID   int64
	ProductID int64
	Size      string
	Quantity  int
}
