package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents all possible states of a dine-in order
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusCooking   OrderStatus = "COOKING"
	StatusReady     OrderStatus = "READY"
	StatusServed    OrderStatus = "SERVED"
	StatusPaid      OrderStatus = "PAID"
	StatusCancelled OrderStatus = "CANCELLED"
)

// PaymentStatus tracks settlement of an order independently of kitchen progress.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash      PaymentMethod = "CASH"
	PaymentCard      PaymentMethod = "CARD"
	PaymentPromptPay PaymentMethod = "PROMPTPAY"
	PaymentTransfer  PaymentMethod = "TRANSFER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentPromptPay, PaymentTransfer:
		return true
	}
	return false
}

type Order struct {
	ID               uint                 `json:"id" gorm:"primaryKey"`
	RestaurantID     uint                 `json:"restaurant_id" gorm:"not null;uniqueIndex:idx_restaurant_order_number;index:idx_restaurant_created,priority:1"`
	Restaurant       Restaurant           `json:"-" gorm:"foreignKey:RestaurantID"`
	TableID          *uint                `json:"table_id"`
	Table            *Table               `json:"table,omitempty" gorm:"foreignKey:TableID"`
	UserID           *uint                `json:"user_id"`
	OrderNumber      string               `json:"order_number" gorm:"size:32;not null;uniqueIndex:idx_restaurant_order_number"`
	CustomerName     string               `json:"customer_name"`
	CustomerPhone    string               `json:"customer_phone"`
	Subtotal         decimal.Decimal      `json:"subtotal" gorm:"type:decimal(10,2);not null"`
	ServiceCharge    decimal.Decimal      `json:"service_charge" gorm:"type:decimal(10,2);not null"`
	Tax              decimal.Decimal      `json:"tax" gorm:"type:decimal(10,2);not null"`
	Total            decimal.Decimal      `json:"total" gorm:"type:decimal(10,2);not null"`
	ServiceChargePct decimal.Decimal      `json:"service_charge_percentage" gorm:"type:decimal(5,2);not null"`
	TaxRate          decimal.Decimal      `json:"tax_rate" gorm:"type:decimal(5,2);not null"`
	PaymentMethod    PaymentMethod        `json:"payment_method" gorm:"size:16;not null;default:'CASH'"`
	PaymentStatus    PaymentStatus        `json:"payment_status" gorm:"size:16;not null;default:'PENDING'"`
	Status           OrderStatus          `json:"status" gorm:"size:16;not null;default:'PENDING'"`
	Notes            string               `json:"notes"`
	PaidAt           *time.Time           `json:"paid_at"`
	Items            []OrderItem          `json:"items,omitempty" gorm:"foreignKey:OrderID"`
	StatusHistory    []OrderStatusHistory `json:"status_history,omitempty" gorm:"foreignKey:OrderID"`
	CreatedAt        time.Time            `json:"created_at" gorm:"index:idx_restaurant_created,priority:2"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

type OrderItem struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	OrderID    uint            `json:"order_id" gorm:"index;not null"`
	MenuID     uint            `json:"menu_id" gorm:"not null"`
	Name       string          `json:"name"` // snapshot name
	Quantity   int             `json:"quantity" gorm:"not null"`
	UnitPrice  decimal.Decimal `json:"unit_price" gorm:"type:decimal(10,2);not null"` // snapshot price at time of order
	TotalPrice decimal.Decimal `json:"total_price" gorm:"type:decimal(10,2);not null"`
	Notes      string          `json:"notes"`
	CreatedAt  time.Time       `json:"created_at"`
}

// OrderStatusHistory is the audit trail of status changes.
type OrderStatusHistory struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	OrderID    uint        `json:"order_id" gorm:"index;not null"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status" gorm:"not null"`
	ChangedBy  *uint       `json:"changed_by"`
	Note       string      `json:"note"`
	CreatedAt  time.Time   `json:"created_at"`
}
