package paymentmodel

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the slice of the externally-owned order entity the payment flow
// reads and advances. The rest of the order model lives with its owner.
type Order struct {
	OrderID       uint64          `gorm:"column:order_id;primaryKey"`
	TenantID      uint64          `gorm:"column:tenant_id;index"`
	Total         decimal.Decimal `gorm:"column:total;type:decimal(20,2)"`
	Currency      string          `gorm:"column:currency;size:8"`
	Status        string          `gorm:"column:status;size:32"`
	PaymentStatus string          `gorm:"column:payment_status;size:32"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
}

func (Order) TableName() string { return "p_order" }

// Workflow and payment status values the payment flow touches.
const (
	OrderAwaitingPayment = "awaiting_payment"
	OrderProcessing      = "processing"

	OrderPaymentUnpaid = "unpaid"
	OrderPaymentPaid   = "paid"
)

// OrderStatusHistory is the audit trail row appended on payment completion.
type OrderStatusHistory struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   uint64    `gorm:"column:order_id;index"`
	Status    string    `gorm:"column:status;size:32"`
	Note      string    `gorm:"column:note;size:255"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (OrderStatusHistory) TableName() string { return "p_order_status_history" }
