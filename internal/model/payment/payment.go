package paymentmodel

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the payment lifecycle state.
type Status int8

const (
	StatusPending    Status = 1
	StatusProcessing Status = 2
	StatusCompleted  Status = 3
	StatusFailed     Status = 4
	StatusExpired    Status = 5
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusProcessing:
		return "PROCESSING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// ActiveStatuses are the states that block a second intent for the same order.
var ActiveStatuses = []Status{StatusPending, StatusProcessing, StatusCompleted}

// OpenStatuses are the states a webhook may still transition.
var OpenStatuses = []Status{StatusPending, StatusProcessing}

// ProviderData is the append-only accumulator of raw provider payloads.
type ProviderData map[string]interface{}

func (d ProviderData) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal provider data failed: %w", err)
	}
	return string(b), nil
}

func (d *ProviderData) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("unsupported provider data column type")
	}
	return json.Unmarshal(b, d)
}

const MethodBankTransfer = "bank_transfer"

// PaymentRecord is the payment intent row. Amount, currency and the transfer
// payload are fixed at creation; reconciliation only compares against them.
type PaymentRecord struct {
	PaymentID       uint64          `gorm:"column:payment_id;primaryKey"`
	OrderID         uint64          `gorm:"column:order_id;index"`
	TenantID        uint64          `gorm:"column:tenant_id;index"`
	Method          string          `gorm:"column:method;size:32"`
	Status          Status          `gorm:"column:status;index"`
	Amount          decimal.Decimal `gorm:"column:amount;type:decimal(20,2)"`
	Currency        string          `gorm:"column:currency;size:8"`
	BankCode        string          `gorm:"column:bank_code;size:16"`
	AccountNumber   string          `gorm:"column:account_number;size:32"`
	AccountName     string          `gorm:"column:account_name;size:128"`
	QRContent       string          `gorm:"column:qr_content;size:512"`
	DeepLink        string          `gorm:"column:deep_link;size:512"`
	TransferContent string          `gorm:"column:transfer_content;size:64;uniqueIndex"`
	ProviderTxnID   *string         `gorm:"column:provider_txn_id;size:64;uniqueIndex"`
	ProviderData    ProviderData    `gorm:"column:provider_data;type:json"`
	ExpiresAt       time.Time       `gorm:"column:expires_at"`
	PaidAt          *time.Time      `gorm:"column:paid_at"`
	FailureReason   *string         `gorm:"column:failure_reason;size:255"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`
}

func (PaymentRecord) TableName() string { return "p_payment" }
