package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateIntentReq asks for a new bank-transfer payment intent for an order.
type CreateIntentReq struct {
	TenantID  uint64 `json:"tenant_id" binding:"required"`
	OrderID   uint64 `json:"order_id" binding:"required"`
	ReturnURL string `json:"return_url" binding:"required"`
	CancelURL string `json:"cancel_url"`
}

// PaymentIntentView is returned to the caller after intent creation.
type PaymentIntentView struct {
	PaymentID       string    `json:"payment_id"`
	OrderID         string    `json:"order_id"`
	Method          string    `json:"method"`
	Status          string    `json:"status"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	BankCode        string    `json:"bank_code"`
	AccountNumber   string    `json:"account_number"`
	AccountName     string    `json:"account_name"`
	QRContent       string    `json:"qr_content"`
	DeepLink        string    `json:"deep_link"`
	TransferContent string    `json:"transfer_content"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// PaymentStatusView is the public status projection, also the cached shape.
type PaymentStatusView struct {
	PaymentID     string     `json:"payment_id"`
	OrderID       string     `json:"order_id"`
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	ProviderTxnID *string    `json:"provider_txn_id,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	OrderStatus   string     `json:"order_status"`
	ExpiresAt     time.Time  `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// BankWebhookPayload is the settlement notification delivered by the provider.
// transfer content is the sole correlation key; the provider never echoes the
// internal payment id.
type BankWebhookPayload struct {
	ProviderTxnID   string          `json:"transaction_id"`
	TransferContent string          `json:"content"`
	Amount          decimal.Decimal `json:"amount"`
	BankCode        string          `json:"bank_code"`
	AccountNumber   string          `json:"account_number"`
	Status          string          `json:"status"`
	TransactionTime time.Time       `json:"transaction_time"`
}

// Webhook statuses the provider sends.
const (
	WebhookStatusSuccess = "success"
	WebhookStatusFailed  = "failed"
)

// WebhookAck is the acknowledgment contract: success=true for everything the
// provider should not redeliver, including unknown or already-settled webhooks.
type WebhookAck struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
