package event

import "time"

// Publisher pushes terminal-state transitions to a tenant's subscribers.
// Delivery is best-effort; reconciliation never depends on it.
type Publisher interface {
	Publish(tenantID uint64, topic string, msg any) error
}

// Topics emitted by the reconciler.
const (
	TopicPaymentCompleted = "payment_completed"
	TopicPaymentFailed    = "payment_failed"
)

// PaymentEvent is the payload pushed on a terminal transition.
type PaymentEvent struct {
	PaymentID     string     `json:"payment_id"`
	OrderID       string     `json:"order_id"`
	TenantID      string     `json:"tenant_id"`
	Status        string     `json:"status"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	ProviderTxnID string     `json:"provider_txn_id,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
