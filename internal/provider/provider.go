package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// IntentRequest asks a provider to build a transfer payload for an order.
type IntentRequest struct {
	OrderID  uint64
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
}

// IntentPayload is the provider-built transfer instruction set. Building it
// must be side-effect-free on the provider: no remote persistence.
type IntentPayload struct {
	TransferContent string
	QRContent       string
	DeepLink        string
	BankCode        string
	AccountNumber   string
	AccountName     string
	ExpiresIn       time.Duration
	Raw             map[string]interface{}
}

// RemoteStatus is the provider's view of a transfer, used by the polling
// fallback only.
type RemoteStatus struct {
	Reference string          `json:"reference"`
	TxnID     string          `json:"transaction_id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
}

// Provider is the settlement-provider strategy. Swapping providers must not
// touch orchestration logic.
type Provider interface {
	Name() string
	CreateIntent(req IntentRequest) (*IntentPayload, error)
	VerifyWebhookSignature(authorization string) bool
	GetRemoteStatus(ctx context.Context, transferContent string) (*RemoteStatus, error)
}
