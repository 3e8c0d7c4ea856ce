package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"qrpay-intent-api/internal/dto"
	"qrpay-intent-api/internal/idgen"
	paymentmodel "qrpay-intent-api/internal/model/payment"
	"qrpay-intent-api/internal/provider"
	"qrpay-intent-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *memCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = val
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

type nullPublisher struct{}

func (nullPublisher) Publish(uint64, string, any) error { return nil }

func newWebhookRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, idgen.Init(1))

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&paymentmodel.PaymentRecord{},
		&paymentmodel.Order{},
		&paymentmodel.OrderStatusHistory{},
	))

	prov := provider.NewBankTransferProvider(provider.BankTransferConfig{
		BankCode:      "970415",
		AccountNumber: "0123456789",
		AccountName:   "QUAN PHO 24",
		ApiKey:        "test-secret",
	})
	svc := service.NewPaymentService(db, prov, &memCache{data: map[string][]byte{}}, nullPublisher{}, service.PaymentServiceOpts{})

	r := gin.New()
	wh := NewWebhookHandler(svc)
	r.POST("/api/v1/webhooks/bank-transfer", wh.HandleBankTransfer)
	return r, db
}

func postWebhook(t *testing.T, r *gin.Engine, payload dto.BankWebhookPayload, auth string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/bank-transfer", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookAckContract(t *testing.T) {
	r, db := newWebhookRouter(t)

	require.NoError(t, db.Create(&paymentmodel.Order{
		OrderID:       1001,
		TenantID:      7,
		Total:         decimal.NewFromInt(250000),
		Currency:      "VND",
		Status:        paymentmodel.OrderAwaitingPayment,
		PaymentStatus: paymentmodel.OrderPaymentUnpaid,
	}).Error)
	require.NoError(t, db.Create(&paymentmodel.PaymentRecord{
		PaymentID:       idgen.New(),
		OrderID:         1001,
		TenantID:        7,
		Method:          paymentmodel.MethodBankTransfer,
		Status:          paymentmodel.StatusPending,
		Amount:          decimal.NewFromInt(250000),
		Currency:        "VND",
		TransferContent: "DH1001",
		ExpiresAt:       time.Now().Add(15 * time.Minute),
	}).Error)

	payload := dto.BankWebhookPayload{
		ProviderTxnID:   "TXN1",
		TransferContent: "DH1001",
		Amount:          decimal.NewFromInt(250000),
		Status:          dto.WebhookStatusSuccess,
		TransactionTime: time.Now(),
	}

	// bad signature is the only non-2xx rejection class
	w := postWebhook(t, r, payload, "Apikey wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// amount outside tolerance is a permanent 400
	bad := payload
	bad.Amount = decimal.NewFromInt(999)
	w = postWebhook(t, r, bad, "Apikey test-secret")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// valid delivery settles the payment
	w = postWebhook(t, r, payload, "Apikey test-secret")
	assert.Equal(t, http.StatusOK, w.Code)
	var ack dto.WebhookAck
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.True(t, ack.Success)

	// redelivery and unknown references are acked so the provider stops
	w = postWebhook(t, r, payload, "Apikey test-secret")
	assert.Equal(t, http.StatusOK, w.Code)

	unknown := payload
	unknown.TransferContent = "DH9999"
	w = postWebhook(t, r, unknown, "Apikey test-secret")
	assert.Equal(t, http.StatusOK, w.Code)

	// missing correlation fields are a permanent 400
	malformed := payload
	malformed.ProviderTxnID = ""
	w = postWebhook(t, r, malformed, "Apikey test-secret")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
