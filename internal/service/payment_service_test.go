package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"qrpay-intent-api/internal/constant"
	"qrpay-intent-api/internal/dto"
	"qrpay-intent-api/internal/event"
	"qrpay-intent-api/internal/idgen"
	paymentmodel "qrpay-intent-api/internal/model/payment"
	"qrpay-intent-api/internal/provider"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testApiKey = "test-secret"
const validAuth = "Apikey " + testApiKey

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *fakeCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = val
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

type publishedEvent struct {
	tenantID uint64
	topic    string
	msg      any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(tenantID uint64, topic string, msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{tenantID: tenantID, topic: topic, msg: msg})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fixture struct {
	svc   *PaymentService
	db    *gorm.DB
	cache *fakeCache
	pub   *fakePublisher
}

func setup(t *testing.T) *fixture {
	t.Helper()
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
		BankCode:       "970415",
		AccountNumber:  "0123456789",
		AccountName:    "QUAN PHO 24",
		ApiKey:         testApiKey,
		TransferPrefix: "DH",
		RetryBase:      time.Millisecond,
	})

	fc := newFakeCache()
	fp := &fakePublisher{}
	svc := NewPaymentService(db, prov, fc, fp, PaymentServiceOpts{})
	return &fixture{svc: svc, db: db, cache: fc, pub: fp}
}

func (f *fixture) seedOrder(t *testing.T, orderID, tenantID uint64, total string) {
	t.Helper()
	require.NoError(t, f.db.Create(&paymentmodel.Order{
		OrderID:       orderID,
		TenantID:      tenantID,
		Total:         decimal.RequireFromString(total),
		Currency:      "VND",
		Status:        paymentmodel.OrderAwaitingPayment,
		PaymentStatus: paymentmodel.OrderPaymentUnpaid,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}).Error)
}

func (f *fixture) createIntent(t *testing.T, tenantID, orderID uint64) dto.PaymentIntentView {
	t.Helper()
	view, err := f.svc.CreateIntent(context.Background(), dto.CreateIntentReq{
		TenantID:  tenantID,
		OrderID:   orderID,
		ReturnURL: "https://shop.example/return",
	})
	require.NoError(t, err)
	return view
}

func (f *fixture) loadPayment(t *testing.T, view dto.PaymentIntentView) *paymentmodel.PaymentRecord {
	t.Helper()
	id, err := strconv.ParseUint(view.PaymentID, 10, 64)
	require.NoError(t, err)
	var rec paymentmodel.PaymentRecord
	require.NoError(t, f.db.Where("payment_id = ?", id).First(&rec).Error)
	return &rec
}

func successWebhook(content, txnID, amount string) dto.BankWebhookPayload {
	return dto.BankWebhookPayload{
		ProviderTxnID:   txnID,
		TransferContent: content,
		Amount:          decimal.RequireFromString(amount),
		BankCode:        "970415",
		AccountNumber:   "0123456789",
		Status:          dto.WebhookStatusSuccess,
		TransactionTime: time.Now(),
	}
}

func TestCreateIntent(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "250000")

	view := f.createIntent(t, 7, 1001)

	assert.Equal(t, "PENDING", view.Status)
	assert.Equal(t, "DH1001", view.TransferContent)
	assert.Equal(t, "250000", view.Amount)
	assert.Equal(t, "VND", view.Currency)
	assert.NotEmpty(t, view.QRContent)
	assert.NotEmpty(t, view.DeepLink)
	assert.True(t, view.ExpiresAt.After(time.Now().Add(14*time.Minute)))
}

func TestCreateIntentDuplicate(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "250000")
	f.createIntent(t, 7, 1001)

	_, err := f.svc.CreateIntent(context.Background(), dto.CreateIntentReq{
		TenantID: 7, OrderID: 1001, ReturnURL: "https://shop.example/return",
	})
	require.Error(t, err)
	assert.Equal(t, constant.CodeDuplicatePaymentIntent, constant.CodeOf(err))

	var count int64
	require.NoError(t, f.db.Model(&paymentmodel.PaymentRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateIntentOrderNotFound(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "250000")

	// unknown order
	_, err := f.svc.CreateIntent(context.Background(), dto.CreateIntentReq{
		TenantID: 7, OrderID: 9999, ReturnURL: "https://shop.example/return",
	})
	require.Error(t, err)
	assert.Equal(t, constant.CodeOrderNotFound, constant.CodeOf(err))

	// order owned by another tenant
	_, err = f.svc.CreateIntent(context.Background(), dto.CreateIntentReq{
		TenantID: 8, OrderID: 1001, ReturnURL: "https://shop.example/return",
	})
	require.Error(t, err)
	assert.Equal(t, constant.CodeOrderNotFound, constant.CodeOf(err))
}

func TestCreateIntentInvalidAmount(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "0")

	_, err := f.svc.CreateIntent(context.Background(), dto.CreateIntentReq{
		TenantID: 7, OrderID: 1001, ReturnURL: "https://shop.example/return",
	})
	require.Error(t, err)
	assert.Equal(t, constant.CodeOrderAmountInvalid, constant.CodeOf(err))
}

func TestCreateIntentOrderAlreadyPaid(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "250000")
	require.NoError(t, f.db.Model(&paymentmodel.Order{}).
		Where("order_id = ?", 1001).
		Update("payment_status", paymentmodel.OrderPaymentPaid).Error)

	_, err := f.svc.CreateIntent(context.Background(), dto.CreateIntentReq{
		TenantID: 7, OrderID: 1001, ReturnURL: "https://shop.example/return",
	})
	require.Error(t, err)
	assert.Equal(t, constant.CodeOrderAlreadyPaid, constant.CodeOf(err))
}

func TestReconcileCompletesPayment(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "250000")
	view := f.createIntent(t, 7, 1001)

	ack, err := f.svc.ReconcileWebhook(context.Background(), successWebhook("DH1001", "TXN1", "250000"), validAuth)
	require.NoError(t, err)
	assert.True(t, ack.Success)

	rec := f.loadPayment(t, view)
	assert.Equal(t, paymentmodel.StatusCompleted, rec.Status)
	require.NotNil(t, rec.ProviderTxnID)
	assert.Equal(t, "TXN1", *rec.ProviderTxnID)
	assert.NotNil(t, rec.PaidAt)
	assert.Contains(t, rec.ProviderData, "webhook")

	var order paymentmodel.Order
	require.NoError(t, f.db.Where("order_id = ?", 1001).First(&order).Error)
	assert.Equal(t, paymentmodel.OrderPaymentPaid, order.PaymentStatus)
	assert.Equal(t, paymentmodel.OrderProcessing, order.Status)

	var historyCount int64
	require.NoError(t, f.db.Model(&paymentmodel.OrderStatusHistory{}).
		Where("order_id = ?", 1001).Count(&historyCount).Error)
	assert.EqualValues(t, 1, historyCount)

	require.Equal(t, 1, f.pub.count())
	assert.Equal(t, event.TopicPaymentCompleted, f.pub.events[0].topic)
	assert.EqualValues(t, 7, f.pub.events[0].tenantID)
}

func TestReconcileIdempotent(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "250000")
	view := f.createIntent(t, 7, 1001)

	payload := successWebhook("DH1001", "TXN1", "250000")
	_, err := f.svc.ReconcileWebhook(context.Background(), payload, validAuth)
	require.NoError(t, err)

	ack, err := f.svc.ReconcileWebhook(context.Background(), payload, validAuth)
	require.NoError(t, err)
	assert.True(t, ack.Success)

	rec := f.loadPayment(t, view)
	assert.Equal(t, paymentmodel.StatusCompleted, rec.Status)
	assert.Equal(t, 1, f.pub.count(), "redelivery must not emit a second notification")
}

func TestReconcileAmountTolerance(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "250000")
	view := f.createIntent(t, 7, 1001)

	// outside tolerance: rejected, no state change
	_, err := f.svc.ReconcileWebhook(context.Background(), successWebhook("DH1001", "TXN1", "250001"), validAuth)
	require.Error(t, err)
	assert.Equal(t, constant.CodePaymentAmountError, constant.CodeOf(err))
	assert.Equal(t, paymentmodel.StatusPending, f.loadPayment(t, view).Status)
	assert.Equal(t, 0, f.pub.count())

	// exactly at tolerance: accepted
	ack, err := f.svc.ReconcileWebhook(context.Background(), successWebhook("DH1001", "TXN1", "250000.01"), validAuth)
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, paymentmodel.StatusCompleted, f.loadPayment(t, view).Status)
}

func TestReconcileUnknownTransferAcked(t *testing.T) {
	f := setup(t)

	ack, err := f.svc.ReconcileWebhook(context.Background(), successWebhook("DH4242", "TXN9", "100"), validAuth)
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, 0, f.pub.count())
}

func TestReconcileInvalidSignature(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "250000")
	view := f.createIntent(t, 7, 1001)

	_, err := f.svc.ReconcileWebhook(context.Background(), successWebhook("DH1001", "TXN1", "250000"), "Apikey wrong")
	require.Error(t, err)
	assert.Equal(t, constant.CodeWebhookSignInvalid, constant.CodeOf(err))

	rec := f.loadPayment(t, view)
	assert.Equal(t, paymentmodel.StatusPending, rec.Status)
	assert.Nil(t, rec.ProviderTxnID)
	assert.Equal(t, 0, f.pub.count())
}

func TestReconcileMalformedPayload(t *testing.T) {
	f := setup(t)

	payload := successWebhook("", "TXN1", "100")
	_, err := f.svc.ReconcileWebhook(context.Background(), payload, validAuth)
	require.Error(t, err)
	assert.Equal(t, constant.CodeWebhookMalformed, constant.CodeOf(err))

	payload = successWebhook("DH1", "", "100")
	_, err = f.svc.ReconcileWebhook(context.Background(), payload, validAuth)
	require.Error(t, err)
	assert.Equal(t, constant.CodeWebhookMalformed, constant.CodeOf(err))

	payload = successWebhook("DH1", "TXN1", "100")
	payload.Status = "sideways"
	_, err = f.svc.ReconcileWebhook(context.Background(), payload, validAuth)
	require.Error(t, err)
	assert.Equal(t, constant.CodeWebhookMalformed, constant.CodeOf(err))
}

func TestReconcileFailedTransfer(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "250000")
	view := f.createIntent(t, 7, 1001)

	payload := successWebhook("DH1001", "TXN1", "250000")
	payload.Status = dto.WebhookStatusFailed
	ack, err := f.svc.ReconcileWebhook(context.Background(), payload, validAuth)
	require.NoError(t, err)
	assert.True(t, ack.Success)

	rec := f.loadPayment(t, view)
	assert.Equal(t, paymentmodel.StatusFailed, rec.Status)
	require.NotNil(t, rec.FailureReason)
	require.NotNil(t, rec.ProviderTxnID, "txn id kept for audit on failure")
	assert.Nil(t, rec.PaidAt)

	var order paymentmodel.Order
	require.NoError(t, f.db.Where("order_id = ?", 1001).First(&order).Error)
	assert.Equal(t, paymentmodel.OrderPaymentUnpaid, order.PaymentStatus)

	require.Equal(t, 1, f.pub.count())
	assert.Equal(t, event.TopicPaymentFailed, f.pub.events[0].topic)
}

func TestReconcileTerminalImmutable(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "250000")
	view := f.createIntent(t, 7, 1001)

	_, err := f.svc.ReconcileWebhook(context.Background(), successWebhook("DH1001", "TXN1", "250000"), validAuth)
	require.NoError(t, err)
	before := f.loadPayment(t, view)

	// different txn id against a settled payment: acked, nothing moves
	ack, err := f.svc.ReconcileWebhook(context.Background(), successWebhook("DH1001", "TXN2", "250000"), validAuth)
	require.NoError(t, err)
	assert.True(t, ack.Success)

	after := f.loadPayment(t, view)
	assert.Equal(t, paymentmodel.StatusCompleted, after.Status)
	assert.Equal(t, *before.ProviderTxnID, *after.ProviderTxnID)
	assert.Equal(t, before.PaidAt.Unix(), after.PaidAt.Unix())
	assert.Equal(t, 1, f.pub.count())
}

func TestGetStatusCacheAside(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "250000")
	view := f.createIntent(t, 7, 1001)
	id, _ := strconv.ParseUint(view.PaymentID, 10, 64)

	st, err := f.svc.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", st.Status)
	assert.Equal(t, paymentmodel.OrderPaymentUnpaid, st.OrderStatus)

	// second read served from cache even if the row changes underneath
	require.NoError(t, f.db.Model(&paymentmodel.PaymentRecord{}).
		Where("payment_id = ?", id).
		Update("status", paymentmodel.StatusProcessing).Error)
	st, err = f.svc.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", st.Status)
}

func TestGetStatusFreshAfterReconcile(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "250000")
	view := f.createIntent(t, 7, 1001)
	id, _ := strconv.ParseUint(view.PaymentID, 10, 64)

	st, err := f.svc.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", st.Status)

	_, err = f.svc.ReconcileWebhook(context.Background(), successWebhook("DH1001", "TXN1", "250000"), validAuth)
	require.NoError(t, err)

	st, err = f.svc.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", st.Status)
	assert.Equal(t, paymentmodel.OrderPaymentPaid, st.OrderStatus)
	assert.NotNil(t, st.PaidAt)
}

func TestGetStatusNotFound(t *testing.T) {
	f := setup(t)
	_, err := f.svc.GetStatus(context.Background(), 424242)
	require.Error(t, err)
	assert.Equal(t, constant.CodePaymentNotFound, constant.CodeOf(err))
}

func TestGetStatusLazyExpiry(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, 1001, 7, "250000")
	view := f.createIntent(t, 7, 1001)
	id, _ := strconv.ParseUint(view.PaymentID, 10, 64)

	require.NoError(t, f.db.Model(&paymentmodel.PaymentRecord{}).
		Where("payment_id = ?", id).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	st, err := f.svc.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "EXPIRED", st.Status)
	assert.Equal(t, paymentmodel.StatusExpired, f.loadPayment(t, view).Status)

	// a late webhook against the expired intent is acked without effect
	ack, err := f.svc.ReconcileWebhook(context.Background(), successWebhook("DH1001", "TXN1", "250000"), validAuth)
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, paymentmodel.StatusExpired, f.loadPayment(t, view).Status)
	assert.Equal(t, 0, f.pub.count())
}
