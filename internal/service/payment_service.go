package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"qrpay-intent-api/internal/cache"
	"qrpay-intent-api/internal/constant"
	"qrpay-intent-api/internal/dao"
	"qrpay-intent-api/internal/dto"
	"qrpay-intent-api/internal/event"
	"qrpay-intent-api/internal/idgen"
	paymentmodel "qrpay-intent-api/internal/model/payment"
	"qrpay-intent-api/internal/money"
	"qrpay-intent-api/internal/notify"
	"qrpay-intent-api/internal/provider"
	"qrpay-intent-api/internal/types/rediskey"

	"github.com/jinzhu/copier"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PaymentServiceOpts tunes the intent lifecycle. Zero values fall back to the
// defaults below.
type PaymentServiceOpts struct {
	IntentTTL       time.Duration
	CacheTTL        time.Duration
	AmountTolerance decimal.Decimal
	Log             *logrus.Logger
}

// PaymentService orchestrates intent creation, status reads and webhook
// reconciliation. The store transaction is the sole serialization point; no
// in-process lock is taken.
type PaymentService struct {
	db        *gorm.DB
	provider  provider.Provider
	cache     cache.StatusCache
	pub       event.Publisher
	log       *logrus.Logger
	intentTTL time.Duration
	cacheTTL  time.Duration
	tolerance decimal.Decimal
}

func NewPaymentService(db *gorm.DB, prov provider.Provider, sc cache.StatusCache, pub event.Publisher, opts PaymentServiceOpts) *PaymentService {
	if opts.IntentTTL <= 0 {
		opts.IntentTTL = 15 * time.Minute
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 300 * time.Second
	}
	if opts.AmountTolerance.IsZero() {
		opts.AmountTolerance = money.DefaultTolerance
	}
	if opts.Log == nil {
		opts.Log = logrus.New()
	}
	return &PaymentService{
		db:        db,
		provider:  prov,
		cache:     sc,
		pub:       pub,
		log:       opts.Log,
		intentTTL: opts.IntentTTL,
		cacheTTL:  opts.CacheTTL,
		tolerance: opts.AmountTolerance,
	}
}

// CreateIntent creates a PENDING payment for an order inside one transaction.
// Safe to retry: the duplicate check rejects a second intent while one is
// active.
func (s *PaymentService) CreateIntent(ctx context.Context, req dto.CreateIntentReq) (dto.PaymentIntentView, error) {
	var view dto.PaymentIntentView

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderDao := dao.NewOrderDaoWithDB(tx)
		paymentDao := dao.NewPaymentDaoWithDB(tx)

		order, err := orderDao.GetByID(req.TenantID, req.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return constant.NewError(constant.CodeOrderNotFound)
		}
		if order.PaymentStatus == paymentmodel.OrderPaymentPaid {
			return constant.NewError(constant.CodeOrderAlreadyPaid)
		}

		existing, err := paymentDao.GetActiveByOrderID(req.OrderID)
		if err != nil {
			return err
		}
		if existing != nil {
			return constant.NewError(constant.CodeDuplicatePaymentIntent)
		}

		if !order.Total.IsPositive() {
			return constant.NewError(constant.CodeOrderAmountInvalid)
		}

		payload, err := s.provider.CreateIntent(provider.IntentRequest{
			OrderID:  req.OrderID,
			Amount:   order.Total,
			Currency: order.Currency,
			Metadata: map[string]string{
				"return_url": req.ReturnURL,
				"cancel_url": req.CancelURL,
			},
		})
		if err != nil {
			return fmt.Errorf("provider create intent failed: %w", err)
		}

		now := time.Now()
		rec := &paymentmodel.PaymentRecord{
			PaymentID:       idgen.New(),
			OrderID:         req.OrderID,
			TenantID:        req.TenantID,
			Method:          paymentmodel.MethodBankTransfer,
			Status:          paymentmodel.StatusPending,
			Amount:          order.Total,
			Currency:        order.Currency,
			BankCode:        payload.BankCode,
			AccountNumber:   payload.AccountNumber,
			AccountName:     payload.AccountName,
			QRContent:       payload.QRContent,
			DeepLink:        payload.DeepLink,
			TransferContent: payload.TransferContent,
			ProviderData: paymentmodel.ProviderData{
				"provider": s.provider.Name(),
				"version":  1,
				"intent":   payload.Raw,
			},
			ExpiresAt: now.Add(s.intentTTL),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := paymentDao.Insert(rec); err != nil {
			return err
		}

		view = projectIntentView(rec)
		return nil
	})
	if err != nil {
		return dto.PaymentIntentView{}, err
	}
	s.log.Infof("payment intent created: payment=%s order=%d transfer=%s", view.PaymentID, req.OrderID, view.TransferContent)
	return view, nil
}

// GetStatus is cache-aside: redis projection first, store on miss. A PENDING
// payment past its deadline is flipped to EXPIRED here, so expiry needs no
// background sweep.
func (s *PaymentService) GetStatus(ctx context.Context, paymentID uint64) (dto.PaymentStatusView, error) {
	key := rediskey.PaymentStatus(paymentID)

	if b, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warnf("status cache read failed: %v", err)
	} else if b != nil {
		var cached dto.PaymentStatusView
		if err := json.Unmarshal(b, &cached); err == nil {
			return cached, nil
		}
		s.log.Warnf("corrupt status cache entry for %s, falling back to store", key)
	}

	paymentDao := dao.NewPaymentDaoWithDB(s.db.WithContext(ctx))
	rec, err := paymentDao.GetByID(paymentID)
	if err != nil {
		return dto.PaymentStatusView{}, err
	}
	if rec == nil {
		return dto.PaymentStatusView{}, constant.NewError(constant.CodePaymentNotFound)
	}

	now := time.Now()
	if rec.Status == paymentmodel.StatusPending && now.After(rec.ExpiresAt) {
		rows, err := paymentDao.ExpireOverdue(paymentID, now)
		if err != nil {
			return dto.PaymentStatusView{}, err
		}
		if rows > 0 {
			rec.Status = paymentmodel.StatusExpired
		}
	}

	view := projectStatusView(rec)
	if b, err := json.Marshal(view); err == nil {
		if err := s.cache.Set(ctx, key, b, s.cacheTTL); err != nil {
			s.log.Warnf("status cache write failed: %v", err)
		}
	}
	return view, nil
}

// ReconcileWebhook applies an inbound settlement notification exactly once.
// Everything from correlation to the terminal transition runs in one
// transaction; concurrent deliveries for the same transfer reference are
// serialized by the store, the loser lands on the no-op paths.
func (s *PaymentService) ReconcileWebhook(ctx context.Context, payload dto.BankWebhookPayload, authorization string) (dto.WebhookAck, error) {
	if !s.provider.VerifyWebhookSignature(authorization) {
		s.log.Errorf("webhook signature verification failed: txn=%s content=%s", payload.ProviderTxnID, payload.TransferContent)
		notify.Warn("bank webhook rejected",
			fmt.Sprintf("signature verification failed\ntxn: %s\ncontent: %s", payload.ProviderTxnID, payload.TransferContent))
		return dto.WebhookAck{}, constant.NewError(constant.CodeWebhookSignInvalid)
	}

	if strings.TrimSpace(payload.TransferContent) == "" || strings.TrimSpace(payload.ProviderTxnID) == "" {
		return dto.WebhookAck{}, constant.NewError(constant.CodeWebhookMalformed)
	}
	if payload.Status != dto.WebhookStatusSuccess && payload.Status != dto.WebhookStatusFailed {
		return dto.WebhookAck{}, constant.NewError(constant.CodeWebhookMalformed)
	}

	var (
		ack     dto.WebhookAck
		settled *paymentmodel.PaymentRecord
		topic   string
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		paymentDao := dao.NewPaymentDaoWithDB(tx)
		orderDao := dao.NewOrderDaoWithDB(tx)

		rec, err := paymentDao.GetOpenByTransferContent(payload.TransferContent)
		if err != nil {
			return err
		}
		if rec == nil {
			// already settled or never existed here; ack so the provider
			// stops redelivering
			s.log.Infof("webhook for unknown or settled transfer %s acknowledged", payload.TransferContent)
			ack = dto.WebhookAck{Success: true, Message: "no open payment for transfer reference"}
			return nil
		}

		if rec.ProviderTxnID != nil && *rec.ProviderTxnID == payload.ProviderTxnID {
			ack = dto.WebhookAck{Success: true, Message: "duplicate delivery"}
			return nil
		}

		recorded := money.New(rec.Amount, rec.Currency)
		reported := money.New(payload.Amount, rec.Currency)
		if !recorded.WithinTolerance(reported, s.tolerance) {
			s.log.Errorf("webhook amount mismatch: payment=%d recorded=%s reported=%s",
				rec.PaymentID, rec.Amount.String(), payload.Amount.String())
			notify.Warn("bank webhook amount mismatch",
				fmt.Sprintf("payment: %d\ntransfer: %s\nrecorded: %s\nreported: %s",
					rec.PaymentID, rec.TransferContent, rec.Amount.String(), payload.Amount.String()))
			return constant.NewError(constant.CodePaymentAmountError)
		}

		now := time.Now()
		txnTime := payload.TransactionTime
		if txnTime.IsZero() {
			txnTime = now
		}

		if rec.ProviderData == nil {
			rec.ProviderData = paymentmodel.ProviderData{
				"provider": s.provider.Name(),
				"version":  1,
			}
		}
		rec.ProviderData["webhook"] = map[string]interface{}{
			"providerTransactionId": payload.ProviderTxnID,
			"bankCode":              payload.BankCode,
			"accountNumber":         payload.AccountNumber,
			"transactionTime":       txnTime,
			"status":                payload.Status,
			"processedAt":           now,
		}

		updates := map[string]interface{}{
			"provider_txn_id": payload.ProviderTxnID,
			"provider_data":   rec.ProviderData,
			"updated_at":      now,
		}
		if payload.Status == dto.WebhookStatusSuccess {
			updates["status"] = paymentmodel.StatusCompleted
			updates["paid_at"] = txnTime
		} else {
			updates["status"] = paymentmodel.StatusFailed
			updates["failure_reason"] = "provider reported transfer failed"
		}

		rows, err := paymentDao.MarkTerminal(rec.PaymentID, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			// a concurrent delivery committed first
			ack = dto.WebhookAck{Success: true, Message: "already settled"}
			return nil
		}

		if payload.Status == dto.WebhookStatusSuccess {
			if err := orderDao.UpdateOnPaymentCompleted(rec.OrderID, txnTime); err != nil {
				return err
			}
			if err := orderDao.AppendStatusHistory(rec.OrderID, paymentmodel.OrderProcessing,
				"payment completed, provider txn "+payload.ProviderTxnID); err != nil {
				return err
			}
			rec.Status = paymentmodel.StatusCompleted
			rec.PaidAt = &txnTime
			topic = event.TopicPaymentCompleted
		} else {
			reason := "provider reported transfer failed"
			rec.Status = paymentmodel.StatusFailed
			rec.FailureReason = &reason
			topic = event.TopicPaymentFailed
		}
		rec.ProviderTxnID = &payload.ProviderTxnID
		settled = rec

		ack = dto.WebhookAck{Success: true, Message: "payment " + rec.Status.String()}
		return nil
	})
	if err != nil {
		return dto.WebhookAck{}, err
	}

	if settled != nil {
		// invalidate before returning so a poll right after the webhook never
		// sees a stale PENDING
		if err := s.cache.Delete(ctx, rediskey.PaymentStatus(settled.PaymentID)); err != nil {
			s.log.Warnf("status cache invalidation failed: %v", err)
		}

		evt := event.PaymentEvent{
			PaymentID:     strconv.FormatUint(settled.PaymentID, 10),
			OrderID:       strconv.FormatUint(settled.OrderID, 10),
			TenantID:      strconv.FormatUint(settled.TenantID, 10),
			Status:        settled.Status.String(),
			Amount:        settled.Amount.String(),
			Currency:      settled.Currency,
			ProviderTxnID: payload.ProviderTxnID,
			PaidAt:        settled.PaidAt,
			OccurredAt:    time.Now(),
		}
		if settled.FailureReason != nil {
			evt.FailureReason = *settled.FailureReason
		}
		if err := s.pub.Publish(settled.TenantID, topic, evt); err != nil {
			s.log.Warnf("publish %s failed: %v", topic, err)
		}
		s.log.Infof("payment %d reconciled to %s (txn %s)", settled.PaymentID, settled.Status, payload.ProviderTxnID)
	}
	return ack, nil
}

func projectIntentView(rec *paymentmodel.PaymentRecord) dto.PaymentIntentView {
	var view dto.PaymentIntentView
	_ = copier.Copy(&view, rec)
	view.PaymentID = strconv.FormatUint(rec.PaymentID, 10)
	view.OrderID = strconv.FormatUint(rec.OrderID, 10)
	view.Status = rec.Status.String()
	view.Amount = rec.Amount.String()
	return view
}

func projectStatusView(rec *paymentmodel.PaymentRecord) dto.PaymentStatusView {
	var view dto.PaymentStatusView
	_ = copier.Copy(&view, rec)
	view.PaymentID = strconv.FormatUint(rec.PaymentID, 10)
	view.OrderID = strconv.FormatUint(rec.OrderID, 10)
	view.Status = rec.Status.String()
	view.Amount = rec.Amount.String()
	view.OrderStatus = derivedOrderPaymentStatus(rec.Status)
	return view
}

func derivedOrderPaymentStatus(s paymentmodel.Status) string {
	if s == paymentmodel.StatusCompleted {
		return paymentmodel.OrderPaymentPaid
	}
	return paymentmodel.OrderPaymentUnpaid
}
