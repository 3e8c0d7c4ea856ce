package dao

import (
	"errors"
	"fmt"
	"log"
	"time"

	"qrpay-intent-api/internal/dal"
	paymentmodel "qrpay-intent-api/internal/model/payment"

	"gorm.io/gorm"
)

type PaymentDao struct {
	DB *gorm.DB
}

func NewPaymentDao() *PaymentDao {
	if dal.DB == nil {
		log.Panic("[FATAL] dal.DB is nil - database not initialized")
	}
	return &PaymentDao{DB: dal.DB}
}

// NewPaymentDaoWithDB binds the dao to a transaction handle.
func NewPaymentDaoWithDB(db *gorm.DB) *PaymentDao {
	if db == nil {
		log.Panic("[FATAL] db cannot be nil")
	}
	return &PaymentDao{DB: db}
}

func (r *PaymentDao) checkDB() error {
	if r == nil {
		return errors.New("PaymentDao is nil")
	}
	if r.DB == nil {
		return errors.New("DB connection is nil")
	}
	return nil
}

func (r *PaymentDao) Insert(p *paymentmodel.PaymentRecord) error {
	if err := r.checkDB(); err != nil {
		return fmt.Errorf("insert payment failed: %w", err)
	}
	return r.DB.Create(p).Error
}

func (r *PaymentDao) GetByID(id uint64) (*paymentmodel.PaymentRecord, error) {
	if err := r.checkDB(); err != nil {
		return nil, fmt.Errorf("get payment by id failed: %w", err)
	}

	var m paymentmodel.PaymentRecord
	err := r.DB.Where("payment_id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &m, nil
}

// GetActiveByOrderID returns the payment blocking a second intent for the
// order, if any: PENDING, PROCESSING or COMPLETED.
func (r *PaymentDao) GetActiveByOrderID(orderID uint64) (*paymentmodel.PaymentRecord, error) {
	if err := r.checkDB(); err != nil {
		return nil, fmt.Errorf("get active payment failed: %w", err)
	}

	var m paymentmodel.PaymentRecord
	err := r.DB.Where("order_id = ? AND status IN ?", orderID, paymentmodel.ActiveStatuses).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &m, nil
}

// GetOpenByTransferContent is the webhook correlation lookup: the unique
// non-terminal record for a transfer reference.
func (r *PaymentDao) GetOpenByTransferContent(content string) (*paymentmodel.PaymentRecord, error) {
	if err := r.checkDB(); err != nil {
		return nil, fmt.Errorf("get open payment failed: %w", err)
	}

	var m paymentmodel.PaymentRecord
	err := r.DB.Where("transfer_content = ? AND status IN ?", content, paymentmodel.OpenStatuses).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &m, nil
}

// MarkTerminal applies the terminal transition guarded by the non-terminal
// status condition. Zero rows affected means a concurrent delivery won.
func (r *PaymentDao) MarkTerminal(id uint64, updates map[string]interface{}) (int64, error) {
	if err := r.checkDB(); err != nil {
		return 0, fmt.Errorf("mark terminal failed: %w", err)
	}

	res := r.DB.Model(&paymentmodel.PaymentRecord{}).
		Where("payment_id = ? AND status IN ?", id, paymentmodel.OpenStatuses).
		Updates(updates)
	if res.Error != nil {
		return 0, fmt.Errorf("update failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ExpireOverdue lazily flips a PENDING payment past its deadline to EXPIRED.
func (r *PaymentDao) ExpireOverdue(id uint64, now time.Time) (int64, error) {
	if err := r.checkDB(); err != nil {
		return 0, fmt.Errorf("expire payment failed: %w", err)
	}

	res := r.DB.Model(&paymentmodel.PaymentRecord{}).
		Where("payment_id = ? AND status = ? AND expires_at < ?", id, paymentmodel.StatusPending, now).
		Updates(map[string]interface{}{
			"status":     paymentmodel.StatusExpired,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("update failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
