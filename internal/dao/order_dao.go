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

type OrderDao struct {
	DB *gorm.DB
}

func NewOrderDao() *OrderDao {
	if dal.DB == nil {
		log.Panic("[FATAL] dal.DB is nil - database not initialized")
	}
	return &OrderDao{DB: dal.DB}
}

func NewOrderDaoWithDB(db *gorm.DB) *OrderDao {
	if db == nil {
		log.Panic("[FATAL] db cannot be nil")
	}
	return &OrderDao{DB: db}
}

func (r *OrderDao) checkDB() error {
	if r == nil {
		return errors.New("OrderDao is nil")
	}
	if r.DB == nil {
		return errors.New("DB connection is nil")
	}
	return nil
}

// GetByID loads the order scoped to its tenant. Orders owned by another
// tenant are reported as not found.
func (r *OrderDao) GetByID(tenantID, orderID uint64) (*paymentmodel.Order, error) {
	if err := r.checkDB(); err != nil {
		return nil, fmt.Errorf("get order failed: %w", err)
	}

	var m paymentmodel.Order
	err := r.DB.Where("order_id = ? AND tenant_id = ?", orderID, tenantID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &m, nil
}

// UpdateOnPaymentCompleted marks the order paid and, when it was awaiting
// payment, advances its workflow status.
func (r *OrderDao) UpdateOnPaymentCompleted(orderID uint64, paidAt time.Time) error {
	if err := r.checkDB(); err != nil {
		return fmt.Errorf("update order on payment failed: %w", err)
	}

	if err := r.DB.Model(&paymentmodel.Order{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"payment_status": paymentmodel.OrderPaymentPaid,
			"updated_at":     paidAt,
		}).Error; err != nil {
		return fmt.Errorf("update payment status failed: %w", err)
	}

	if err := r.DB.Model(&paymentmodel.Order{}).
		Where("order_id = ? AND status = ?", orderID, paymentmodel.OrderAwaitingPayment).
		Updates(map[string]interface{}{
			"status":     paymentmodel.OrderProcessing,
			"updated_at": paidAt,
		}).Error; err != nil {
		return fmt.Errorf("update workflow status failed: %w", err)
	}
	return nil
}

// AppendStatusHistory records an audit entry for the order.
func (r *OrderDao) AppendStatusHistory(orderID uint64, status, note string) error {
	if err := r.checkDB(); err != nil {
		return fmt.Errorf("append status history failed: %w", err)
	}

	return r.DB.Create(&paymentmodel.OrderStatusHistory{
		OrderID:   orderID,
		Status:    status,
		Note:      note,
		CreatedAt: time.Now(),
	}).Error
}
