package rediskey

import "strconv"

const paymentStatusPrefix = "payment:status:"

// PaymentStatus is the cache key for a payment status projection.
func PaymentStatus(paymentID uint64) string {
	return paymentStatusPrefix + strconv.FormatUint(paymentID, 10)
}
