package handler

import (
	"net/http"

	"qrpay-intent-api/internal/constant"
	"qrpay-intent-api/internal/dto"
	"qrpay-intent-api/internal/service"

	"github.com/gin-gonic/gin"
)

// WebhookHandler receives settlement notifications from the bank-transfer
// provider. 200 {success:true} for anything the provider must not redeliver,
// non-2xx only for permanent rejections.
type WebhookHandler struct{ svc *service.PaymentService }

func NewWebhookHandler(svc *service.PaymentService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

func (h *WebhookHandler) HandleBankTransfer(c *gin.Context) {
	var payload dto.BankWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, dto.WebhookAck{Success: false, Message: "invalid payload"})
		return
	}

	ack, err := h.svc.ReconcileWebhook(c.Request.Context(), payload, c.GetHeader("Authorization"))
	if err != nil {
		switch constant.CodeOf(err) {
		case constant.CodeWebhookSignInvalid:
			c.JSON(http.StatusUnauthorized, dto.WebhookAck{Success: false, Message: "signature verification failed"})
		case constant.CodeWebhookMalformed, constant.CodePaymentAmountError:
			msg := "bad request"
			if be, ok := err.(constant.Error); ok {
				msg = be.Message()
			}
			c.JSON(http.StatusBadRequest, dto.WebhookAck{Success: false, Message: msg})
		default:
			c.JSON(http.StatusInternalServerError, dto.WebhookAck{Success: false, Message: "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, ack)
}
