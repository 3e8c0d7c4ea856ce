package handler

import (
	"net/http"
	"strconv"

	"qrpay-intent-api/internal/constant"
	"qrpay-intent-api/internal/dto"
	"qrpay-intent-api/internal/service"
	"qrpay-intent-api/internal/utils"

	"github.com/gin-gonic/gin"
)

// PaymentHandler exposes intent creation and status polling.
type PaymentHandler struct{ svc *service.PaymentService }

func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// Create creates a bank-transfer payment intent for an order.
func (h *PaymentHandler) Create(c *gin.Context) {
	var req dto.CreateIntentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, utils.Error(constant.CodeMissingParams))
		return
	}

	view, err := h.svc.CreateIntent(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusOK, utils.Error(constant.CodeOf(err)))
		return
	}
	c.JSON(http.StatusOK, utils.Success(view))
}

// Get returns the cached status projection for a payment.
func (h *PaymentHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, utils.Error(constant.CodeParamsTypeError))
		return
	}

	view, err := h.svc.GetStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusOK, utils.Error(constant.CodeOf(err)))
		return
	}
	c.JSON(http.StatusOK, utils.Success(view))
}
