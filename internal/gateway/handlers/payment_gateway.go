package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"velora-system/internal/auth"
	"velora-system/internal/gateway/middleware"
	"velora-system/internal/services/payments"
	"velora-system/internal/services/reminders"
)

type PaymentHTTPHandler struct {
	paymentSvc  *payments.Service
	reminderSvc *reminders.Service
}

func NewPaymentHTTPHandler(paymentSvc *payments.Service, reminderSvc *reminders.Service) *PaymentHTTPHandler {
	return &PaymentHTTPHandler{
		paymentSvc:  paymentSvc,
		reminderSvc: reminderSvc,
	}
}

type RecordPaymentRequest struct {
	OrderID  int64           `json:"order_id" binding:"required"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
	Method   string          `json:"payment_method" binding:"required,oneof=cash bank_transfer card online"`
	Notes    string          `json:"notes,omitempty"`
	ProofURL string          `json:"proof_url,omitempty"`
}

func (h *PaymentHTTPHandler) RecordPayment(c *gin.Context) {
	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("Authentication required"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	result, err := h.paymentSvc.RecordPayment(ctx, payments.RecordPaymentInput{
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Method:      req.Method,
		Notes:       req.Notes,
		ProofURL:    req.ProofURL,
		PerformedBy: actor,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse("Payment recorded successfully", result))
}

func (h *PaymentHTTPHandler) CollectInitialPayment(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid order ID"))
		return
	}

	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("Authentication required"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	result, err := h.paymentSvc.CollectInitialPayment(ctx, orderID, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Initial payment collected", result))
}

func (h *PaymentHTTPHandler) ListUpcoming(c *gin.Context) {
	h.list(c, h.reminderSvc.UpcomingPayments, "Upcoming payments retrieved")
}

func (h *PaymentHTTPHandler) ListOverdue(c *gin.Context) {
	h.list(c, h.reminderSvc.OverduePayments, "Overdue payments retrieved")
}

func (h *PaymentHTTPHandler) ListUncollectedInitial(c *gin.Context) {
	h.list(c, h.reminderSvc.UncollectedInitialPayments, "Uncollected initial payments retrieved")
}

func (h *PaymentHTTPHandler) list(c *gin.Context, query func(context.Context, auth.Actor) ([]reminders.OrderSummary, error), message string) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("Authentication required"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	summaries, err := query(ctx, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(message, summaries))
}
