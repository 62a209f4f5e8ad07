package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"velora-system/internal/gateway/middleware"
	"velora-system/internal/services/reminders"
)

type ReminderHTTPHandler struct {
	reminderSvc *reminders.Service
}

func NewReminderHTTPHandler(reminderSvc *reminders.Service) *ReminderHTTPHandler {
	return &ReminderHTTPHandler{reminderSvc: reminderSvc}
}

type SetDueDateRequest struct {
	DueDate     string `json:"due_date" binding:"required"`
	PaymentType string `json:"payment_type" binding:"required,oneof=initial pending"`
}

func (h *ReminderHTTPHandler) SetDueDate(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid order ID"))
		return
	}

	var req SetDueDateRequest
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

	reminderID, err := h.reminderSvc.SetPaymentDueDate(ctx, orderID, req.DueDate, req.PaymentType, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	// A zero reminder id means the due date committed but the reminder row
	// did not; the caller must be able to tell the two apart.
	resp := gin.H{
		"order_id":         orderID,
		"reminder_created": reminderID != 0,
	}
	if reminderID != 0 {
		resp["reminder_id"] = reminderID
	}
	c.JSON(http.StatusOK, successResponse("Due date set", resp))
}

func (h *ReminderHTTPHandler) MarkSeen(c *gin.Context) {
	h.flag(c, h.reminderSvc.MarkSeen, "Reminder marked as seen")
}

func (h *ReminderHTTPHandler) Acknowledge(c *gin.Context) {
	h.flag(c, h.reminderSvc.Acknowledge, "Reminder acknowledged")
}

func (h *ReminderHTTPHandler) flag(c *gin.Context, update func(context.Context, int64) error, message string) {
	reminderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid reminder ID"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := update(ctx, reminderID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(message, gin.H{"reminder_id": reminderID}))
}
