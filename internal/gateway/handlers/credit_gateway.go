package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"velora-system/internal/gateway/middleware"
	"velora-system/internal/services/credits"
)

type CreditHTTPHandler struct {
	creditSvc *credits.Service
}

func NewCreditHTTPHandler(creditSvc *credits.Service) *CreditHTTPHandler {
	return &CreditHTTPHandler{creditSvc: creditSvc}
}

type UpdateCreditRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Type        string          `json:"type" binding:"required,oneof=add deduct adjustment"`
	Description string          `json:"description,omitempty"`
}

func (h *CreditHTTPHandler) UpdateCredit(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid user ID"))
		return
	}

	var req UpdateCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("Authentication required"))
		return
	}
	if !actor.IsAdmin() {
		c.JSON(http.StatusForbidden, errorResponse("not authorized"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	newBalance, err := h.creditSvc.UpdateCredit(ctx, userID, req.Amount, req.Type, req.Description, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Credit updated successfully", gin.H{
		"user_id":     userID,
		"new_balance": newBalance,
	}))
}

func (h *CreditHTTPHandler) GetBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid user ID"))
		return
	}

	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("Authentication required"))
		return
	}
	// Customers may only read their own balance.
	if !actor.IsStaff() && actor.ID != userID {
		c.JSON(http.StatusForbidden, errorResponse("not authorized"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	balance, err := h.creditSvc.GetBalance(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Credit balance retrieved", balance))
}

func (h *CreditHTTPHandler) PendingLimitStatus(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid user ID"))
		return
	}

	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("Authentication required"))
		return
	}
	if !actor.IsStaff() && actor.ID != userID {
		c.JSON(http.StatusForbidden, errorResponse("not authorized"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := h.creditSvc.CheckPendingLimitStatus(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Pending limit status retrieved", status))
}
