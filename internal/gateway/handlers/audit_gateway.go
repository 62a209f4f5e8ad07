package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"velora-system/internal/gateway/middleware"
	"velora-system/internal/services/audit"
)

type AuditHTTPHandler struct {
	recorder *audit.Recorder
}

func NewAuditHTTPHandler(recorder *audit.Recorder) *AuditHTTPHandler {
	return &AuditHTTPHandler{recorder: recorder}
}

func (h *AuditHTTPHandler) ListByEntity(c *gin.Context) {
	entityType := c.Param("entityType")
	entityID, err := strconv.ParseInt(c.Param("entityId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid entity ID"))
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

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	entries, err := h.recorder.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Audit entries retrieved", entries))
}
