package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"velora-system/internal/auth"
	"velora-system/internal/database/models"
	"velora-system/internal/gateway/middleware"
	"velora-system/internal/notify"
	"velora-system/internal/services/audit"
	"velora-system/internal/services/reminders"
	"velora-system/internal/utils"
)

var testSecret = []byte("test-secret")

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Order{}, &models.PaymentReminder{}, &models.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func setupRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reminderSvc := reminders.NewService(db, audit.NewRecorder(db, notify.NewLogPublisher()), notify.NewLogPublisher())
	h := NewReminderHTTPHandler(reminderSvc)

	r := gin.New()
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth(testSecret))
	protected.POST("/orders/:id/due-date", h.SetDueDate)
	return r
}

func seedOrder(t *testing.T, db *gorm.DB, number string, pending int64) *models.Order {
	t.Helper()
	amount := decimal.NewFromInt(pending)
	order := models.Order{
		OrderNumber:   number,
		CustomerID:    20,
		TotalAmount:   amount,
		PaidAmount:    decimal.Zero,
		PendingAmount: amount,
		PaymentStatus: models.PaymentStatusUnpaid,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return &order
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, _, err := utils.GenerateToken(testSecret, 1, "admin", auth.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func postDueDate(t *testing.T, r *gin.Engine, orderID int64, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/v1/orders/%d/due-date", orderID), strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("response not successful: %s", rec.Body.String())
	}
	return resp.Data
}

func TestSetDueDateHTTP(t *testing.T) {
	db := setupTestDB(t)
	r := setupRouter(t, db)
	order := seedOrder(t, db, "ORD-5001", 2000)

	due := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	rec := postDueDate(t, r, order.ID,
		fmt.Sprintf(`{"due_date": %q, "payment_type": "pending"}`, due))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	data := decodeData(t, rec)
	if created, _ := data["reminder_created"].(bool); !created {
		t.Errorf("reminder_created = %v, want true", data["reminder_created"])
	}
	if _, ok := data["reminder_id"]; !ok {
		t.Error("reminder_id missing from response")
	}
}

func TestSetDueDateHTTPWithoutReminder(t *testing.T) {
	db := setupTestDB(t)
	r := setupRouter(t, db)
	order := seedOrder(t, db, "ORD-5002", 2000)

	// Break the reminder table; the due date still commits and the response
	// must say no reminder was created.
	if err := db.Migrator().DropTable(&models.PaymentReminder{}); err != nil {
		t.Fatalf("drop reminder table: %v", err)
	}

	due := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	rec := postDueDate(t, r, order.ID,
		fmt.Sprintf(`{"due_date": %q, "payment_type": "pending"}`, due))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	data := decodeData(t, rec)
	if created, _ := data["reminder_created"].(bool); created {
		t.Errorf("reminder_created = %v, want false", data["reminder_created"])
	}
	if _, ok := data["reminder_id"]; ok {
		t.Errorf("reminder_id = %v, must be omitted when no reminder exists", data["reminder_id"])
	}

	var got models.Order
	if err := db.First(&got, order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if got.PendingPaymentDueDate == nil {
		t.Error("pending due date not written")
	}
}

func TestSetDueDateHTTPRejectsMissingToken(t *testing.T) {
	db := setupTestDB(t)
	r := setupRouter(t, db)
	order := seedOrder(t, db, "ORD-5003", 2000)

	due := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/v1/orders/%d/due-date", order.ID),
		strings.NewReader(fmt.Sprintf(`{"due_date": %q, "payment_type": "pending"}`, due)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
