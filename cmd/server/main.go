package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"velora-system/config"
	"velora-system/internal/database"
	"velora-system/internal/gateway/handlers"
	"velora-system/internal/gateway/middleware"
	"velora-system/internal/notify"
	"velora-system/internal/services/audit"
	"velora-system/internal/services/credits"
	"velora-system/internal/services/orders"
	"velora-system/internal/services/payments"
	"velora-system/internal/services/reminders"
	"velora-system/internal/worker"
)

func main() {
	cfg := config.LoadConfig()

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	rdb := config.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	events := notify.NewRedisPublisher(rdb, cfg.Redis.Channel)

	auditRecorder := audit.NewRecorder(db, events)
	balanceSvc := orders.NewService(db)
	creditSvc := credits.NewService(db, rdb, auditRecorder)
	paymentSvc := payments.NewService(db, balanceSvc, creditSvc, auditRecorder, events)
	reminderSvc := reminders.NewService(db, auditRecorder, events)

	dueWorker := worker.NewDueDateWorker(reminderSvc, creditSvc, events, cfg.Worker.Interval)

	paymentHandler := handlers.NewPaymentHTTPHandler(paymentSvc, reminderSvc)
	creditHandler := handlers.NewCreditHTTPHandler(creditSvc)
	reminderHandler := handlers.NewReminderHTTPHandler(reminderSvc)
	auditHandler := handlers.NewAuditHTTPHandler(auditRecorder)

	r := gin.Default()
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit(cfg.Server.RateLimit))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth([]byte(cfg.Auth.JWTSecret)))
	{
		paymentsGroup := protected.Group("/payments")
		{
			paymentsGroup.POST("", paymentHandler.RecordPayment)
			paymentsGroup.GET("/upcoming", paymentHandler.ListUpcoming)
			paymentsGroup.GET("/overdue", paymentHandler.ListOverdue)
			paymentsGroup.GET("/uncollected-initial", paymentHandler.ListUncollectedInitial)
		}

		ordersGroup := protected.Group("/orders")
		{
			ordersGroup.POST("/:id/initial-payment", paymentHandler.CollectInitialPayment)
			ordersGroup.POST("/:id/due-date", reminderHandler.SetDueDate)
		}

		creditsGroup := protected.Group("/credits")
		{
			creditsGroup.GET("/:userId", creditHandler.GetBalance)
			creditsGroup.POST("/:userId", creditHandler.UpdateCredit)
			creditsGroup.GET("/:userId/pending-limit", creditHandler.PendingLimitStatus)
		}

		remindersGroup := protected.Group("/reminders")
		{
			remindersGroup.POST("/:id/seen", reminderHandler.MarkSeen)
			remindersGroup.POST("/:id/acknowledge", reminderHandler.Acknowledge)
		}

		protected.GET("/audit/:entityType/:entityId", auditHandler.ListByEntity)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go dueWorker.Start(ctx)

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	cancel() // stop worker
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown failed: %v", err)
	}
	log.Println("server stopped")
}
