package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/voyagehub/tour-booking-backend/internal/clients"
	"github.com/voyagehub/tour-booking-backend/internal/config"
	"github.com/voyagehub/tour-booking-backend/internal/database"
	"github.com/voyagehub/tour-booking-backend/internal/handlers"
	"github.com/voyagehub/tour-booking-backend/internal/middleware"
	"github.com/voyagehub/tour-booking-backend/internal/services"
	"github.com/voyagehub/tour-booking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting VoyageHub booking service")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to booking database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	bookingRepo := database.NewBookingRepository(db.DB)
	paymentRepo := database.NewPaymentRepository(db.DB)
	paymentEventRepo := database.NewPaymentEventRepository(db.DB, logger)
	releaseJobRepo := database.NewReleaseJobRepository(db.DB)

	// Downstream clients
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry, cfg.JWT.ServiceTokenExpiry)
	inventoryClient := clients.NewInventoryClient(cfg.Inventory.BaseURL, cfg.Inventory.Timeout, jwtService, cfg.Server.ServiceName, logger)
	catalogClient := clients.NewCatalogClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, logger)
	logger.WithFields(logrus.Fields{
		"inventory_url": cfg.Inventory.BaseURL,
		"catalog_url":   cfg.Catalog.BaseURL,
		"timeout":       cfg.Inventory.Timeout.String(),
	}).Info("Downstream clients configured")

	// Release worker
	releaseWorker := services.NewReleaseWorker(releaseJobRepo, inventoryClient, bookingRepo, cfg.ReleaseWorker, logger)
	if cfg.ReleaseWorker.Enabled {
		if err := releaseWorker.Start(); err != nil {
			logger.Fatalf("Failed to start release worker: %v", err)
		}
	} else {
		logger.Warn("Release worker disabled; queued releases run only via /admin/release-jobs/run")
	}

	// Saga coordinator
	bookingSaga := services.NewBookingSaga(
		bookingRepo,
		paymentRepo,
		paymentEventRepo,
		inventoryClient,
		catalogClient,
		releaseWorker,
		services.BookingSagaConfig{
			Currency:        cfg.Booking.Currency,
			MaxParticipants: cfg.Booking.MaxParticipants,
		},
		logger,
	)

	// Handlers
	bookingHandler := handlers.NewBookingHandler(bookingSaga, logger)
	paymentHandler := handlers.NewPaymentHandler(bookingSaga, logger)
	adminHandler := handlers.NewAdminHandler(bookingSaga, releaseWorker, logger)
	healthHandler := handlers.NewHealthHandler(db, cfg.Server.ServiceName)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if cfg.Security.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Public
		v1.GET("/tours/:tour_id/availability/check", bookingHandler.CheckAvailability)
		v1.POST("/bookings/cost", bookingHandler.CalculateCost)

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(jwtService))
		{
			bookings := protected.Group("/bookings")
			{
				bookings.POST("", bookingHandler.CreateBooking)
				bookings.GET("", bookingHandler.ListBookings)
				bookings.GET("/:id", bookingHandler.GetBooking)
				bookings.GET("/:id/payments", bookingHandler.ListBookingPayments)
				bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
			}

			payments := protected.Group("/payments")
			{
				payments.POST("", paymentHandler.ProcessPayment)
				payments.GET("/:id", paymentHandler.GetPayment)
				payments.POST("/:id/complete", paymentHandler.CompletePayment)
				payments.POST("/:id/fail", paymentHandler.FailPayment)
				payments.POST("/:id/refund", middleware.RequireRole(middleware.RoleAdmin), paymentHandler.RefundPayment)
			}

			admin := protected.Group("/admin")
			admin.Use(middleware.RequireRole(middleware.RoleAdmin))
			{
				admin.GET("/reconciliation", adminHandler.ListReconciliation)
				admin.POST("/reconciliation/:id/resolve", adminHandler.ResolveReconciliation)
				admin.POST("/bookings/:id/complete", adminHandler.CompleteBooking)
				admin.GET("/payments/mismatches", adminHandler.ListAmountMismatches)
				admin.GET("/payments/:id/events", adminHandler.ListPaymentEvents)
				admin.GET("/release-jobs/status", adminHandler.ReleaseJobsStatus)
				admin.POST("/release-jobs/run", adminHandler.RunReleaseJobs)
			}
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if cfg.ReleaseWorker.Enabled {
		logger.Info("Stopping release worker...")
		releaseWorker.Stop()
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}
