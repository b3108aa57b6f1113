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
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting VoyageHub inventory service")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if os.Getenv("SERVICE_NAME") == "" {
		cfg.Server.ServiceName = "inventory-service"
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	logger.Info("Connecting to inventory database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry, cfg.JWT.ServiceTokenExpiry)
	inventoryService := services.NewInventoryService(database.NewInventoryRepository(db.DB), logger)
	inventoryHandler := handlers.NewInventoryHandler(inventoryService, logger)
	healthHandler := handlers.NewHealthHandler(db, cfg.Server.ServiceName)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if cfg.Security.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthHandler.Health)

	v1 := router.Group("/api/v1")
	{
		// Public reads
		tours := v1.Group("/tours/:tour_id")
		{
			tours.GET("/inventory", inventoryHandler.GetInventoryStatus)
			tours.GET("/availability", inventoryHandler.GetAvailabilityRange)
			tours.GET("/availability/check", inventoryHandler.CheckAvailability)
		}

		auth := middleware.AuthMiddleware(jwtService)
		operators := middleware.RequireRole(middleware.RoleOperator, middleware.RoleAdmin)

		v1.POST("/inventory/preview-range", auth, operators, inventoryHandler.PreviewRange)
		tours.POST("/inventory/initialize-range", auth, operators, inventoryHandler.InitializeRange)
		tours.PUT("/inventory/:date", auth, operators, inventoryHandler.UpdateInventory)
		tours.DELETE("/inventory/:date", auth, operators, inventoryHandler.DeleteInventory)

		// Booking service only
		reservations := v1.Group("/inventory/reservations")
		reservations.Use(auth, middleware.RequireRole(middleware.RoleService))
		{
			reservations.POST("", inventoryHandler.Reserve)
			reservations.POST("/:booking_id/release", inventoryHandler.Release)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}
