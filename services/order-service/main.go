package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	awspkg "github.com/yashrajoria/commerce-core/pkg/aws"
	"github.com/yashrajoria/commerce-core/services/common/database"
	"github.com/yashrajoria/commerce-core/services/common/logger"
	"github.com/yashrajoria/commerce-core/services/common/middleware"
	"github.com/yashrajoria/commerce-core/services/order-service/controllers"
	"github.com/yashrajoria/commerce-core/services/order-service/models"
	repositories "github.com/yashrajoria/commerce-core/services/order-service/repository"
	"github.com/yashrajoria/commerce-core/services/order-service/routes"
	"github.com/yashrajoria/commerce-core/services/order-service/services"
)

const serviceName = "order-service"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(ctx)
	if err != nil {
		logger.Must("production", nil).Fatal("Config load failed", zap.Error(err))
	}

	var logSink io.Writer
	cwLogs, cwErr := awspkg.NewCloudWatchLogsClient(ctx, serviceName)
	if cwErr == nil && cwLogs.IsEnabled() {
		logSink = cwLogs
	}
	log := logger.Must(cfg.Env, logSink)
	defer log.Sync()
	if cwErr != nil {
		log.Warn("CloudWatch logs client init failed (non-fatal)", zap.Error(cwErr))
	}
	metricsClient, err := awspkg.NewMetricsClient(ctx)
	if err != nil {
		log.Warn("CloudWatch metrics client init failed (non-fatal)", zap.Error(err))
	}

	db, err := database.ConnectPostgres(ctx, cfg.Postgres, log, &models.Order{}, &models.OrderItem{})
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer func() {
		if err := database.ClosePostgres(db); err != nil {
			log.Warn("Failed to close PostgreSQL", zap.Error(err))
		}
	}()

	var snsClient awspkg.SNSPublisher
	var awsLoaded bool
	awsCfg, awsErr := awspkg.LoadAWSConfig(ctx)
	if awsErr != nil {
		log.Warn("AWS config unavailable; SNS and SQS disabled", zap.Error(awsErr))
	} else {
		awsLoaded = true
		if cfg.OrderEventsTopicArn != "" {
			snsClient = awspkg.NewSNSClient(awsCfg)
		}
	}

	orderRepo := repositories.NewGormOrderRepository(db)
	inventoryClient := services.NewInventoryClient(cfg.InventoryServiceURL)
	orderService := services.NewOrderService(orderRepo, inventoryClient, snsClient, cfg.OrderEventsTopicArn, metricsClient, log)
	orderController := controllers.NewOrderController(orderService)

	paymentHandler := services.NewPaymentEventHandler(orderService, metricsClient, log)
	if awsLoaded && cfg.PaymentEventsQueueURL != "" {
		sqsConsumer := awspkg.NewSQSConsumer(awsCfg, cfg.PaymentEventsQueueURL, log)
		go services.NewSQSPaymentConsumer(sqsConsumer, paymentHandler, log).Start(ctx)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kc := services.NewKafkaPaymentConsumer(cfg.KafkaBrokers, cfg.PaymentTopic, cfg.PaymentGroupID, paymentHandler, log)
		defer kc.Close()
		go kc.Start(ctx)
	}

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst, 10*time.Minute)
	go limiter.Run(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.SecurityHeaders())
	if metricsClient.IsEnabled() {
		r.Use(middleware.MetricsMiddleware(metricsClient, serviceName))
	}
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.RateLimitMiddleware(limiter))

	routes.RegisterOrderRoutes(r, orderController)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		log.Info("Order Service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down Order Service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Order Service stopped gracefully")
}
