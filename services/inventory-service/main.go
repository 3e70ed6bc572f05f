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
	"gorm.io/gorm"

	awspkg "github.com/yashrajoria/commerce-core/pkg/aws"
	"github.com/yashrajoria/commerce-core/pkg/cache"
	"github.com/yashrajoria/commerce-core/pkg/lock"
	"github.com/yashrajoria/commerce-core/services/common/database"
	apperrors "github.com/yashrajoria/commerce-core/services/common/errors"
	"github.com/yashrajoria/commerce-core/services/common/logger"
	"github.com/yashrajoria/commerce-core/services/common/middleware"
	"github.com/yashrajoria/commerce-core/services/inventory-service/controllers"
	"github.com/yashrajoria/commerce-core/services/inventory-service/kafka"
	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
	"github.com/yashrajoria/commerce-core/services/inventory-service/repository"
	"github.com/yashrajoria/commerce-core/services/inventory-service/routes"
	"github.com/yashrajoria/commerce-core/services/inventory-service/services"
)

const serviceName = "inventory-service"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(ctx)
	if err != nil {
		logger.Must("production", nil).Fatal("Config load failed", zap.Error(err))
	}

	// CloudWatch (Logs + Metrics). Both are optional.
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

	stockRepo, reservationRepo, closeStores := openStores(ctx, cfg, log)
	defer closeStores()

	// Redis backs the snapshot cache and the reaper's sweep lock.
	var stockCache *cache.Cache
	var sweepGuard services.SweepGuard
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("Redis unavailable, stock cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			stockCache = cache.New(cache.NewRedisStore(rdb, "inventory:"), log)
			sweepGuard = lock.NewSimpleLock(lock.NewRedisKeyStore(rdb), log)
			log.Info("Connected to Redis")
		}
	}

	coordOpts := []services.CoordinatorOption{
		services.WithRetryPolicy(cfg.Retry),
		services.WithReservationTTL(cfg.ReservationTTL),
		services.WithMetrics(metricsClient),
		services.WithStockCache(stockCache),
		services.WithLogger(log),
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.StockTopic, log)
		defer producer.Close()
		coordOpts = append(coordOpts, services.WithEventPublisher(producer))
	}
	coordinator := services.NewReservationCoordinator(stockRepo, reservationRepo, coordOpts...)
	inventoryService := services.NewInventoryService(stockRepo, stockCache, log)
	inventoryController := controllers.NewInventoryController(inventoryService, coordinator)

	var orders services.OrderCanceller
	if cfg.OrderServiceURL != "" {
		orders = services.NewOrderClient(cfg.OrderServiceURL)
	}
	reaper := services.NewExpiryReaper(reservationRepo, coordinator, orders, cfg.Reaper, metricsClient, log)
	if sweepGuard != nil {
		reaper.WithGuard(sweepGuard)
	}
	go reaper.Start(ctx)

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst, 10*time.Minute)
	go limiter.Run(ctx)

	// --- HTTP router ---
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
	r.Use(apperrors.ErrorMiddleware())

	routes.RegisterRoutes(r, inventoryController)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		log.Info("Inventory Service starting",
			zap.String("port", cfg.Port),
			zap.String("stock_backend", cfg.StockBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()

	log.Info("Shutting down Inventory Service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Inventory Service stopped gracefully")
}

// openStores builds the stock and reservation repositories for the
// configured backend. The returned func closes whatever was opened.
func openStores(ctx context.Context, cfg *Config, log *zap.Logger) (repository.StockRepository, repository.ReservationRepository, func()) {
	if cfg.StockBackend == "memory" {
		log.Warn("Using in-memory stores; state is lost on restart")
		return repository.NewMemoryStockRepository(), repository.NewMemoryReservationRepository(), func() {}
	}

	migrate := []any{&models.Reservation{}}
	if cfg.StockBackend == "postgres" {
		migrate = append(migrate, &models.Stock{})
	}
	db, err := database.ConnectPostgres(ctx, cfg.Postgres, log, migrate...)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	closers := []func(){func() { closePostgres(db, log) }}
	reservations := repository.NewGormReservationRepository(db)

	var stocks repository.StockRepository
	switch cfg.StockBackend {
	case "dynamodb":
		awsCfg, err := awspkg.LoadAWSConfig(ctx)
		if err != nil {
			log.Fatal("Failed to load AWS config", zap.Error(err))
		}
		stocks = repository.NewDynamoStockRepository(awspkg.NewDynamoClient(awsCfg), cfg.DDBTable)
	case "mongo":
		client, mdb, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			log.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		closers = append(closers, func() { _ = database.DisconnectMongo(client) })
		stocks = repository.NewMongoStockRepository(mdb, "stock")
	default:
		stocks = repository.NewGormStockRepository(db)
	}

	return stocks, reservations, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

func closePostgres(db *gorm.DB, log *zap.Logger) {
	if err := database.ClosePostgres(db); err != nil {
		log.Warn("Failed to close PostgreSQL", zap.Error(err))
	}
}
