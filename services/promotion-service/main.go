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
	"github.com/yashrajoria/commerce-core/pkg/lock"
	"github.com/yashrajoria/commerce-core/services/common/database"
	"github.com/yashrajoria/commerce-core/services/common/logger"
	"github.com/yashrajoria/commerce-core/services/common/middleware"
	"github.com/yashrajoria/commerce-core/services/promotion-service/controllers"
	"github.com/yashrajoria/commerce-core/services/promotion-service/models"
	"github.com/yashrajoria/commerce-core/services/promotion-service/repository"
	"github.com/yashrajoria/commerce-core/services/promotion-service/routes"
	"github.com/yashrajoria/commerce-core/services/promotion-service/services"
)

const serviceName = "promotion-service"

// couponStore is what both backends provide.
type couponStore interface {
	repository.CouponRepository
	repository.QuotaStore
}

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

	// --- Database ---
	var store couponStore
	if cfg.CouponBackend == "memory" {
		log.Warn("Using in-memory coupon store; state is lost on restart")
		store = repository.NewMemoryCouponRepository()
	} else {
		db, err := database.ConnectPostgres(ctx, cfg.Postgres, log, &models.Coupon{}, &models.CouponIssuance{})
		if err != nil {
			log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer func() {
			if err := database.ClosePostgres(db); err != nil {
				log.Warn("Failed to close PostgreSQL", zap.Error(err))
			}
		}()
		store = repository.NewGormCouponRepository(db)
	}

	// --- Issuance strategy ---
	var issuer services.QuotaIssuer
	switch cfg.IssueStrategy {
	case "pubsub":
		keyStore, closeKeys := openKeyStore(ctx, cfg, log)
		defer closeKeys()
		issuer = services.NewLockedIssuer(store, lock.NewPubSubLock(keyStore, log), lock.AcquireOptions{
			TTL:         cfg.LockTTL,
			WaitTimeout: cfg.LockWaitTimeout,
		})
	default:
		issuer = services.NewRowLockIssuer(store)
	}

	// --- AWS setup ---
	var snsClient awspkg.SNSPublisher
	if cfg.PromotionSNSTopicARN != "" {
		awsCfg, err := awspkg.LoadAWSConfig(ctx)
		if err != nil {
			log.Warn("AWS config unavailable; coupon events disabled", zap.Error(err))
		} else {
			snsClient = awspkg.NewSNSClient(awsCfg)
		}
	}

	// --- Dependency injection ---
	couponService := services.NewCouponService(store, issuer, snsClient, cfg.PromotionSNSTopicARN, metricsClient, log)
	couponController := controllers.NewCouponController(couponService)

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

	routes.RegisterCouponRoutes(r, couponController)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": serviceName})
	})

	// --- HTTP server ---
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info("Promotion Service started",
			zap.String("port", cfg.Port),
			zap.String("issue_strategy", cfg.IssueStrategy),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()

	log.Info("Initiating graceful shutdown...")
	httpShutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(httpShutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	log.Info("Promotion Service stopped gracefully")
}

// openKeyStore returns the lock key store and a func that closes it.
func openKeyStore(ctx context.Context, cfg *Config, log *zap.Logger) (lock.KeyStore, func()) {
	if cfg.LockBackend == "memory" {
		log.Warn("Using in-process lock store; issuance is only serialized within this replica")
		return lock.NewMemoryKeyStore(), func() {}
	}
	rdb, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	log.Info("Connected to Redis")
	return lock.NewRedisKeyStore(rdb), func() { _ = rdb.Close() }
}
