package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	apperrors "github.com/aarthurxk/calibrasil-sub001/common/errors"
	"github.com/aarthurxk/calibrasil-sub001/common/logger"
	"github.com/aarthurxk/calibrasil-sub001/common/middleware"
	"github.com/aarthurxk/calibrasil-sub001/common/ratelimit"
	"github.com/aarthurxk/calibrasil-sub001/config"
	"github.com/aarthurxk/calibrasil-sub001/controllers"
	"github.com/aarthurxk/calibrasil-sub001/database"
	"github.com/aarthurxk/calibrasil-sub001/gateways"
	awspkg "github.com/aarthurxk/calibrasil-sub001/pkg/aws"
	"github.com/aarthurxk/calibrasil-sub001/repository"
	"github.com/aarthurxk/calibrasil-sub001/routes"
	"github.com/aarthurxk/calibrasil-sub001/services"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const serviceName = "order-reconciliation"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Initialize("development").Fatal("Config load failed", zap.Error(err))
	}

	ctx := context.Background()

	// --- AWS setup ---
	awsCfg, awsErr := awspkg.LoadAWSConfig(ctx)

	var (
		cwWriter *awspkg.CloudWatchLogsClient
		cwErr    error
	)
	if cfg.CloudWatchEnabled && awsErr == nil {
		cwWriter, cwErr = awspkg.NewCloudWatchLogsClient(ctx, awsCfg, "/calibrasil/"+serviceName, serviceName)
	}
	var log *zap.Logger
	if cwErr == nil && cwWriter != nil {
		log = logger.InitializeWithWriter(cfg.Env, cwWriter)
	} else {
		log = logger.Initialize(cfg.Env)
	}
	defer log.Sync()

	if awsErr != nil {
		log.Warn("AWS config unavailable, running without AWS integrations", zap.Error(awsErr))
	}
	if cwErr != nil {
		log.Warn("CloudWatch Logs init failed (non-fatal)", zap.Error(cwErr))
	}

	// --- Storage ---
	var (
		store     repository.Store
		auditRepo repository.AuditRepository
		db        *gorm.DB
	)
	switch cfg.StoreBackend {
	case "memory":
		log.Warn("Using in-memory store, state is lost on restart")
		store = repository.NewMemoryStore()
		auditRepo = repository.NewMemoryAuditRepository()
	default:
		db, err = database.ConnectPostgres(log, cfg.DSN(), repository.Models()...)
		if err != nil {
			log.Fatal("DB connection failed", zap.Error(err))
		}
		store = repository.NewGormStore(db)
		auditRepo = repository.NewGormAuditRepository(db)
	}

	// --- Rate limiter ---
	var (
		limiter     ratelimit.Limiter
		redisClient *redis.Client
		memLimiter  *ratelimit.MemoryLimiter
	)
	if cfg.RateLimitBackend == "redis" {
		redisClient, err = database.NewRedisClient(ctx, log, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("Redis unavailable, falling back to in-process rate limiting", zap.Error(err))
		} else {
			limiter = ratelimit.NewRedisLimiter(redisClient, "ratelimit:", cfg.RateLimitPerMinute, time.Minute)
		}
	}
	if limiter == nil {
		memLimiter = ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute, cfg.RateLimitBurst, 10*time.Minute)
		limiter = memLimiter
	}

	// --- Outbound adapters (all optional) ---
	var (
		metrics   awspkg.MetricsRecorder = awspkg.NopMetrics{}
		publisher awspkg.SNSPublisher
		sender    awspkg.SQSSender
		putter    awspkg.ObjectPutter
	)
	if awsErr == nil {
		if cfg.CloudWatchEnabled {
			metrics = awspkg.NewMetricsClient(awsCfg, cfg.MetricsNamespace, true)
		}
		if cfg.NotificationTopicARN != "" {
			publisher = awspkg.NewSNSClient(awsCfg)
		}
		if queue := cfg.RestockQueueURL; queue != "" {
			var qErr error
			if !strings.HasPrefix(queue, "https://") {
				queue, qErr = awspkg.GetQueueURL(ctx, awsCfg, queue)
			}
			if qErr != nil {
				log.Warn("Restock queue lookup failed, low stock signals will only be logged", zap.Error(qErr))
			} else {
				sender = awspkg.NewSQSProducer(awsCfg, queue)
			}
		}
		if cfg.WebhookArchiveBucket != "" {
			putter = awspkg.NewS3Bucket(awsCfg, cfg.WebhookArchiveBucket)
		}
	}

	// --- Dependency injection ---
	signer, err := services.NewTokenSigner(cfg.ConfirmationSecret)
	if err != nil {
		log.Fatal("Confirmation signer init failed", zap.Error(err))
	}
	auditSvc := services.NewAuditService(auditRepo, log)
	notifier := services.NewSNSNotifier(publisher, cfg.NotificationTopicARN, log)
	confirmations := services.NewConfirmationService(store, signer, cfg.ConfirmationTTL, cfg.ConfirmationBaseURL,
		auditSvc, notifier, metrics, log)

	var labels services.LabelGenerator
	if cfg.ShippingServiceURL != "" {
		labels = services.NewShippingClient(cfg.ShippingServiceURL)
	}

	reconciler := services.NewReconciler(services.ReconcilerDeps{
		Store:         store,
		Verifier:      gateways.NewVerifier(store, cfg.GatewayTimeout, cfg.GatewayMaxConcurrency, log, metrics),
		Inventory:     services.NewInventoryLedger(cfg.LowStockThreshold, log),
		Coupons:       services.NewCouponAccountant(log),
		Confirmations: confirmations,
		Audit:         auditSvc,
		Notifier:      notifier,
		Labels:        labels,
		LowStock:      services.NewLowStockPublisher(sender, metrics, log),
		Archive:       services.NewPayloadArchive(putter, log),
		Metrics:       metrics,
		Logger:        log,
	})

	providers := map[string]gateways.Provider{
		routes.WebhookStripe:          gateways.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookKey, nil),
		routes.WebhookPagSeguroLegacy: gateways.NewPagSeguroLegacyProvider(cfg.PagSeguroLegacyURL, cfg.PagSeguroEmail, cfg.PagSeguroToken),
		routes.WebhookPagSeguro:       gateways.NewPagSeguroProvider(cfg.PagSeguroAPIURL, cfg.PagSeguroToken),
	}

	if err := controllers.RegisterValidators(); err != nil {
		log.Fatal("Validator registration failed", zap.Error(err))
	}

	// --- HTTP router ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.MetricsMiddleware(metrics, serviceName))
	r.Use(middleware.SecurityHeaders())
	r.Use(apperrors.ErrorMiddleware())

	// Request timeout middleware
	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.GatewayTimeout+15*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	routes.RegisterRoutes(r,
		controllers.NewWebhookController(reconciler, providers, log),
		controllers.NewConfirmationController(confirmations),
		controllers.NewAdminController(reconciler, auditSvc),
		routes.Options{
			Limiter:        limiter,
			JWTSecret:      cfg.JWTSecret,
			AllowedOrigins: cfg.AllowedOrigins,
			Logger:         log,
		},
	)

	// --- HTTP server ---
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info("Order reconciliation service started", zap.String("port", cfg.Port), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Initiating graceful shutdown...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	if memLimiter != nil {
		memLimiter.Close()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Redis close error", zap.Error(err))
		}
	}
	if db != nil {
		if err := database.Close(db); err != nil {
			log.Error("Database close error", zap.Error(err))
		}
	}

	log.Info("Order reconciliation service stopped gracefully")
}
