package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v82"

	"payment-reconciler/internal/config"
	"payment-reconciler/internal/handlers"
	"payment-reconciler/internal/kafka"
	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/middleware"
	"payment-reconciler/internal/monitoring"
	"payment-reconciler/internal/notify"
	ledger "payment-reconciler/internal/redis"
	"payment-reconciler/internal/services"
	"payment-reconciler/internal/storage"
	"payment-reconciler/internal/worker"
)

const serviceName = "payment-reconciler"

// Global logger instance
var log *logger.Logger

func main() {
	log = logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("ENV", "Error loading .env file, using environment variables")
	}

	log.LogProcess("STARTUP", "Payment reconciler starting up...")

	cfg := config.Load()
	log.Info("CONFIG", "Configuration loaded for environment "+cfg.Environment)

	store := openStore(cfg)
	defer store.Close()

	var (
		eventLedger services.EventLedger
		synthLedger services.SynthesisLedger
	)
	if l := openLedger(cfg.Redis); l != nil {
		defer l.Close()
		eventLedger, synthLedger = l, l
	}

	log.LogProcess("KAFKA", "Initializing Kafka producer...")
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.MockMode, log)
	if err != nil {
		log.Fatal("KAFKA", "Failed to create Kafka producer: "+err.Error())
	}
	defer producer.Close()

	provider := services.NewPaymentProvider(cfg.Stripe, log)

	var notifier services.Notifier
	if cfg.Mail.Host != "" {
		notifier = notify.NewMailer(cfg.Mail, cfg.App.PublicBaseURL, log)
		log.LogProcess("MAIL", "SMTP notifications enabled via "+cfg.Mail.Host)
	} else {
		notifier = notify.NewLogNotifier(log)
		log.Warn("MAIL", "SMTP_HOST not set, notifications are logged only")
	}

	materializer := services.NewTicketMaterializer(store, store, cfg.App.PublicBaseURL, log)
	reconciler := services.NewOrderReconciler(services.OrderReconcilerDeps{
		Orders:       store,
		Tickets:      store,
		Users:        store,
		Provider:     provider,
		Materializer: materializer,
		Notifier:     services.NewNotificationDispatcher(notifier, log),
		Ledger:       synthLedger,
		Publisher:    producer,
	}, log)
	projector := services.NewSubscriptionProjector(store, services.NewCustomerResolver(provider, store, log), producer, log)
	dispatcher := services.NewDispatcher(reconciler, projector, eventLedger, log)
	log.LogProcess("SERVICE", "Reconciliation pipeline initialized")

	pool := worker.NewPool(cfg.Worker.Count, cfg.Worker.QueueSize, cfg.Worker.TaskTimeout, log)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go monitoring.SampleQueueDepth(ctx, pool.Depth, 5*time.Second)

	var consumer *kafka.Consumer
	if cfg.Kafka.RelayEnabled && len(cfg.Kafka.Brokers) > 0 {
		consumer, err = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.RelayTopic, log)
		if err != nil {
			log.Fatal("KAFKA", "Failed to create Kafka consumer: "+err.Error())
		}
		go func() {
			log.LogKafka("START", cfg.Kafka.RelayTopic, "Starting relay consumer goroutine")
			err := consumer.ConsumeEvents(ctx, func(ctx context.Context, event *stripe.Event) {
				dispatcher.Dispatch(ctx, event)
			})
			if err != nil && ctx.Err() == nil {
				log.Error("KAFKA", "Consumer error: "+err.Error())
			}
		}()
	}

	webhookHandler := handlers.NewWebhookHandler(cfg, dispatcher, pool, log)
	healthHandler := handlers.NewHealthHandler(serviceName, pool.Depth)

	router := setupRouter(cfg, webhookHandler, healthHandler)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.LogProcess("SERVER", "Starting HTTP server on "+cfg.Server.Port)
		log.Info("STARTUP", "Webhook endpoint: POST /webhooks/stripe, health: GET /health, metrics: GET /metrics")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "Server failed to start: "+err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn("SHUTDOWN", "Received shutdown signal, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("SHUTDOWN", "Server forced to shutdown: "+err.Error())
	}

	// stop intake from the relay before draining queued work
	stop()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Warn("SHUTDOWN", "Failed to close Kafka consumer: "+err.Error())
		}
	}

	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Error("SHUTDOWN", "Worker pool did not drain: "+err.Error())
	}

	log.Info("SHUTDOWN", "Payment reconciler shutdown completed")
}

func openStore(cfg *config.Config) storage.Store {
	if cfg.Database.Driver == "memory" {
		if cfg.IsProduction() {
			log.Fatal("DATABASE", "DB_DRIVER=memory is not allowed in production")
		}
		log.Warn("DATABASE", "Using in-memory storage, data is lost on restart")
		return storage.NewInMemoryStore()
	}

	log.LogProcess("DATABASE", "Initializing MySQL database...")
	store, err := storage.NewMySQLStore(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", "Failed to initialize MySQL: "+err.Error())
	}
	return store
}

// openLedger returns nil when Redis is not configured or unreachable; the
// pipeline then relies on the live payment intent re-read alone.
func openLedger(cfg config.RedisConfig) *ledger.Ledger {
	if cfg.Addr == "" {
		log.Warn("REDIS", "REDIS_ADDR not set, running without the idempotency ledger")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	l := ledger.NewLedger(client, cfg.EventTTL, cfg.ClaimTTL)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := l.Ping(ctx); err != nil {
		log.Warn("REDIS", "Redis unreachable, running without the idempotency ledger: "+err.Error())
		_ = l.Close()
		return nil
	}

	log.LogProcess("REDIS", "Redis connection successful at "+cfg.Addr)
	return l
}

func setupRouter(cfg *config.Config, webhookHandler *handlers.WebhookHandler, healthHandler *handlers.HealthHandler) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.EnhancedLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.SecurityHeaders(log))

	// Webhook routes are not rate limited: the worker queue bounds intake and
	// answers 503 with Retry-After when full.
	router.POST("/webhooks/stripe", webhookHandler.HandleStripeWebhook)
	v1 := router.Group("/api/v1")
	{
		v1.POST("/stripe/webhook", webhookHandler.HandleStripeWebhook)
	}

	ops := router.Group("/")
	ops.Use(middleware.RateLimit(float64(cfg.Server.RateLimitRPS), cfg.Server.RateBurst, log))
	{
		ops.GET("/health", healthHandler.Health)
		ops.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	log.LogProcess("ROUTER", "All routes registered successfully")
	return router
}
