package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-auction/internal/auth"
	"ms-auction/internal/bidding"
	"ms-auction/internal/bidding/bid_api"
	biddingdb "ms-auction/internal/bidding/db"
	"ms-auction/internal/config"
	"ms-auction/internal/database/migrations"
	"ms-auction/internal/directory"
	"ms-auction/internal/items"
	itemsdb "ms-auction/internal/items/db"
	"ms-auction/internal/items/items_api"
	"ms-auction/internal/kafka"
	"ms-auction/internal/logger"
	"ms-auction/internal/notify"
	notifydb "ms-auction/internal/notify/db"
	"ms-auction/internal/payment"
	paymentdb "ms-auction/internal/payment/db"
	"ms-auction/internal/payment/payment_api"
	"ms-auction/internal/payment/report"
	"ms-auction/internal/settings"
	settingsdb "ms-auction/internal/settings/db"
	"ms-auction/internal/settings/settings_api"
	"ms-auction/internal/settlement"
	settlementredis "ms-auction/internal/settlement/redis"
	"ms-auction/internal/settlement/settlement_api"

	"github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := cfg.Database.ConnRetries

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

// newPublisher returns the Kafka producer for notifications, or an in-memory
// one when Kafka is disabled or in mock mode.
func newPublisher(cfg config.KafkaConfig, logger *logger.Logger) (notify.Publisher, func() error) {
	if !cfg.Enabled || cfg.MockMode {
		logger.Warn("KAFKA", "Kafka disabled, notifications are only logged")
		p := kafka.NewMockProducer(logger)
		return p, p.Close
	}

	if err := kafka.EnsureTopicsExist(cfg.Brokers, []string{cfg.Topics.Notifications}, logger); err != nil {
		logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		logger.Info("KAFKA", "Required topics ensured successfully")
	}

	p := kafka.NewProducer(cfg.Brokers, cfg.Topics.Notifications, logger)
	logger.Info("KAFKA", "Kafka producer initialized successfully")
	return p, p.Close
}

// requestLogger reports every request through the service logger.
func requestLogger(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}

func main() {
	logger := logger.NewLogger("auction")
	defer logger.Close()

	logger.Info("APP", "Starting Auction Service initialization")
	cfg := config.Load()
	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	if cfg.Migrations.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: cfg.Migrations.Dir}, logger)
		if err := runner.RunMigrations(); err != nil {
			logger.Fatal("MIGRATE", fmt.Sprintf("Failed to run migrations: %v", err))
		}
		_ = runner.Close()
	}

	publisher, closePublisher := newPublisher(cfg.Kafka, logger)
	defer closePublisher()
	outbox := notify.NewOutbox(&notifydb.DB{Bun: bunDB}, publisher, logger)
	outbox.Start()

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		logger.Fatal("AUTH", fmt.Sprintf("Failed to initialize token verifier: %v", err))
	}

	itemStore := &itemsdb.DB{Bun: bunDB}
	settingsStore := &settingsdb.DB{Bun: bunDB}
	bidLedger := &biddingdb.DB{Bun: bunDB}
	users := directory.New(bunDB)

	bidService := bidding.NewService(bidLedger, itemStore, settingsStore, users, outbox, logger, cfg.Bidding)
	itemService := items.NewService(itemStore, logger)
	settingsService := settings.NewService(settingsStore, logger)
	settlementService := settlement.NewService(
		itemStore,
		bidLedger,
		settlementredis.NewLock(redisClient, cfg.Settlement.LockTTL, logger),
		users,
		outbox,
		logger,
	)

	var processor payment.Processor
	stripeProcessor, err := payment.NewStripeProcessor(cfg.Stripe, logger)
	if err != nil {
		logger.Warn("STRIPE", "Card payments disabled until STRIPE_SECRET_KEY is set")
	} else {
		processor = stripeProcessor
	}
	tracker := payment.NewTracker(
		&paymentdb.DB{Bun: bunDB},
		itemStore,
		settingsStore,
		processor,
		outbox,
		logger,
		cfg.Stripe.WebhookSecret,
		cfg.Stripe.RequestTimeout,
	)

	bidHandler := bid_api.NewHandler(bidService, logger)
	itemHandler := &items_api.Handler{Service: itemService, Logger: logger}
	settingsHandler := &settings_api.Handler{Service: settingsService, Logger: logger}
	settlementHandler := &settlement_api.Handler{Service: settlementService, Logger: logger}

	gin.SetMode(gin.ReleaseMode)
	paymentHandler := payment_api.NewHandler(tracker, report.New(bunDB.DB, squirrel.Dollar), logger)
	paymentRouter := payment_api.NewRouter(paymentHandler, verifier, cfg.Auth.AdminRole, logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		// --- Public Routes ---
		r.Get("/auction/settings", settingsHandler.GetPublic)
		bidHandler.RegisterPublicRoutes(r)

		// --- Payment Routes (gin) ---
		r.Mount("/payments", paymentRouter)
		logger.Info("ROUTER", "Payment routes registered under /api/payments")

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier, logger))
			bidHandler.RegisterRoutes(r)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(cfg.Auth.AdminRole, logger))
				r.Get("/auction/settings", settingsHandler.GetAdmin)
				r.Put("/auction/settings", settingsHandler.Update)
				itemHandler.RegisterAdminRoutes(r)
				settlementHandler.RegisterAdminRoutes(r)
			})
			logger.Info("ROUTER", "Admin routes registered under /api/admin")
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Auction Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	if err := outbox.Close(ctxShutdown); err != nil {
		logger.Warn("NOTIFY", fmt.Sprintf("Outbox did not stop: %v", err))
	}
	logger.Info("HTTP", "✅ Auction Service shutdown complete")
}
