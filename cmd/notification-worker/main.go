package main

import (
	"context"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"

	"ms-auction/internal/config"
	"ms-auction/internal/directory"
	"ms-auction/internal/kafka"
	"ms-auction/internal/logger"
	"ms-auction/internal/notify"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func main() {
	logger := logger.NewLogger("notification-worker")
	defer logger.Close()

	cfg := config.Load()
	if !cfg.Kafka.Enabled || cfg.Kafka.MockMode {
		logger.Fatal("CONFIG", "Notification worker needs Kafka; KAFKA_ENABLED is false or mock mode is on")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	if err := sqldb.PingContext(ctx); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.Topics.Notifications}, logger); err != nil {
		logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}

	worker := notify.NewWorker(directory.New(bunDB), notify.NewSMTPMailer(cfg.Email), logger)
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.Notifications, cfg.Kafka.GroupID, logger)
	defer consumer.Close()

	logger.Info("APP", fmt.Sprintf("Notification worker consuming %s as %s", cfg.Kafka.Topics.Notifications, cfg.Kafka.GroupID))
	if err := consumer.Run(ctx, worker.Handle); err != nil {
		logger.Fatal("KAFKA", fmt.Sprintf("Consumer stopped: %v", err))
	}
	logger.Info("APP", "Notification worker shut down")
}
