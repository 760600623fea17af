// cmd/worker/main.go
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/streadway/amqp"

	"github.com/unclebandit/smsconsole-backend/internal/config"
	"github.com/unclebandit/smsconsole-backend/internal/db"
	"github.com/unclebandit/smsconsole-backend/internal/gateway"
	"github.com/unclebandit/smsconsole-backend/internal/logger"
	"github.com/unclebandit/smsconsole-backend/internal/queue"
	"github.com/unclebandit/smsconsole-backend/internal/repository"
	"github.com/unclebandit/smsconsole-backend/internal/service"
)

// The worker consumes delivery retry jobs queued by the webhook path and
// re-sends them through the gateway.
func main() {
	log := logger.NewJSONLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	database, err := db.Open(cfg.DSN())
	if err != nil {
		log.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Error("failed to connect to rabbitmq", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	deliveryService := &service.DeliveryService{
		Deliveries: &repository.DeliveryStatusRepository{DB: database},
		Messages:   &repository.MessageRepository{DB: database},
		OptOuts:    &repository.OptOutRepository{DB: database},
		Gateway:    gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayUsername, cfg.GatewayPassword),
		Log:        log,
	}

	log.Info("worker running, waiting for retry jobs")
	err = queue.ConsumeRetries(conn, func(job queue.RetryJob) error {
		return deliveryService.RetryFailedDelivery(context.Background(), job.ExternalID)
	})
	if err != nil {
		log.Error("consumer stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
