// Package sender собирает приложение отправки писем: подключение к
// RabbitMQ, SMTP-транспорт и потребитель очереди уведомлений о покупках.
package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/andrmaer/lora-studio/internal/config"
	"github.com/andrmaer/lora-studio/internal/lib/smtp"
	"github.com/andrmaer/lora-studio/internal/rabbitmq"
	senderservice "github.com/andrmaer/lora-studio/internal/services/sender"
)

type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}

	newTransport := smtp.NewTransport(cfg, logger)
	senderService := senderservice.NewSenderService(logger, newTransport)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.Consume(ctx, a.ch, rabbitmq.PurchaseQueue, a.senderService.SendPurchaseReceipt)
	if err != nil {
		a.logger.Error("failed to start purchase queue consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
