// Package lorastudio собирает основное HTTP-приложение: хранилище, кэш,
// клиенты провайдера и очереди задач, сервисы и маршруты.
package lorastudio

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/andrmaer/lora-studio/internal/cache"
	"github.com/andrmaer/lora-studio/internal/config"
	"github.com/andrmaer/lora-studio/internal/jobqueue"
	"github.com/andrmaer/lora-studio/internal/lib/jwt"
	"github.com/andrmaer/lora-studio/internal/lib/sl"
	"github.com/andrmaer/lora-studio/internal/migrations"
	"github.com/andrmaer/lora-studio/internal/paymentprovider"
	"github.com/andrmaer/lora-studio/internal/rabbitmq"
	authservice "github.com/andrmaer/lora-studio/internal/services/auth"
	checkoutservice "github.com/andrmaer/lora-studio/internal/services/checkout"
	creditservice "github.com/andrmaer/lora-studio/internal/services/credits"
	generationservice "github.com/andrmaer/lora-studio/internal/services/generation"
	trainingservice "github.com/andrmaer/lora-studio/internal/services/training"
	"github.com/andrmaer/lora-studio/internal/storage/repository"
)

type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	amqp   *amqp.Connection
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	providerClient := paymentprovider.NewClient(cfg.Stripe.SecretKey)
	queueClient := jobqueue.NewClient(cfg.Fal.APIKey, cfg.Fal.QueueURL, cfg.Fal.SyncRunURL)
	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	// Уведомления о покупках опциональны: без RabbitMQ приложение
	// продолжает работать, начисления от него не зависят.
	var amqpConn *amqp.Connection
	var notifier creditservice.Notifier
	if cfg.RabbitMQURL != "" {
		amqpConn, err = rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			return nil, err
		}
		ch, err := rabbitmq.SetupChannel(amqpConn, rabbitmq.GetNotificationQueues())
		if err != nil {
			amqpConn.Close()
			return nil, err
		}
		notifier = rabbitmq.NewNotifier(ch)
	} else {
		logger.Warn("rabbitmq url is empty, purchase notifications disabled")
	}

	prices := creditservice.PriceTable{
		LoraCredits:  cfg.Stripe.PriceLoraCredits,
		ImageCredits: cfg.Stripe.PriceImageCredits,
		ImageSub:     cfg.Stripe.PriceImageSub,
		LoraSub:      cfg.Stripe.PriceLoraSub,
	}

	authService := authservice.NewAuthService(db, jwtMaker)
	creditService := creditservice.New(logger, db, providerClient, cacheRedis, notifier, prices)
	checkoutService := checkoutservice.New(logger, providerClient, cacheRedis, cfg.Stripe, cfg.BaseURL)
	trainingService := trainingservice.New(logger, db, queueClient, cacheRedis)
	generationService := generationservice.New(logger, db, queueClient, cacheRedis)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, authService, creditService, checkoutService,
		trainingService, generationService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		amqp:   amqpConn,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close database", sl.Err(closeErr))
		}
		if a.amqp != nil {
			if closeErr := a.amqp.Close(); closeErr != nil {
				a.logger.Error("failed to close rabbitmq connection", sl.Err(closeErr))
			}
		}
		return err
	}
}
