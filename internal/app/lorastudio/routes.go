// Package lorastudio предоставляет маршруты для основного приложения.
package lorastudio

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/andrmaer/lora-studio/internal/config"
	"github.com/andrmaer/lora-studio/internal/http/handlers/auth/login"
	"github.com/andrmaer/lora-studio/internal/http/handlers/auth/register"
	"github.com/andrmaer/lora-studio/internal/http/handlers/checkout/checkoutcredits"
	"github.com/andrmaer/lora-studio/internal/http/handlers/checkout/checkoutsubscription"
	"github.com/andrmaer/lora-studio/internal/http/handlers/checkout/checkoutverify"
	"github.com/andrmaer/lora-studio/internal/http/handlers/health"
	"github.com/andrmaer/lora-studio/internal/http/handlers/image/imagegenerate"
	"github.com/andrmaer/lora-studio/internal/http/handlers/payment/paymentwebhook"
	"github.com/andrmaer/lora-studio/internal/http/handlers/payment/publishablekey"
	"github.com/andrmaer/lora-studio/internal/http/handlers/training/trainingawait"
	"github.com/andrmaer/lora-studio/internal/http/handlers/training/trainingresult"
	"github.com/andrmaer/lora-studio/internal/http/handlers/training/trainingstatus"
	"github.com/andrmaer/lora-studio/internal/http/handlers/training/trainingsubmit"
	"github.com/andrmaer/lora-studio/internal/http/handlers/user/balance"
	"github.com/andrmaer/lora-studio/internal/http/handlers/user/grants"
	"github.com/andrmaer/lora-studio/internal/http/middlewarectx"
	authservice "github.com/andrmaer/lora-studio/internal/services/auth"
	checkoutservice "github.com/andrmaer/lora-studio/internal/services/checkout"
	creditservice "github.com/andrmaer/lora-studio/internal/services/credits"
	generationservice "github.com/andrmaer/lora-studio/internal/services/generation"
	trainingservice "github.com/andrmaer/lora-studio/internal/services/training"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config,
	authService *authservice.AuthService,
	creditService *creditservice.CreditService,
	checkoutService *checkoutservice.CheckoutService,
	trainingService *trainingservice.TrainingService,
	generationService *generationservice.GenerationService,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, authService).ServeHTTP)
		r.Post("/login", login.New(logger, authService).ServeHTTP)
		r.Get("/health", health.New(logger).ServeHTTP)
		r.Get("/stripe/publishable-key", publishablekey.New(logger, cfg.Stripe.PublishableKey).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(authService, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))

			r.Post("/checkout/credits", checkoutcredits.New(logger, checkoutService).ServeHTTP)
			r.Post("/checkout/subscription", checkoutsubscription.New(logger, checkoutService).ServeHTTP)
			r.Get("/checkout/verify", checkoutverify.New(logger, checkoutService).ServeHTTP)

			r.Post("/trainings", trainingsubmit.New(logger, trainingService).ServeHTTP)
			r.Get("/trainings/{request_id}/status", trainingstatus.New(logger, trainingService).ServeHTTP)
			r.Get("/trainings/{request_id}/result", trainingresult.New(logger, trainingService).ServeHTTP)
			r.Get("/trainings/{request_id}/await", trainingawait.New(logger, trainingService).ServeHTTP)

			r.Post("/images", imagegenerate.New(logger, generationService).ServeHTTP)

			r.Get("/credits", balance.New(logger, creditService).ServeHTTP)
			r.Get("/credits/grants", grants.New(logger, creditService).ServeHTTP)
		})

		// Webhook endpoint (без аутентификации)
		r.Post("/payments/webhook", paymentwebhook.New(logger, creditService, cfg.Stripe.WebhookSecret).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
