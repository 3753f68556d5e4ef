// Package paymentwebhook принимает события платёжного провайдера.
//
// Это единственная точка входа начислений: подпись события проверяется
// по заголовку Stripe-Signature, после чего событие передаётся кредитному
// сервису. Код ответа управляет повторной доставкой на стороне провайдера:
// 2xx подтверждает событие, 400 помечает его неисправимым, 500 вызывает
// повторную доставку.
package paymentwebhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/andrmaer/lora-studio/internal/lib/sl"
	"github.com/andrmaer/lora-studio/internal/metrics"
	"github.com/andrmaer/lora-studio/internal/paymentprovider"
	creditservice "github.com/andrmaer/lora-studio/internal/services/credits"
)

// maxBodyBytes ограничивает размер тела события.
const maxBodyBytes = 65536

// Service описывает интерфейс кредитного сервиса для обработки событий.
type Service interface {
	ProcessEvent(ctx context.Context, event *paymentprovider.Event) (creditservice.Outcome, error)
}

type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string
}

func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(slog.String("op", op))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		metrics.WebhookEventsTotal.WithLabelValues(metrics.ResultRejected).Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("Stripe-Signature")
	event, err := paymentprovider.ConstructEvent(body, signature, h.webhookSecret)
	if err != nil {
		log.Error("invalid webhook event", sl.Err(err))
		metrics.WebhookEventsTotal.WithLabelValues(metrics.ResultRejected).Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	outcome, err := h.service.ProcessEvent(r.Context(), event)
	if err != nil {
		// Неисправимые события подтверждать нельзя, но и повторять бессмысленно.
		if errors.Is(err, creditservice.ErrMissingReference) ||
			errors.Is(err, creditservice.ErrUnknownPrice) ||
			errors.Is(err, creditservice.ErrNoLineItems) {
			log.Error("unprocessable webhook event", sl.Err(err), slog.String("event_id", event.ID))
			metrics.WebhookEventsTotal.WithLabelValues(metrics.ResultRejected).Inc()
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		log.Error("failed to process webhook event", sl.Err(err), slog.String("event_id", event.ID))
		metrics.WebhookEventsTotal.WithLabelValues(metrics.ResultFailed).Inc()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch outcome {
	case creditservice.OutcomeGranted:
		metrics.WebhookEventsTotal.WithLabelValues(metrics.ResultGranted).Inc()
	case creditservice.OutcomeDuplicate:
		metrics.WebhookEventsTotal.WithLabelValues(metrics.ResultDuplicate).Inc()
	case creditservice.OutcomeIgnored:
		metrics.WebhookEventsTotal.WithLabelValues(metrics.ResultIgnored).Inc()
	}

	log.Info("webhook processed",
		slog.String("event_id", event.ID),
		slog.String("type", event.Type),
		slog.String("outcome", string(outcome)))
	render.JSON(w, r, map[string]bool{"received": true})
}
