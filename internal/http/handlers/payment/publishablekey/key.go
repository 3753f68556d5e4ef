// Package publishablekey отдает публичный ключ платёжного провайдера.
// Ключ нужен интерфейсу для инициализации Stripe.js; секретный ключ
// и секрет вебхука сервер не раскрывает.
package publishablekey

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/andrmaer/lora-studio/internal/http/response"
)

type Handler struct {
	log *slog.Logger
	key string
}

func New(log *slog.Logger, key string) *Handler {
	return &Handler{
		log: log,
		key: key,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.publishablekey"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if h.key == "" {
		log.Error("publishable key is not configured")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("publishable key is not configured"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]string{
		"publishable_key": h.key,
	}))
}
