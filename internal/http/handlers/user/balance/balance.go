// Package balance возвращает остатки кредитов и флаги подписок пользователя.
package balance

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/andrmaer/lora-studio/internal/http/middlewarectx"
	"github.com/andrmaer/lora-studio/internal/http/response"
	"github.com/andrmaer/lora-studio/internal/lib/sl"
	creditservice "github.com/andrmaer/lora-studio/internal/services/credits"
	"github.com/andrmaer/lora-studio/internal/storage/repository"
)

// Service описывает интерфейс чтения баланса.
type Service interface {
	Balance(ctx context.Context, userUID string) (*creditservice.Balance, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.balance"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := middlewarectx.UserUIDFromContext(r.Context())
	if !ok {
		log.Error("missing user uid in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	balance, err := h.service.Balance(r.Context(), userUID)
	if err != nil {
		// Пользователь ещё не создан ни регистрацией, ни вебхуком:
		// отвечаем нулевым балансом, а не ошибкой.
		if errors.Is(err, repository.ErrUserNotFound) {
			render.JSON(w, r, response.StatusOKWithData(&creditservice.Balance{}))
			return
		}
		log.Error("failed to get balance", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to get balance"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(balance))
}
