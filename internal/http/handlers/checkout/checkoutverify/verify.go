// Package checkoutverify проверяет статус оплаты платёжной сессии.
//
// Ответ информационный: интерфейс опрашивает эту конечную точку после
// возврата с платёжной страницы, а начисление приходит только через
// вебхук. Отрицательный ответ означает лишь, что оплата ещё не
// подтверждена или сессия чужая.
package checkoutverify

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/andrmaer/lora-studio/internal/http/middlewarectx"
	"github.com/andrmaer/lora-studio/internal/http/response"
	"github.com/andrmaer/lora-studio/internal/lib/sl"
)

// Service описывает интерфейс проверки платёжной сессии.
type Service interface {
	VerifySession(ctx context.Context, sessionID, userUID string) (bool, error)
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
	const op = "handlers.checkout.verify"

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

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		log.Error("missing session_id query parameter")
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("session_id is required"))
		return
	}

	paid, err := h.service.VerifySession(r.Context(), sessionID, userUID)
	if err != nil {
		log.Error("failed to verify session", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to verify session"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"session_id": sessionID,
		"success":    paid,
	}))
}
