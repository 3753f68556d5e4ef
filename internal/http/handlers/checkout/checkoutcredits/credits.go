// Package checkoutcredits открывает платёжную сессию покупки пакета кредитов.
// Обработчик только создаёт сессию у провайдера: баланс пользователя
// изменяет исключительно обработчик вебхука после подтверждения оплаты.
package checkoutcredits

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/andrmaer/lora-studio/internal/http/middlewarectx"
	"github.com/andrmaer/lora-studio/internal/http/response"
	"github.com/andrmaer/lora-studio/internal/lib/sl"
	checkoutservice "github.com/andrmaer/lora-studio/internal/services/checkout"
)

// Request — входные данные для создания сессии покупки кредитов
type Request struct {
	Product string `json:"product" validate:"required,oneof=lora image"`
}

// Service описывает интерфейс сервиса создания платёжных сессий.
type Service interface {
	CreateCreditsSession(ctx context.Context, userUID, product string) (*checkoutservice.Session, error)
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.checkout.credits"

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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	session, err := h.service.CreateCreditsSession(r.Context(), userUID, req.Product)
	if err != nil {
		if errors.Is(err, checkoutservice.ErrUnknownProduct) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown product"))
			return
		}
		log.Error("failed to create checkout session", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to create checkout session"))
		return
	}

	log.Info("checkout session created", slog.String("session_id", session.SessionID))
	render.JSON(w, r, response.StatusOKWithData(session))
}
