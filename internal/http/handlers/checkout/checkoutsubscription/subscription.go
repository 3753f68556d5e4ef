// Package checkoutsubscription открывает платёжную сессию оформления подписки.
package checkoutsubscription

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

// Request — входные данные для создания сессии подписки
type Request struct {
	Plan string `json:"plan" validate:"required,oneof=lora image"`
}

// Service описывает интерфейс сервиса создания платёжных сессий.
type Service interface {
	CreateSubscriptionSession(ctx context.Context, userUID, plan string) (*checkoutservice.Session, error)
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
	const op = "handlers.checkout.subscription"

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

	session, err := h.service.CreateSubscriptionSession(r.Context(), userUID, req.Plan)
	if err != nil {
		if errors.Is(err, checkoutservice.ErrUnknownProduct) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown plan"))
			return
		}
		log.Error("failed to create subscription session", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to create subscription session"))
		return
	}

	log.Info("subscription session created", slog.String("session_id", session.SessionID))
	render.JSON(w, r, response.StatusOKWithData(session))
}
