// Package imagegenerate генерирует изображение со списанием кредита.
// При нехватке кредитов возвращается 402 Payment Required.
package imagegenerate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/andrmaer/lora-studio/internal/http/middlewarectx"
	"github.com/andrmaer/lora-studio/internal/http/response"
	"github.com/andrmaer/lora-studio/internal/jobqueue"
	"github.com/andrmaer/lora-studio/internal/lib/sl"
	generationservice "github.com/andrmaer/lora-studio/internal/services/generation"
	"github.com/andrmaer/lora-studio/internal/storage/repository"
)

// Request — входные данные для генерации изображения
type Request struct {
	Prompt               string `json:"prompt" validate:"required,min=3"`
	Loras                []Lora `json:"loras,omitempty" validate:"omitempty,dive"`
	DisableSafetyChecker bool   `json:"disable_safety_checker,omitempty"`
}

// Lora ссылка на обученный адаптер в теле запроса.
type Lora struct {
	Path  string  `json:"path" validate:"required,url"`
	Scale float64 `json:"scale,omitempty"`
}

// Service описывает интерфейс сервиса генерации.
type Service interface {
	Generate(ctx context.Context, userUID string, params generationservice.Params) (string, int, error)
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
	const op = "handlers.image.generate"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	// Синхронная генерация занимает минуты, дольше WriteTimeout сервера,
	// поэтому дедлайн записи для этого соединения снимается.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		log.Warn("failed to clear write deadline", sl.Err(err))
	}

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

	params := generationservice.Params{
		Prompt:               req.Prompt,
		DisableSafetyChecker: req.DisableSafetyChecker,
	}
	for _, l := range req.Loras {
		scale := l.Scale
		if scale == 0 {
			scale = 1
		}
		params.Loras = append(params.Loras, jobqueue.Lora{Path: l.Path, Scale: scale})
	}

	imageURL, remaining, err := h.service.Generate(r.Context(), userUID, params)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			log.Info("insufficient image credits", slog.String("user_uid", userUID))
			render.Status(r, http.StatusPaymentRequired)
			render.JSON(w, r, response.Error("insufficient image credits"))
			return
		}
		log.Error("failed to generate image", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to generate image"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"image_url":         imageURL,
		"remaining_credits": remaining,
	}))
}
