// Package trainingsubmit ставит задачу обучения LoRA в очередь.
// Кредит обучения списывается на сервере до постановки задачи;
// при нехватке кредитов возвращается 402 Payment Required.
package trainingsubmit

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
	"github.com/andrmaer/lora-studio/internal/jobqueue"
	"github.com/andrmaer/lora-studio/internal/lib/sl"
	"github.com/andrmaer/lora-studio/internal/storage/repository"
)

// Request — входные данные для запуска обучения
type Request struct {
	ImagesDataURL string `json:"images_data_url" validate:"required,url"`
	TriggerWord   string `json:"trigger_word" validate:"required,min=2,max=30"`
}

// Service описывает интерфейс сервиса обучения.
type Service interface {
	Submit(ctx context.Context, userUID string, input jobqueue.TrainingInput) (string, int, error)
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
	const op = "handlers.training.submit"

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

	requestID, remaining, err := h.service.Submit(r.Context(), userUID, jobqueue.TrainingInput{
		ImagesDataURL: req.ImagesDataURL,
		TriggerWord:   req.TriggerWord,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			log.Info("insufficient lora credits", slog.String("user_uid", userUID))
			render.Status(r, http.StatusPaymentRequired)
			render.JSON(w, r, response.Error("insufficient lora credits"))
			return
		}
		log.Error("failed to submit training job", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to submit training job"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"request_id":        requestID,
		"remaining_credits": remaining,
	}))
}
