// Package trainingresult проксирует результат завершённой задачи обучения.
package trainingresult

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/andrmaer/lora-studio/internal/http/response"
	"github.com/andrmaer/lora-studio/internal/jobqueue"
	"github.com/andrmaer/lora-studio/internal/lib/sl"
)

// Service описывает интерфейс сервиса обучения.
type Service interface {
	Result(ctx context.Context, requestID string) (jobqueue.JobResult, error)
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
	const op = "handlers.training.result"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	requestID := chi.URLParam(r, "request_id")
	if requestID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("request_id is required"))
		return
	}

	result, err := h.service.Result(r.Context(), requestID)
	if err != nil {
		log.Error("failed to get training result", sl.Err(err))
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, response.Error("failed to get training result"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(result))
}
