// Package trainingstatus проксирует статус задачи обучения из очереди.
package trainingstatus

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
	Status(ctx context.Context, requestID string) (*jobqueue.JobStatus, error)
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
	const op = "handlers.training.status"

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

	status, err := h.service.Status(r.Context(), requestID)
	if err != nil {
		log.Error("failed to get training status", sl.Err(err))
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, response.Error("failed to get training status"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(status))
}
