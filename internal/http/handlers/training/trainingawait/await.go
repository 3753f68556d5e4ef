// Package trainingawait ожидает завершения задачи обучения ограниченным
// циклом опроса и возвращает результат, когда задача выполнена.
package trainingawait

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/andrmaer/lora-studio/internal/http/response"
	"github.com/andrmaer/lora-studio/internal/jobqueue"
	"github.com/andrmaer/lora-studio/internal/lib/poll"
	"github.com/andrmaer/lora-studio/internal/lib/sl"
)

// Service описывает интерфейс сервиса обучения.
type Service interface {
	Await(ctx context.Context, requestID string) (poll.State, jobqueue.JobResult, error)
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
	const op = "handlers.training.await"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	// Цикл опроса длится намного дольше WriteTimeout сервера, поэтому
	// дедлайн записи для этого соединения снимается.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		log.Warn("failed to clear write deadline", sl.Err(err))
	}

	requestID := chi.URLParam(r, "request_id")
	if requestID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("request_id is required"))
		return
	}

	state, result, err := h.service.Await(r.Context(), requestID)
	if err != nil {
		log.Error("failed to await training job", sl.Err(err))
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, response.Error("failed to await training job"))
		return
	}

	switch state {
	case poll.StateTimedOut:
		render.Status(r, http.StatusGatewayTimeout)
		render.JSON(w, r, response.Error("training job did not finish in time"))
	case poll.StateCompleted:
		render.JSON(w, r, response.StatusOKWithData(map[string]any{
			"state":  string(state),
			"result": result,
		}))
	default:
		render.JSON(w, r, response.StatusOKWithData(map[string]any{
			"state": string(state),
		}))
	}
}
