// Package training реализует постановку задач обучения LoRA и проксирование
// их статуса и результата.
//
// Кредит списывается на сервере атомарно с постановкой задачи: сначала
// условное списание в хранилище, затем отправка в очередь; неудачная
// отправка возвращает кредит. Клиент никогда не списывает кредиты сам.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/andrmaer/lora-studio/internal/cache"
	"github.com/andrmaer/lora-studio/internal/jobqueue"
	"github.com/andrmaer/lora-studio/internal/lib/poll"
	"github.com/andrmaer/lora-studio/internal/lib/sl"
	"github.com/andrmaer/lora-studio/internal/metrics"
	"github.com/andrmaer/lora-studio/internal/models"
)

// Параметры ожидания завершения обучения: опрос каждые 30 секунд,
// не более 60 попыток.
const (
	AwaitInterval    = 30 * time.Second
	AwaitMaxAttempts = 60
)

// CreditRepository списание и возврат кредитов обучения.
type CreditRepository interface {
	SpendLoraCredit(ctx context.Context, userUID string) (int, error)
	RefundLoraCredit(ctx context.Context, userUID string) error
}

// QueueClient очередь генеративных задач.
type QueueClient interface {
	Submit(ctx context.Context, model string, input any) (string, error)
	Status(ctx context.Context, model, requestID string, withLogs bool) (*jobqueue.JobStatus, error)
	Result(ctx context.Context, model, requestID string) (jobqueue.JobResult, error)
}

// BalanceCache инвалидация кэша баланса после списания.
type BalanceCache interface {
	Invalidate(key string) error
}

// TrainingService постановка задач обучения и проксирование очереди.
type TrainingService struct {
	repo   CreditRepository
	queue  QueueClient
	cache  BalanceCache
	poller *poll.Poller
	log    *slog.Logger
}

// New создает новый TrainingService.
func New(log *slog.Logger, repo CreditRepository, queue QueueClient, balanceCache BalanceCache) *TrainingService {
	return &TrainingService{
		repo:   repo,
		queue:  queue,
		cache:  balanceCache,
		poller: poll.New(AwaitInterval, AwaitMaxAttempts),
		log:    log,
	}
}

// Submit списывает один кредит обучения и ставит задачу в очередь.
// Возвращает идентификатор запроса и остаток кредитов.
// ErrInsufficientCredits хранилища проходит наружу без изменений.
func (s *TrainingService) Submit(ctx context.Context, userUID string, input jobqueue.TrainingInput) (string, int, error) {
	const op = "training.Submit"
	log := s.log.With(slog.String("op", op), slog.String("user_uid", userUID))

	remaining, err := s.repo.SpendLoraCredit(ctx, userUID)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.Invalidate(cache.BalanceKey(userUID)); err != nil {
		log.Error("failed to invalidate balance cache", sl.Err(err))
	}

	requestID, err := s.queue.Submit(ctx, jobqueue.ModelLoraTraining, input)
	if err != nil {
		// Постановка не удалась: возвращаем списанный кредит.
		if refundErr := s.repo.RefundLoraCredit(context.WithoutCancel(ctx), userUID); refundErr != nil {
			log.Error("failed to refund lora credit", sl.Err(refundErr))
		} else if invErr := s.cache.Invalidate(cache.BalanceKey(userUID)); invErr != nil {
			log.Error("failed to invalidate balance cache", sl.Err(invErr))
		}
		return "", 0, fmt.Errorf("%s: %w", op, err)
	}

	metrics.CreditSpendsTotal.WithLabelValues(models.ProductLoraCredits).Inc()
	log.Info("training job submitted", slog.String("request_id", requestID), slog.Int("remaining", remaining))
	return requestID, remaining, nil
}

// Status возвращает статус задачи обучения вместе с журналом выполнения.
func (s *TrainingService) Status(ctx context.Context, requestID string) (*jobqueue.JobStatus, error) {
	return s.queue.Status(ctx, jobqueue.ModelLoraTraining, requestID, true)
}

// Result возвращает результат завершённой задачи обучения в исходном виде.
func (s *TrainingService) Result(ctx context.Context, requestID string) (jobqueue.JobResult, error) {
	return s.queue.Result(ctx, jobqueue.ModelLoraTraining, requestID)
}

// Await ожидает завершения задачи ограниченным циклом опроса.
// Возвращает терминальное состояние цикла; при completed — также результат.
func (s *TrainingService) Await(ctx context.Context, requestID string) (poll.State, jobqueue.JobResult, error) {
	const op = "training.Await"

	state, err := s.poller.Run(ctx, func(ctx context.Context) (poll.State, error) {
		status, err := s.queue.Status(ctx, jobqueue.ModelLoraTraining, requestID, false)
		if err != nil {
			return poll.StateFailed, err
		}
		if status.Status == jobqueue.StatusCompleted {
			return poll.StateCompleted, nil
		}
		return poll.StatePending, nil
	})
	if err != nil {
		return state, nil, fmt.Errorf("%s: %w", op, err)
	}
	if state != poll.StateCompleted {
		return state, nil, nil
	}

	result, err := s.queue.Result(ctx, jobqueue.ModelLoraTraining, requestID)
	if err != nil {
		return poll.StateFailed, nil, fmt.Errorf("%s: %w", op, err)
	}
	return poll.StateCompleted, result, nil
}
