// Package generation реализует генерацию изображений со списанием кредита.
//
// Списание выполняется на сервере до запуска модели; неудачная генерация
// возвращает кредит. Клиентская сторона остатками не управляет.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/andrmaer/lora-studio/internal/cache"
	"github.com/andrmaer/lora-studio/internal/jobqueue"
	"github.com/andrmaer/lora-studio/internal/lib/sl"
	"github.com/andrmaer/lora-studio/internal/metrics"
	"github.com/andrmaer/lora-studio/internal/models"
)

const numInferenceSteps = 50

// ErrNoImage модель не вернула ни одного изображения.
var ErrNoImage = errors.New("no image generated")

// CreditRepository списание и возврат кредитов генерации.
type CreditRepository interface {
	SpendImageCredit(ctx context.Context, userUID string) (int, error)
	RefundImageCredit(ctx context.Context, userUID string) error
}

// QueueClient синхронный запуск генеративной модели.
type QueueClient interface {
	Run(ctx context.Context, model string, input jobqueue.GenerateInput) (*jobqueue.GenerateResult, error)
}

// BalanceCache инвалидация кэша баланса после списания.
type BalanceCache interface {
	Invalidate(key string) error
}

// Params параметры генерации изображения.
type Params struct {
	Prompt               string
	Loras                []jobqueue.Lora
	DisableSafetyChecker bool
}

// GenerationService генерация изображений со списанием кредита.
type GenerationService struct {
	repo  CreditRepository
	queue QueueClient
	cache BalanceCache
	log   *slog.Logger
}

// New создает новый GenerationService.
func New(log *slog.Logger, repo CreditRepository, queue QueueClient, balanceCache BalanceCache) *GenerationService {
	return &GenerationService{
		repo:  repo,
		queue: queue,
		cache: balanceCache,
		log:   log,
	}
}

// Generate списывает один кредит генерации и синхронно выполняет модель.
// Возвращает адрес сгенерированного изображения и остаток кредитов.
func (s *GenerationService) Generate(ctx context.Context, userUID string, params Params) (string, int, error) {
	const op = "generation.Generate"
	log := s.log.With(slog.String("op", op), slog.String("user_uid", userUID))

	remaining, err := s.repo.SpendImageCredit(ctx, userUID)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.Invalidate(cache.BalanceKey(userUID)); err != nil {
		log.Error("failed to invalidate balance cache", sl.Err(err))
	}

	result, err := s.queue.Run(ctx, jobqueue.ModelImageGeneration, jobqueue.GenerateInput{
		Prompt:              params.Prompt,
		Loras:               params.Loras,
		EnableSafetyChecker: !params.DisableSafetyChecker,
		NumInferenceSteps:   numInferenceSteps,
	})
	if err != nil {
		s.refund(ctx, userUID, log)
		return "", 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(result.Images) == 0 {
		s.refund(ctx, userUID, log)
		return "", 0, fmt.Errorf("%s: %w", op, ErrNoImage)
	}

	metrics.CreditSpendsTotal.WithLabelValues(models.ProductImageCredits).Inc()
	log.Info("image generated", slog.Int("remaining", remaining))
	return result.Images[0].URL, remaining, nil
}

func (s *GenerationService) refund(ctx context.Context, userUID string, log *slog.Logger) {
	if err := s.repo.RefundImageCredit(context.WithoutCancel(ctx), userUID); err != nil {
		log.Error("failed to refund image credit", sl.Err(err))
		return
	}
	if err := s.cache.Invalidate(cache.BalanceKey(userUID)); err != nil {
		log.Error("failed to invalidate balance cache", sl.Err(err))
	}
}
