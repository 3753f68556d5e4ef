// Package credits реализует бизнес-логику кредитного леджера.
//
// CreditService — единственный источник начислений: события вебхука
// проходят через ProcessEvent, который атрибутирует оплату пользователю
// по client_reference_id, определяет продукт по идентификатору цены и
// применяет начисление одной транзакцией хранилища. Повторная доставка
// события распознаётся по его идентификатору и подтверждается без
// повторного начисления.
package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/andrmaer/lora-studio/internal/cache"
	"github.com/andrmaer/lora-studio/internal/lib/sl"
	"github.com/andrmaer/lora-studio/internal/metrics"
	"github.com/andrmaer/lora-studio/internal/models"
	"github.com/andrmaer/lora-studio/internal/paymentprovider"
	"github.com/andrmaer/lora-studio/internal/storage/repository"
)

// Фиксированные объёмы начислений за одну покупку.
const (
	LoraCreditsPerPurchase  = 3
	ImageCreditsPerPurchase = 100
)

const balanceCacheTTL = time.Minute

// Ошибки обработки события, различимые обработчиком вебхука.
var (
	// ErrMissingReference в сессии нет client_reference_id; событие неисправимо
	ErrMissingReference = errors.New("checkout session has no client_reference_id")
	// ErrUnknownPrice идентификатор цены не сопоставлен ни с одним продуктом
	ErrUnknownPrice = errors.New("unknown price id")
	// ErrNoLineItems в сессии нет купленных позиций
	ErrNoLineItems = errors.New("checkout session has no line items")
)

// Outcome итог обработки события вебхука.
type Outcome string

const (
	// OutcomeGranted начисление применено
	OutcomeGranted Outcome = "granted"
	// OutcomeDuplicate событие уже было обработано ранее
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored событие нерелевантного типа
	OutcomeIgnored Outcome = "ignored"
)

// LedgerRepository описывает контракт хранилища для леджера.
type LedgerRepository interface {
	ApplyGrant(ctx context.Context, eventID, eventType, userUID string,
		email *string, priceID string, grant models.Grant) error
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	ListCreditGrants(ctx context.Context, userUID string) ([]*models.CreditGrant, error)
}

// ProviderClient описывает чтение платёжной сессии у провайдера.
type ProviderClient interface {
	GetCheckoutSession(ctx context.Context, sessionID string, expandLineItems bool) (*paymentprovider.CheckoutSession, error)
}

// BalanceCache кэш балансов пользователей.
type BalanceCache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Notifier публикует уведомление о покупке во внешнюю очередь.
type Notifier interface {
	PublishPurchase(msg models.PurchaseNotification) error
}

// PriceTable сопоставление идентификаторов цен провайдера с продуктами.
type PriceTable struct {
	LoraCredits  string
	ImageCredits string
	ImageSub     string
	LoraSub      string
}

// Balance текущие остатки и флаги подписок пользователя.
type Balance struct {
	LoraCredits              int  `json:"lora_credits"`
	ImageCredits             int  `json:"image_credits"`
	IsSubscribed             bool `json:"is_subscribed"`
	IsLoraTrainingSubscribed bool `json:"is_lora_training_subscribed"`
}

// CreditService бизнес-логика начислений и чтения балансов.
type CreditService struct {
	repo     LedgerRepository
	provider ProviderClient
	cache    BalanceCache
	notifier Notifier
	prices   PriceTable
	log      *slog.Logger
}

// New создает новый CreditService.
func New(log *slog.Logger, repo LedgerRepository, provider ProviderClient,
	balanceCache BalanceCache, notifier Notifier, prices PriceTable) *CreditService {
	return &CreditService{
		repo:     repo,
		provider: provider,
		cache:    balanceCache,
		notifier: notifier,
		prices:   prices,
		log:      log,
	}
}

// ProcessEvent применяет событие вебхука к леджеру.
//
// Нерелевантные типы событий подтверждаются без изменений. Ошибки
// ErrMissingReference, ErrUnknownPrice и ErrNoLineItems неисправимы:
// повторная доставка того же события даст тот же результат, поэтому
// обработчик отвечает на них 400. Остальные ошибки считаются
// временными и должны приводить к повторной доставке.
func (s *CreditService) ProcessEvent(ctx context.Context, event *paymentprovider.Event) (Outcome, error) {
	const op = "credits.ProcessEvent"
	log := s.log.With(slog.String("op", op), slog.String("event_id", event.ID))

	if event.Type != paymentprovider.EventCheckoutCompleted {
		log.Info("ignored webhook event", slog.String("type", event.Type))
		return OutcomeIgnored, nil
	}

	session, err := event.CheckoutSession()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if session.ClientReferenceID == "" {
		return "", fmt.Errorf("%s: %w", op, ErrMissingReference)
	}

	priceID, err := s.resolvePriceID(ctx, session)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	grant, err := s.grantForPrice(priceID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var email *string
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		email = &session.CustomerDetails.Email
	}

	err = s.repo.ApplyGrant(ctx, event.ID, event.Type, session.ClientReferenceID, email, priceID, grant)
	if errors.Is(err, repository.ErrEventAlreadyProcessed) {
		log.Info("duplicate webhook event, grant skipped")
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	metrics.CreditGrantsTotal.WithLabelValues(grant.Product).Inc()
	s.afterGrant(session.ClientReferenceID, email, grant, log)

	log.Info("credits granted",
		slog.String("user_uid", session.ClientReferenceID),
		slog.String("product", grant.Product),
		slog.Int("amount", grant.Amount))
	return OutcomeGranted, nil
}

// afterGrant инвалидирует кэш баланса и публикует уведомление.
// Ошибки здесь только логируются: начисление уже зафиксировано,
// и ответ провайдеру от них зависеть не должен.
func (s *CreditService) afterGrant(userUID string, email *string, grant models.Grant, log *slog.Logger) {
	if err := s.cache.Invalidate(cache.BalanceKey(userUID)); err != nil {
		log.Error("failed to invalidate balance cache", sl.Err(err))
	}

	if s.notifier == nil {
		return
	}
	msg := models.PurchaseNotification{
		UserUID: userUID,
		Product: grant.Product,
		Amount:  grant.Amount,
	}
	if email != nil {
		msg.Email = *email
	}
	if err := s.notifier.PublishPurchase(msg); err != nil {
		log.Error("failed to publish purchase notification", sl.Err(err))
	}
}

// resolvePriceID возвращает идентификатор цены купленной позиции.
// Событие не содержит позиций, поэтому сессия перечитывается у провайдера
// с развёрнутыми line_items.
func (s *CreditService) resolvePriceID(ctx context.Context, session *paymentprovider.CheckoutSession) (string, error) {
	if session.LineItems != nil && len(session.LineItems.Data) > 0 && session.LineItems.Data[0].Price != nil {
		return session.LineItems.Data[0].Price.ID, nil
	}

	full, err := s.provider.GetCheckoutSession(ctx, session.ID, true)
	if err != nil {
		return "", err
	}
	if full.LineItems == nil || len(full.LineItems.Data) == 0 || full.LineItems.Data[0].Price == nil {
		return "", ErrNoLineItems
	}
	return full.LineItems.Data[0].Price.ID, nil
}

func (s *CreditService) grantForPrice(priceID string) (models.Grant, error) {
	switch priceID {
	case s.prices.LoraCredits:
		return models.Grant{Product: models.ProductLoraCredits, Amount: LoraCreditsPerPurchase}, nil
	case s.prices.ImageCredits:
		return models.Grant{Product: models.ProductImageCredits, Amount: ImageCreditsPerPurchase}, nil
	case s.prices.ImageSub:
		return models.Grant{Product: models.ProductImageSub}, nil
	case s.prices.LoraSub:
		return models.Grant{Product: models.ProductLoraSub}, nil
	default:
		return models.Grant{}, fmt.Errorf("%w: %s", ErrUnknownPrice, priceID)
	}
}

// Balance возвращает остатки пользователя, используя кэш с коротким TTL.
func (s *CreditService) Balance(ctx context.Context, userUID string) (*Balance, error) {
	const op = "credits.Balance"

	var cached Balance
	found, err := s.cache.Get(cache.BalanceKey(userUID), &cached)
	if err != nil {
		s.log.Error("balance cache read failed", sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	balance := &Balance{
		LoraCredits:              user.LoraCredits,
		ImageCredits:             user.ImageCredits,
		IsSubscribed:             user.IsSubscribed,
		IsLoraTrainingSubscribed: user.IsLoraTrainingSubscribed,
	}
	if err := s.cache.Set(cache.BalanceKey(userUID), balance, balanceCacheTTL); err != nil {
		s.log.Error("balance cache write failed", sl.Err(err))
	}
	return balance, nil
}

// History возвращает журнал начислений пользователя.
func (s *CreditService) History(ctx context.Context, userUID string) ([]*models.CreditGrant, error) {
	return s.repo.ListCreditGrants(ctx, userUID)
}
