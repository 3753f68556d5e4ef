// Package checkout реализует создание платёжных сессий и проверку их статуса.
//
// Сервис никогда не изменяет леджер: создание сессии лишь делегирует
// провайдеру, а проверка статуса — информационный сигнал для интерфейса.
// Начисление выполняет только обработчик вебхука.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/andrmaer/lora-studio/internal/cache"
	"github.com/andrmaer/lora-studio/internal/config"
	"github.com/andrmaer/lora-studio/internal/lib/sl"
	"github.com/andrmaer/lora-studio/internal/paymentprovider"
)

// Продукты, доступные к покупке.
const (
	ProductLora  = "lora"
	ProductImage = "image"
)

const sessionCacheTTL = 15 * time.Minute

// ErrUnknownProduct запрошен продукт, не сопоставленный ни с одной ценой.
var ErrUnknownProduct = errors.New("unknown product")

// ProviderClient описывает операции провайдера, нужные сервису.
type ProviderClient interface {
	CreateCheckoutSession(ctx context.Context, params paymentprovider.CreateCheckoutSessionParams) (*paymentprovider.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string, expandLineItems bool) (*paymentprovider.CheckoutSession, error)
}

// SessionCache кэш результатов проверки оплаченных сессий.
type SessionCache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
}

// Session идентификатор и адрес созданной платёжной сессии.
type Session struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CheckoutService создание и проверка платёжных сессий.
type CheckoutService struct {
	provider ProviderClient
	cache    SessionCache
	stripe   config.Stripe
	baseURL  string
	log      *slog.Logger
}

// New создает новый CheckoutService.
func New(log *slog.Logger, provider ProviderClient, sessionCache SessionCache,
	stripe config.Stripe, baseURL string) *CheckoutService {
	return &CheckoutService{
		provider: provider,
		cache:    sessionCache,
		stripe:   stripe,
		baseURL:  baseURL,
		log:      log,
	}
}

// CreateCreditsSession открывает сессию покупки пакета кредитов.
// client_reference_id сессии — UID покупателя: по нему вебхук
// атрибутирует оплату. Локальный леджер здесь не затрагивается.
func (s *CheckoutService) CreateCreditsSession(ctx context.Context, userUID, product string) (*Session, error) {
	const op = "checkout.CreateCreditsSession"

	var priceID, successPath string
	switch product {
	case ProductLora:
		priceID = s.stripe.PriceLoraCredits
		successPath = "/lora-training"
	case ProductImage:
		priceID = s.stripe.PriceImageCredits
		successPath = "/"
	default:
		return nil, fmt.Errorf("%s: %w: %s", op, ErrUnknownProduct, product)
	}

	return s.createSession(ctx, op, paymentprovider.CreateCheckoutSessionParams{
		Mode:              paymentprovider.ModePayment,
		PriceID:           priceID,
		Quantity:          1,
		SuccessURL:        s.baseURL + successPath + "?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         s.baseURL + successPath,
		ClientReferenceID: userUID,
	})
}

// CreateSubscriptionSession открывает сессию оформления подписки.
func (s *CheckoutService) CreateSubscriptionSession(ctx context.Context, userUID, plan string) (*Session, error) {
	const op = "checkout.CreateSubscriptionSession"

	var priceID string
	switch plan {
	case ProductImage:
		priceID = s.stripe.PriceImageSub
	case ProductLora:
		priceID = s.stripe.PriceLoraSub
	default:
		return nil, fmt.Errorf("%s: %w: %s", op, ErrUnknownProduct, plan)
	}

	return s.createSession(ctx, op, paymentprovider.CreateCheckoutSessionParams{
		Mode:              paymentprovider.ModeSubscription,
		PriceID:           priceID,
		Quantity:          1,
		SuccessURL:        s.baseURL + "/subscription-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         s.baseURL + "/subscription",
		ClientReferenceID: userUID,
	})
}

func (s *CheckoutService) createSession(ctx context.Context, op string,
	params paymentprovider.CreateCheckoutSessionParams) (*Session, error) {
	session, err := s.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Session{SessionID: session.ID, URL: session.URL}, nil
}

// VerifySession проверяет, оплачена ли сессия и принадлежит ли она пользователю.
// Результат информационный: леджер при проверке не изменяется, начисление
// приходит только через вебхук. Оплаченные сессии кэшируются, чтобы
// ограничить обращения к провайдеру при опросе со стороны интерфейса.
func (s *CheckoutService) VerifySession(ctx context.Context, sessionID, userUID string) (bool, error) {
	const op = "checkout.VerifySession"

	var cachedUID string
	found, err := s.cache.Get(cache.SessionKey(sessionID), &cachedUID)
	if err != nil {
		s.log.Error("session cache read failed", sl.Err(err))
	}
	if found {
		return cachedUID == userUID, nil
	}

	session, err := s.provider.GetCheckoutSession(ctx, sessionID, false)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	paid := session.PaymentStatus == paymentprovider.PaymentStatusPaid &&
		session.ClientReferenceID == userUID
	if session.PaymentStatus == paymentprovider.PaymentStatusPaid {
		if err := s.cache.Set(cache.SessionKey(sessionID), session.ClientReferenceID, sessionCacheTTL); err != nil {
			s.log.Error("session cache write failed", sl.Err(err))
		}
	}
	return paid, nil
}
