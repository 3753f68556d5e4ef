package credits

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/andrmaer/lora-studio/internal/models"
	"github.com/andrmaer/lora-studio/internal/paymentprovider"
	"github.com/andrmaer/lora-studio/internal/storage/repository"
)

type LedgerRepositoryMock struct {
	mock.Mock
}

func (m *LedgerRepositoryMock) ApplyGrant(ctx context.Context, eventID, eventType, userUID string,
	email *string, priceID string, grant models.Grant) error {
	args := m.Called(ctx, eventID, eventType, userUID, email, priceID, grant)
	return args.Error(0)
}

func (m *LedgerRepositoryMock) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *LedgerRepositoryMock) ListCreditGrants(ctx context.Context, userUID string) ([]*models.CreditGrant, error) {
	args := m.Called(ctx, userUID)
	items, _ := args.Get(0).([]*models.CreditGrant)
	return items, args.Error(1)
}

type ProviderClientMock struct {
	mock.Mock
}

func (m *ProviderClientMock) GetCheckoutSession(ctx context.Context, sessionID string, expandLineItems bool) (*paymentprovider.CheckoutSession, error) {
	args := m.Called(ctx, sessionID, expandLineItems)
	session, _ := args.Get(0).(*paymentprovider.CheckoutSession)
	return session, args.Error(1)
}

type BalanceCacheMock struct {
	mock.Mock
}

func (m *BalanceCacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}

func (m *BalanceCacheMock) Set(key string, value any, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *BalanceCacheMock) Invalidate(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) PublishPurchase(msg models.PurchaseNotification) error {
	args := m.Called(msg)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var testPrices = PriceTable{
	LoraCredits:  "price_lora",
	ImageCredits: "price_image",
	ImageSub:     "price_image_sub",
	LoraSub:      "price_lora_sub",
}

func newEvent(t *testing.T, id string, session paymentprovider.CheckoutSession) *paymentprovider.Event {
	t.Helper()
	raw, err := json.Marshal(session)
	require.NoError(t, err)

	event := &paymentprovider.Event{ID: id, Type: paymentprovider.EventCheckoutCompleted}
	event.Data.Object = raw
	return event
}

func newService(repo *LedgerRepositoryMock, provider *ProviderClientMock,
	cache *BalanceCacheMock, notifier *NotifierMock) *CreditService {
	return New(newNoopLogger(), repo, provider, cache, notifier, testPrices)
}

func TestProcessEvent_IgnoresIrrelevantType(t *testing.T) {
	repo := new(LedgerRepositoryMock)
	provider := new(ProviderClientMock)
	cacheMock := new(BalanceCacheMock)
	notifier := new(NotifierMock)
	service := newService(repo, provider, cacheMock, notifier)

	event := &paymentprovider.Event{ID: "evt_1", Type: "invoice.paid"}

	outcome, err := service.ProcessEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	repo.AssertNotCalled(t, "ApplyGrant", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "PublishPurchase", mock.Anything)
}

func TestProcessEvent_MissingReference(t *testing.T) {
	repo := new(LedgerRepositoryMock)
	provider := new(ProviderClientMock)
	cacheMock := new(BalanceCacheMock)
	notifier := new(NotifierMock)
	service := newService(repo, provider, cacheMock, notifier)

	event := newEvent(t, "evt_1", paymentprovider.CheckoutSession{ID: "cs_1"})

	_, err := service.ProcessEvent(context.Background(), event)
	assert.ErrorIs(t, err, ErrMissingReference)
	repo.AssertNotCalled(t, "ApplyGrant", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessEvent_GrantsByPrice(t *testing.T) {
	email := "buyer@example.com"

	tests := []struct {
		name      string
		priceID   string
		wantGrant models.Grant
	}{
		{
			name:      "lora credits purchase",
			priceID:   "price_lora",
			wantGrant: models.Grant{Product: models.ProductLoraCredits, Amount: LoraCreditsPerPurchase},
		},
		{
			name:      "image credits purchase",
			priceID:   "price_image",
			wantGrant: models.Grant{Product: models.ProductImageCredits, Amount: ImageCreditsPerPurchase},
		},
		{
			name:      "image subscription",
			priceID:   "price_image_sub",
			wantGrant: models.Grant{Product: models.ProductImageSub},
		},
		{
			name:      "lora subscription",
			priceID:   "price_lora_sub",
			wantGrant: models.Grant{Product: models.ProductLoraSub},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(LedgerRepositoryMock)
			provider := new(ProviderClientMock)
			cacheMock := new(BalanceCacheMock)
			notifier := new(NotifierMock)
			service := newService(repo, provider, cacheMock, notifier)

			event := newEvent(t, "evt_1", paymentprovider.CheckoutSession{
				ID:                "cs_1",
				ClientReferenceID: "uid-1",
				PaymentStatus:     paymentprovider.PaymentStatusPaid,
				CustomerDetails:   &paymentprovider.CustomerDetails{Email: email},
			})

			// Событие не содержит позиций, сервис перечитывает сессию с expand.
			provider.On("GetCheckoutSession", mock.Anything, "cs_1", true).
				Return(&paymentprovider.CheckoutSession{
					ID: "cs_1",
					LineItems: &paymentprovider.LineItemList{
						Data: []paymentprovider.LineItem{{Price: &paymentprovider.Price{ID: tt.priceID}, Quantity: 1}},
					},
				}, nil).Once()

			repo.On("ApplyGrant", mock.Anything, "evt_1", paymentprovider.EventCheckoutCompleted,
				"uid-1", &email, tt.priceID, tt.wantGrant).Return(nil).Once()
			cacheMock.On("Invalidate", "balance:uid-1").Return(nil).Once()
			notifier.On("PublishPurchase", models.PurchaseNotification{
				UserUID: "uid-1",
				Email:   email,
				Product: tt.wantGrant.Product,
				Amount:  tt.wantGrant.Amount,
			}).Return(nil).Once()

			outcome, err := service.ProcessEvent(context.Background(), event)
			require.NoError(t, err)
			assert.Equal(t, OutcomeGranted, outcome)

			repo.AssertExpectations(t)
			provider.AssertExpectations(t)
			cacheMock.AssertExpectations(t)
			notifier.AssertExpectations(t)
		})
	}
}

func TestProcessEvent_UnknownPrice(t *testing.T) {
	repo := new(LedgerRepositoryMock)
	provider := new(ProviderClientMock)
	cacheMock := new(BalanceCacheMock)
	notifier := new(NotifierMock)
	service := newService(repo, provider, cacheMock, notifier)

	event := newEvent(t, "evt_1", paymentprovider.CheckoutSession{
		ID:                "cs_1",
		ClientReferenceID: "uid-1",
		LineItems: &paymentprovider.LineItemList{
			Data: []paymentprovider.LineItem{{Price: &paymentprovider.Price{ID: "price_unknown"}}},
		},
	})

	_, err := service.ProcessEvent(context.Background(), event)
	assert.ErrorIs(t, err, ErrUnknownPrice)
	repo.AssertNotCalled(t, "ApplyGrant", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessEvent_NoLineItems(t *testing.T) {
	repo := new(LedgerRepositoryMock)
	provider := new(ProviderClientMock)
	cacheMock := new(BalanceCacheMock)
	notifier := new(NotifierMock)
	service := newService(repo, provider, cacheMock, notifier)

	event := newEvent(t, "evt_1", paymentprovider.CheckoutSession{
		ID:                "cs_1",
		ClientReferenceID: "uid-1",
	})

	provider.On("GetCheckoutSession", mock.Anything, "cs_1", true).
		Return(&paymentprovider.CheckoutSession{ID: "cs_1"}, nil).Once()

	_, err := service.ProcessEvent(context.Background(), event)
	assert.ErrorIs(t, err, ErrNoLineItems)
}

func TestProcessEvent_DuplicateEvent(t *testing.T) {
	repo := new(LedgerRepositoryMock)
	provider := new(ProviderClientMock)
	cacheMock := new(BalanceCacheMock)
	notifier := new(NotifierMock)
	service := newService(repo, provider, cacheMock, notifier)

	event := newEvent(t, "evt_1", paymentprovider.CheckoutSession{
		ID:                "cs_1",
		ClientReferenceID: "uid-1",
		LineItems: &paymentprovider.LineItemList{
			Data: []paymentprovider.LineItem{{Price: &paymentprovider.Price{ID: "price_lora"}}},
		},
	})

	repo.On("ApplyGrant", mock.Anything, "evt_1", paymentprovider.EventCheckoutCompleted,
		"uid-1", (*string)(nil), "price_lora", mock.Anything).
		Return(repository.ErrEventAlreadyProcessed).Once()

	outcome, err := service.ProcessEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	// Повтор не меняет леджер и не порождает повторного уведомления.
	notifier.AssertNotCalled(t, "PublishPurchase", mock.Anything)
	cacheMock.AssertNotCalled(t, "Invalidate", mock.Anything)
}

func TestProcessEvent_TransientStorageError(t *testing.T) {
	repo := new(LedgerRepositoryMock)
	provider := new(ProviderClientMock)
	cacheMock := new(BalanceCacheMock)
	notifier := new(NotifierMock)
	service := newService(repo, provider, cacheMock, notifier)

	event := newEvent(t, "evt_1", paymentprovider.CheckoutSession{
		ID:                "cs_1",
		ClientReferenceID: "uid-1",
		LineItems: &paymentprovider.LineItemList{
			Data: []paymentprovider.LineItem{{Price: &paymentprovider.Price{ID: "price_lora"}}},
		},
	})

	wantErr := errors.New("connection reset")
	repo.On("ApplyGrant", mock.Anything, "evt_1", paymentprovider.EventCheckoutCompleted,
		"uid-1", (*string)(nil), "price_lora", mock.Anything).Return(wantErr).Once()

	_, err := service.ProcessEvent(context.Background(), event)
	assert.ErrorIs(t, err, wantErr)
	notifier.AssertNotCalled(t, "PublishPurchase", mock.Anything)
}

func TestBalance_CacheMiss(t *testing.T) {
	repo := new(LedgerRepositoryMock)
	provider := new(ProviderClientMock)
	cacheMock := new(BalanceCacheMock)
	service := newService(repo, provider, cacheMock, nil)

	cacheMock.On("Get", "balance:uid-1", mock.Anything).Return(false, nil).Once()
	repo.On("GetUser", mock.Anything, "uid-1").Return(&models.User{
		UID:          "uid-1",
		LoraCredits:  3,
		ImageCredits: 100,
		IsSubscribed: true,
	}, nil).Once()
	cacheMock.On("Set", "balance:uid-1", mock.Anything, balanceCacheTTL).Return(nil).Once()

	balance, err := service.Balance(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, 3, balance.LoraCredits)
	assert.Equal(t, 100, balance.ImageCredits)
	assert.True(t, balance.IsSubscribed)
	assert.False(t, balance.IsLoraTrainingSubscribed)

	repo.AssertExpectations(t)
	cacheMock.AssertExpectations(t)
}

func TestBalance_CacheHit(t *testing.T) {
	repo := new(LedgerRepositoryMock)
	provider := new(ProviderClientMock)
	cacheMock := new(BalanceCacheMock)
	service := newService(repo, provider, cacheMock, nil)

	cacheMock.On("Get", "balance:uid-1", mock.Anything).
		Run(func(args mock.Arguments) {
			out := args.Get(1).(*Balance)
			out.LoraCredits = 2
		}).Return(true, nil).Once()

	balance, err := service.Balance(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, 2, balance.LoraCredits)

	repo.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
}
