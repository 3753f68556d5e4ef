package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrmaer/lora-studio/internal/models"
)

func strPtr(s string) *string { return &s }

func TestStorage_ApplyGrant(t *testing.T) {
	tests := []struct {
		name       string
		grant      models.Grant
		wantLora   int
		wantImage  int
		checkFlags func(t *testing.T, user *models.User)
	}{
		{
			name:     "lora credits purchase adds exactly three",
			grant:    models.Grant{Product: models.ProductLoraCredits, Amount: 3},
			wantLora: 3,
		},
		{
			name:      "image credits purchase adds exactly one hundred",
			grant:     models.Grant{Product: models.ProductImageCredits, Amount: 100},
			wantImage: 100,
		},
		{
			name:  "image subscription sets flag without credits",
			grant: models.Grant{Product: models.ProductImageSub},
			checkFlags: func(t *testing.T, user *models.User) {
				assert.True(t, user.IsSubscribed)
				assert.False(t, user.IsLoraTrainingSubscribed)
			},
		},
		{
			name:  "lora subscription sets flag without credits",
			grant: models.Grant{Product: models.ProductLoraSub},
			checkFlags: func(t *testing.T, user *models.User) {
				assert.False(t, user.IsSubscribed)
				assert.True(t, user.IsLoraTrainingSubscribed)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userUID := uuid.New().String()
			factory.CreateUser(t, userUID, "testuser", "test@example.com", 0, 0)

			err := storage.ApplyGrant(context.Background(), "evt_1", "checkout.session.completed",
				userUID, strPtr("test@example.com"), "price_x", tt.grant)
			require.NoError(t, err)

			user, err := storage.GetUser(context.Background(), userUID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLora, user.LoraCredits)
			assert.Equal(t, tt.wantImage, user.ImageCredits)
			if tt.checkFlags != nil {
				tt.checkFlags(t, user)
			}
			assert.NotNil(t, user.LastGrantAt)
		})
	}
}

func TestStorage_ApplyGrant_DuplicateEvent(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "testuser", "test@example.com", 0, 0)

	grant := models.Grant{Product: models.ProductLoraCredits, Amount: 3}
	ctx := context.Background()

	err := storage.ApplyGrant(ctx, "evt_1", "checkout.session.completed", userUID, nil, "price_lora", grant)
	require.NoError(t, err)

	// Повторная доставка того же события не меняет баланс.
	err = storage.ApplyGrant(ctx, "evt_1", "checkout.session.completed", userUID, nil, "price_lora", grant)
	assert.ErrorIs(t, err, ErrEventAlreadyProcessed)

	loraCredits, _ := factory.UserCredits(t, userUID)
	assert.Equal(t, 3, loraCredits)

	grants, err := storage.ListCreditGrants(ctx, userUID)
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestStorage_ApplyGrant_AutoProvisionsUser(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	// Оплата пришла раньше, чем пользователь появился в базе.
	userUID := uuid.New().String()
	ctx := context.Background()

	err := storage.ApplyGrant(ctx, "evt_1", "checkout.session.completed",
		userUID, strPtr("buyer@example.com"), "price_image",
		models.Grant{Product: models.ProductImageCredits, Amount: 100})
	require.NoError(t, err)

	user, err := storage.GetUser(ctx, userUID)
	require.NoError(t, err)
	assert.Equal(t, 100, user.ImageCredits)
	require.NotNil(t, user.Email)
	assert.Equal(t, "buyer@example.com", *user.Email)
	assert.Nil(t, user.PasswordHash)
}

func TestStorage_ApplyGrant_ConcurrentEvents(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "testuser", "test@example.com", 0, 0)

	// Конкурентные доставки разных событий сериализуются блокировкой строки:
	// ни одно начисление не теряется.
	const events = 10
	var wg sync.WaitGroup
	errs := make(chan error, events)
	for i := range events {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- storage.ApplyGrant(context.Background(),
				fmt.Sprintf("evt_%d", n), "checkout.session.completed",
				userUID, nil, "price_lora",
				models.Grant{Product: models.ProductLoraCredits, Amount: 3})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	loraCredits, _ := factory.UserCredits(t, userUID)
	assert.Equal(t, events*3, loraCredits)
}

func TestStorage_SpendCredit(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "testuser", "test@example.com", 2, 0)

	ctx := context.Background()

	remaining, err := storage.SpendLoraCredit(ctx, userUID)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	remaining, err = storage.SpendLoraCredit(ctx, userUID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	// Баланс не уходит в минус.
	_, err = storage.SpendLoraCredit(ctx, userUID)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	loraCredits, _ := factory.UserCredits(t, userUID)
	assert.Equal(t, 0, loraCredits)
}

func TestStorage_SpendCredit_UnknownUser(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	_, err := storage.SpendImageCredit(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestStorage_RefundCredit(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUser(t, userUID, "testuser", "test@example.com", 1, 0)

	ctx := context.Background()

	_, err := storage.SpendLoraCredit(ctx, userUID)
	require.NoError(t, err)

	err = storage.RefundLoraCredit(ctx, userUID)
	require.NoError(t, err)

	loraCredits, _ := factory.UserCredits(t, userUID)
	assert.Equal(t, 1, loraCredits)
}

func TestStorage_ListCreditGrants(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	otherUID := uuid.New().String()
	factory.CreateUser(t, userUID, "testuser", "test@example.com", 0, 0)
	factory.CreateUser(t, otherUID, "otheruser", "other@example.com", 0, 0)

	ctx := context.Background()
	require.NoError(t, storage.ApplyGrant(ctx, "evt_1", "checkout.session.completed",
		userUID, nil, "price_lora", models.Grant{Product: models.ProductLoraCredits, Amount: 3}))
	require.NoError(t, storage.ApplyGrant(ctx, "evt_2", "checkout.session.completed",
		userUID, nil, "price_image", models.Grant{Product: models.ProductImageCredits, Amount: 100}))
	require.NoError(t, storage.ApplyGrant(ctx, "evt_3", "checkout.session.completed",
		otherUID, nil, "price_lora", models.Grant{Product: models.ProductLoraCredits, Amount: 3}))

	grants, err := storage.ListCreditGrants(ctx, userUID)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	for _, g := range grants {
		assert.Equal(t, userUID, g.UserUID)
	}
}
