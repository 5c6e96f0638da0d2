package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ManuelReschke/LocalListings/app/models"
	"github.com/ManuelReschke/LocalListings/internal/pkg/apperr"
	"github.com/ManuelReschke/LocalListings/internal/pkg/database"
	"github.com/ManuelReschke/LocalListings/internal/pkg/entitlements"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// Every pooled connection would otherwise get its own empty database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func TestGormStoreUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t))

	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertByUserID(ctx, "user-1", &models.Subscription{
		SubscriptionID:   "sub_1",
		Status:           entitlements.StatusActive,
		PriceID:          "price_premium_month",
		Plan:             string(entitlements.PlanPremium),
		CurrentPeriodEnd: &end,
	}))

	sub, err := store.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.SubscriptionID)
	assert.Equal(t, models.BillingProviderStripe, sub.Provider)
	assert.Equal(t, entitlements.StatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, end.Equal(sub.CurrentPeriodEnd.UTC()))

	// Same subscription id overwrites instead of inserting a second row.
	require.NoError(t, store.UpsertByUserID(ctx, "user-1", &models.Subscription{
		SubscriptionID: "sub_1",
		Status:         entitlements.StatusPastDue,
		PriceID:        "price_premium_month",
		Plan:           string(entitlements.PlanPremium),
	}))
	sub, err = store.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, entitlements.StatusPastDue, sub.Status)

	var count int64
	require.NoError(t, store.(*gormStore).db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormStoreGetByUserIDNotFound(t *testing.T) {
	store := NewGormStore(newTestDB(t))

	_, err := store.GetByUserID(context.Background(), "nobody")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
	assert.False(t, apperr.Is(err, apperr.ErrDownstream))
}

func TestGormStoreGetByUserIDReturnsLatest(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newTestDB(t)).(*gormStore)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	require.NoError(t, s.UpsertByUserID(ctx, "user-1", &models.Subscription{SubscriptionID: "sub_old", Status: entitlements.StatusCanceled}))
	s.now = func() time.Time { return base.Add(time.Hour) }
	require.NoError(t, s.UpsertByUserID(ctx, "user-1", &models.Subscription{SubscriptionID: "sub_new", Status: entitlements.StatusActive}))

	sub, err := s.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "sub_new", sub.SubscriptionID)
}

func TestGormStoreLatestEntitledByUserID(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newTestDB(t)).(*gormStore)

	_, err := s.LatestEntitledByUserID(ctx, "user-1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	require.NoError(t, s.UpsertByUserID(ctx, "user-1", &models.Subscription{SubscriptionID: "sub_trial", Status: entitlements.StatusTrialing}))
	s.now = func() time.Time { return base.Add(time.Hour) }
	require.NoError(t, s.UpsertByUserID(ctx, "user-1", &models.Subscription{SubscriptionID: "sub_paid", Status: entitlements.StatusActive}))
	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	require.NoError(t, s.UpsertByUserID(ctx, "user-1", &models.Subscription{SubscriptionID: "sub_late", Status: entitlements.StatusPastDue}))

	sub, err := s.LatestEntitledByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "sub_paid", sub.SubscriptionID)

	_, err = s.MarkCanceled(ctx, "sub_paid")
	require.NoError(t, err)
	sub, err = s.LatestEntitledByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "sub_trial", sub.SubscriptionID)
}

func TestGormStoreGetBySubscriptionID(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t))

	_, err := store.GetBySubscriptionID(ctx, "sub_1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))

	require.NoError(t, store.UpsertByUserID(ctx, "user-1", &models.Subscription{SubscriptionID: "sub_1", Status: entitlements.StatusActive}))
	sub, err := store.GetBySubscriptionID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub.UserID)
}

func TestGormStoreOwnerFollowsLatestWrite(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t))

	require.NoError(t, store.UpsertByUserID(ctx, "user-1", &models.Subscription{SubscriptionID: "sub_1", Status: entitlements.StatusActive}))
	require.NoError(t, store.UpsertByUserID(ctx, "user-2", &models.Subscription{SubscriptionID: "sub_1", Status: entitlements.StatusActive}))
	sub, err := store.GetBySubscriptionID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "user-2", sub.UserID)

	found, err := store.UpdateBySubscriptionID(ctx, "sub_1", SubscriptionFields{UserID: "user-3", Status: entitlements.StatusActive})
	require.NoError(t, err)
	require.True(t, found)
	sub, err = store.GetBySubscriptionID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "user-3", sub.UserID)

	// Without a user id the owner is left alone.
	_, err = store.UpdateBySubscriptionID(ctx, "sub_1", SubscriptionFields{Status: entitlements.StatusPastDue})
	require.NoError(t, err)
	sub, err = store.GetBySubscriptionID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "user-3", sub.UserID)
	assert.Equal(t, entitlements.StatusPastDue, sub.Status)
}

func TestGormStoreUpdateBySubscriptionID(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t))

	found, err := store.UpdateBySubscriptionID(ctx, "sub_missing", SubscriptionFields{Status: entitlements.StatusActive})
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.UpsertByUserID(ctx, "user-1", &models.Subscription{
		SubscriptionID: "sub_1",
		Status:         entitlements.StatusActive,
		PriceID:        "price_business_month",
		Plan:           string(entitlements.PlanBusiness),
	}))

	fields := SubscriptionFields{
		Status:            entitlements.StatusActive,
		PriceID:           "price_premium_month",
		Plan:              entitlements.PlanPremium,
		CancelAtPeriodEnd: true,
	}
	found, err = store.UpdateBySubscriptionID(ctx, "sub_1", fields)
	require.NoError(t, err)
	assert.True(t, found)

	// Rewriting identical values still reports the record as found.
	found, err = store.UpdateBySubscriptionID(ctx, "sub_1", fields)
	require.NoError(t, err)
	assert.True(t, found)

	sub, err := store.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "price_premium_month", sub.PriceID)
	assert.Equal(t, string(entitlements.PlanPremium), sub.Plan)
	assert.True(t, sub.CancelAtPeriodEnd)
}

func TestGormStoreMarkCanceled(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t))

	require.NoError(t, store.UpsertByUserID(ctx, "user-1", &models.Subscription{
		SubscriptionID:    "sub_1",
		Status:            entitlements.StatusActive,
		CancelAtPeriodEnd: true,
	}))

	found, err := store.MarkCanceled(ctx, "sub_1")
	require.NoError(t, err)
	assert.True(t, found)

	sub, err := store.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, entitlements.StatusCanceled, sub.Status)
	assert.False(t, sub.CancelAtPeriodEnd)

	found, err = store.MarkCanceled(ctx, "sub_unknown")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGormStoreSetUserTierCreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewGormStore(db)

	require.NoError(t, store.SetUserTier(ctx, "user-1", entitlements.PlanPremium))
	var user models.User
	require.NoError(t, db.First(&user, "id = ?", "user-1").Error)
	assert.Equal(t, string(entitlements.PlanPremium), user.SubscriptionTier)
	assert.Equal(t, models.ROLE_USER, user.Role)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", "user-1").Update("email", "jane@example.com").Error)
	require.NoError(t, store.SetUserTier(ctx, "user-1", entitlements.PlanFree))
	require.NoError(t, db.First(&user, "id = ?", "user-1").Error)
	assert.Equal(t, string(entitlements.PlanFree), user.SubscriptionTier)
	assert.Equal(t, "jane@example.com", user.Email)
}

func TestGormStoreWebhookEvents(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t))

	processed, err := store.HasProcessedEvent(ctx, models.BillingProviderStripe, "evt_1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, store.AppendWebhookEvent(ctx, &models.WebhookEvent{
		ProviderEventID: "evt_1",
		EventType:       EventSubscriptionUpdated,
		Outcome:         models.WebhookOutcomeFailed,
		PayloadJSON:     `{}`,
	}))
	processed, err = store.HasProcessedEvent(ctx, models.BillingProviderStripe, "evt_1")
	require.NoError(t, err)
	assert.False(t, processed, "failed deliveries must be retried")

	entry := &models.WebhookEvent{
		ProviderEventID: "evt_1",
		EventType:       EventSubscriptionUpdated,
		Outcome:         models.WebhookOutcomeProcessed,
		PayloadJSON:     `{}`,
	}
	require.NoError(t, store.AppendWebhookEvent(ctx, entry))
	assert.NotEmpty(t, entry.DeliveryID)
	assert.Equal(t, models.BillingProviderStripe, entry.Provider)

	processed, err = store.HasProcessedEvent(ctx, models.BillingProviderStripe, "evt_1")
	require.NoError(t, err)
	assert.True(t, processed)

	processed, err = store.HasProcessedEvent(ctx, "paypal", "evt_1")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestGormStoreErrorsAreDownstream(t *testing.T) {
	db := newTestDB(t)
	store := NewGormStore(db)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = store.SetUserTier(context.Background(), "user-1", entitlements.PlanFree)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrDownstream))
}
