package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/LocalListings/app/models"
	"github.com/ManuelReschke/LocalListings/internal/pkg/apperr"
	"github.com/ManuelReschke/LocalListings/internal/pkg/entitlements"
)

// Store is the persistence boundary of the reconciler. Every error it returns
// is marked apperr.ErrDownstream, except ErrNotFound from the single-record lookups.
type Store interface {
	UpsertByUserID(ctx context.Context, userID string, sub *models.Subscription) error
	// UpdateBySubscriptionID reports false when no record exists for the id.
	// A non-empty fields.UserID re-points the record, like UpsertByUserID does.
	UpdateBySubscriptionID(ctx context.Context, subscriptionID string, fields SubscriptionFields) (bool, error)
	MarkCanceled(ctx context.Context, subscriptionID string) (bool, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error)
	// GetByUserID returns the user's most recently updated subscription.
	GetByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	// LatestEntitledByUserID returns the user's most recently updated active
	// or trialing subscription.
	LatestEntitledByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	SetUserTier(ctx context.Context, userID string, tier entitlements.Plan) error
	AppendWebhookEvent(ctx context.Context, event *models.WebhookEvent) error
	HasProcessedEvent(ctx context.Context, provider, eventID string) (bool, error)
}

type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a Store backed by GORM.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *gormStore) UpsertByUserID(ctx context.Context, userID string, sub *models.Subscription) error {
	sub.UserID = userID
	if sub.Provider == "" {
		sub.Provider = models.BillingProviderStripe
	}
	sub.UpdatedAt = s.now()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"provider",
			"status",
			"price_id",
			"plan",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"updated_at",
		}),
	}).Create(sub).Error
	return apperr.Wrap(err, apperr.ErrDownstream, "upsert subscription")
}

func (s *gormStore) UpdateBySubscriptionID(ctx context.Context, subscriptionID string, fields SubscriptionFields) (bool, error) {
	updates := map[string]interface{}{
		"status":               fields.Status,
		"price_id":             fields.PriceID,
		"plan":                 string(fields.Plan),
		"current_period_start": fields.CurrentPeriodStart,
		"current_period_end":   fields.CurrentPeriodEnd,
		"cancel_at_period_end": fields.CancelAtPeriodEnd,
		"updated_at":           s.now(),
	}
	if fields.UserID != "" {
		updates["user_id"] = fields.UserID
	}
	return s.update(ctx, subscriptionID, updates, "update subscription")
}

func (s *gormStore) MarkCanceled(ctx context.Context, subscriptionID string) (bool, error) {
	updates := map[string]interface{}{
		"status":               entitlements.StatusCanceled,
		"cancel_at_period_end": false,
		"updated_at":           s.now(),
	}
	return s.update(ctx, subscriptionID, updates, "mark subscription canceled")
}

func (s *gormStore) update(ctx context.Context, subscriptionID string, updates map[string]interface{}, msg string) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(updates)
	if tx.Error != nil {
		return false, apperr.Wrap(tx.Error, apperr.ErrDownstream, msg)
	}
	if tx.RowsAffected > 0 {
		return true, nil
	}

	// MySQL reports changed rows, so an identical rewrite affects zero rows.
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("subscription_id = ?", subscriptionID).
		Count(&count).Error; err != nil {
		return false, apperr.Wrap(err, apperr.ErrDownstream, msg)
	}
	return count > 0, nil
}

func (s *gormStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	return s.first(ctx, s.db.Where("subscription_id = ?", subscriptionID), "no subscription with id")
}

func (s *gormStore) GetByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	return s.first(ctx, s.db.Where("user_id = ?", userID), "no subscription for user")
}

func (s *gormStore) LatestEntitledByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	q := s.db.Where("user_id = ? AND status IN ?", userID, []string{entitlements.StatusActive, entitlements.StatusTrialing})
	return s.first(ctx, q, "no entitled subscription for user")
}

func (s *gormStore) first(ctx context.Context, q *gorm.DB, notFound string) (*models.Subscription, error) {
	var sub models.Subscription
	err := q.WithContext(ctx).
		Order("updated_at DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Wrap(err, apperr.ErrNotFound, notFound)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrDownstream, "load subscription")
	}
	return &sub, nil
}

func (s *gormStore) SetUserTier(ctx context.Context, userID string, tier entitlements.Plan) error {
	user := &models.User{
		ID:               userID,
		Role:             models.ROLE_USER,
		SubscriptionTier: string(tier),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"subscription_tier", "updated_at"}),
	}).Create(user).Error
	return apperr.Wrap(err, apperr.ErrDownstream, "set user tier")
}

func (s *gormStore) AppendWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	if event.DeliveryID == "" {
		event.DeliveryID = uuid.NewString()
	}
	if event.Provider == "" {
		event.Provider = models.BillingProviderStripe
	}
	err := s.db.WithContext(ctx).Create(event).Error
	return apperr.Wrap(err, apperr.ErrDownstream, "append webhook event")
}

func (s *gormStore) HasProcessedEvent(ctx context.Context, provider, eventID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("provider = ? AND provider_event_id = ? AND outcome = ?", provider, eventID, models.WebhookOutcomeProcessed).
		Count(&count).Error
	if err != nil {
		return false, apperr.Wrap(err, apperr.ErrDownstream, "lookup webhook event")
	}
	return count > 0, nil
}
