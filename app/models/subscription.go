package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

// Subscription mirrors a provider subscription. Rows are never deleted; the
// terminal state is a status value so billing history survives cancellation.
type Subscription struct {
	SubscriptionID     string     `gorm:"primaryKey;type:varchar(191)" json:"subscription_id"`
	UserID             string     `gorm:"type:varchar(64);not null;index:idx_subscriptions_user_updated,priority:1" json:"user_id"`
	Provider           string     `gorm:"type:varchar(20);not null;default:'stripe'" json:"provider"`
	Status             string     `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	PriceID            string     `gorm:"type:varchar(191);not null;default:''" json:"price_id"`
	Plan               string     `gorm:"type:varchar(50);not null;default:'free'" json:"plan"`
	CurrentPeriodStart *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime;index:idx_subscriptions_user_updated,priority:2" json:"updated_at"`
}
