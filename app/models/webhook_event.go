package models

import "time"

// Outcomes recorded for a webhook delivery.
const (
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeFailed    = "failed"
)

// WebhookEvent is the append-only audit log of provider deliveries. Every
// delivery gets its own row, so a redelivered event id appears more than once.
// Rows are written once and never updated.
type WebhookEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	DeliveryID      string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"delivery_id"`
	Provider        string    `gorm:"type:varchar(20);not null;index:idx_webhook_events_provider_event,priority:1" json:"provider"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;index:idx_webhook_events_provider_event,priority:2" json:"provider_event_id"`
	EventType       string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Outcome         string    `gorm:"type:varchar(20);not null;index" json:"outcome"`
	ProcessingError string    `gorm:"type:text" json:"processing_error,omitempty"`
	PayloadJSON     string    `gorm:"type:longtext;not null" json:"payload_json"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
