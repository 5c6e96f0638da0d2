package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ROLE_USER  = "user"
	ROLE_OWNER = "owner"
	ROLE_ADMIN = "admin"
)

// User is the local mirror of an auth backend user. Accounts are created by the
// auth backend; this row carries the denormalized subscription tier used for
// fast authorization checks.
type User struct {
	ID               string    `gorm:"primaryKey;type:varchar(64)" json:"id" validate:"required,max=64"`
	Email            string    `gorm:"type:varchar(200);default:''" json:"email" validate:"omitempty,email,max=200"`
	Role             string    `gorm:"type:varchar(50);default:'user'" json:"role" validate:"omitempty,oneof=user owner admin"`
	SubscriptionTier string    `gorm:"type:varchar(50);not null;default:'free';index" json:"subscription_tier" validate:"omitempty,oneof=free business premium"`
	StripeCustomerID string    `gorm:"type:varchar(191);default:'';index" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// IsAdmin reports whether the user may manage other users' billing.
func (u *User) IsAdmin() bool {
	return u.Role == ROLE_ADMIN
}
