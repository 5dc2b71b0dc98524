package model

import (
	"database/sql"
	"time"
)

// User represents a user in the system.
type User struct {
	ID             int64          `json:"id"`
	Username       string         `json:"username"`
	Email          string         `json:"email"`
	PasswordHash   string         `json:"-"` // Not exposed in API responses
	BillingAddress sql.NullString `json:"-"` // JSON blob copied from the payment provider
	PaymentMethod  sql.NullString `json:"-"` // JSON blob copied from the payment provider
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}
