package model

import "time"

// SubscriptionStatus is the closed set of lifecycle states the payment
// provider reports for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

// Valid reports whether s is a known subscription status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusTrialing, SubscriptionStatusActive, SubscriptionStatusCanceled,
		SubscriptionStatusIncomplete, SubscriptionStatusIncompleteExpired,
		SubscriptionStatusPastDue, SubscriptionStatusUnpaid, SubscriptionStatusPaused:
		return true
	}
	return false
}

// Active reports whether the subscription grants access.
func (s SubscriptionStatus) Active() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// Plan is a subscribable product offering, mirrored from the payment provider.
type Plan struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	Active      bool      `json:"active"`
	Name        string    `json:"name" gorm:"size:255"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty" gorm:"size:1024"`
	Metadata    string    `json:"metadata,omitempty"` // provider metadata, JSON-encoded
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Prices []Price `json:"prices,omitempty" gorm:"foreignKey:PlanID"`
}

// TableName keeps the provider terminology out of the schema.
func (Plan) TableName() string { return "billing_plans" }

// Price is a billing price point attached to a Plan.
type Price struct {
	ID              string    `json:"id" gorm:"primaryKey;size:64"`
	PlanID          string    `json:"planId" gorm:"size:64;index"`
	Active          bool      `json:"active"`
	Description     string    `json:"description,omitempty"`
	Currency        string    `json:"currency" gorm:"size:8"`
	Type            string    `json:"type" gorm:"size:16"` // one_time or recurring
	UnitAmount      int64     `json:"unitAmount"`
	Interval        string    `json:"interval,omitempty" gorm:"size:16"`
	IntervalCount   int64     `json:"intervalCount,omitempty"`
	TrialPeriodDays int64     `json:"trialPeriodDays,omitempty"`
	Metadata        string    `json:"metadata,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (Price) TableName() string { return "billing_prices" }

// Subscription is a user's enrollment in a Price. Rows are only ever
// upserted by provider id; deletion events arrive as terminal statuses.
type Subscription struct {
	ID                 string             `json:"id" gorm:"primaryKey;size:64"`
	UserID             int64              `json:"userId" gorm:"index"`
	Status             SubscriptionStatus `json:"status" gorm:"size:32"`
	PriceID            string             `json:"priceId" gorm:"size:64"`
	Quantity           int64              `json:"quantity"`
	CancelAtPeriodEnd  bool               `json:"cancelAtPeriodEnd"`
	Metadata           string             `json:"metadata,omitempty"`
	Created            time.Time          `json:"created"`
	CurrentPeriodStart time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time          `json:"currentPeriodEnd"`
	EndedAt            *time.Time         `json:"endedAt,omitempty"`
	CancelAt           *time.Time         `json:"cancelAt,omitempty"`
	CanceledAt         *time.Time         `json:"canceledAt,omitempty"`
	TrialStart         *time.Time         `json:"trialStart,omitempty"`
	TrialEnd           *time.Time         `json:"trialEnd,omitempty"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

func (Subscription) TableName() string { return "billing_subscriptions" }

// Customer cross-references an application user to the payment provider's
// customer object. The primary key on UserID guarantees at most one mapping
// per user even when first-subscription events race.
type Customer struct {
	UserID     int64     `json:"userId" gorm:"primaryKey"`
	CustomerID string    `json:"customerId" gorm:"size:64;uniqueIndex"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (Customer) TableName() string { return "billing_customers" }
