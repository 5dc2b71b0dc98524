package repository

import (
	"errors"
	"fmt"

	"echofm/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BillingRepository defines the persistence surface of the subscription
// lifecycle: idempotent upserts keyed by provider-issued identifiers, plus the
// user/customer cross-reference. The webhook reducer relies on these upserts
// to converge when concurrent notifications for the same id race.
type BillingRepository interface {
	UpsertPlan(plan *model.Plan) error
	UpsertPrice(price *model.Price) error
	UpsertSubscription(sub *model.Subscription) error

	GetPriceByID(id string) (*model.Price, error)
	GetActivePlansWithPrices() ([]*model.Plan, error)
	GetSubscriptionForUser(userID int64) (*model.Subscription, error)

	GetCustomerByUserID(userID int64) (*model.Customer, error)
	GetCustomerByID(customerID string) (*model.Customer, error)
	CreateCustomerMapping(customer *model.Customer) (*model.Customer, error)
}

// gormBillingRepository implements BillingRepository on GORM.
type gormBillingRepository struct {
	db *gorm.DB
}

// NewGormBillingRepository creates a new instance of gormBillingRepository.
func NewGormBillingRepository(db *gorm.DB) BillingRepository {
	return &gormBillingRepository{db: db}
}

// UpsertPlan inserts or updates a plan record keyed by provider id.
func (r *gormBillingRepository) UpsertPlan(plan *model.Plan) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"active", "name", "description", "image", "metadata", "updated_at"}),
	}).Create(plan).Error
	if err != nil {
		return fmt.Errorf("failed to upsert plan %s: %w", plan.ID, err)
	}
	return nil
}

// UpsertPrice inserts or updates a price record keyed by provider id.
func (r *gormBillingRepository) UpsertPrice(price *model.Price) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan_id", "active", "description", "currency",
			"type", "unit_amount", "interval", "interval_count", "trial_period_days", "metadata", "updated_at"}),
	}).Create(price).Error
	if err != nil {
		return fmt.Errorf("failed to upsert price %s: %w", price.ID, err)
	}
	return nil
}

// UpsertSubscription inserts or updates a subscription record keyed by
// provider id. Records are never deleted; terminal statuses are stored in
// place.
func (r *gormBillingRepository) UpsertSubscription(sub *model.Subscription) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "status", "price_id", "quantity",
			"cancel_at_period_end", "metadata", "created", "current_period_start", "current_period_end",
			"ended_at", "cancel_at", "canceled_at", "trial_start", "trial_end", "updated_at"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscription %s: %w", sub.ID, err)
	}
	return nil
}

// GetPriceByID retrieves a price by provider id.
func (r *gormBillingRepository) GetPriceByID(id string) (*model.Price, error) {
	var price model.Price
	err := r.db.Take(&price, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get price %s: %w", id, err)
	}
	return &price, nil
}

// GetActivePlansWithPrices retrieves active plans and their active prices,
// cheapest price first within each plan.
func (r *gormBillingRepository) GetActivePlansWithPrices() ([]*model.Plan, error) {
	var plans []*model.Plan
	err := r.db.
		Preload("Prices", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order("unit_amount ASC")
		}).
		Where("active = ?", true).
		Order("name ASC").
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query active plans: %w", err)
	}
	return plans, nil
}

// GetSubscriptionForUser retrieves the user's most recent subscription that
// still grants access, if any.
func (r *gormBillingRepository) GetSubscriptionForUser(userID int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.
		Where("user_id = ? AND status IN ?", userID,
			[]model.SubscriptionStatus{model.SubscriptionStatusActive, model.SubscriptionStatusTrialing}).
		Order("created DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription for user %d: %w", userID, err)
	}
	return &sub, nil
}

// GetCustomerByUserID retrieves the provider customer mapping for a user.
func (r *gormBillingRepository) GetCustomerByUserID(userID int64) (*model.Customer, error) {
	var customer model.Customer
	err := r.db.Take(&customer, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get customer for user %d: %w", userID, err)
	}
	return &customer, nil
}

// GetCustomerByID retrieves the mapping by provider customer id.
func (r *gormBillingRepository) GetCustomerByID(customerID string) (*model.Customer, error) {
	var customer model.Customer
	err := r.db.Take(&customer, "customer_id = ?", customerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get customer %s: %w", customerID, err)
	}
	return &customer, nil
}

// CreateCustomerMapping installs the user→customer cross-reference. The
// insert ignores conflicts and the stored row is re-read, so two racing
// first-subscription requests converge on whichever mapping landed first.
func (r *gormBillingRepository) CreateCustomerMapping(customer *model.Customer) (*model.Customer, error) {
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(customer).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create customer mapping for user %d: %w", customer.UserID, err)
	}

	stored, err := r.GetCustomerByUserID(customer.UserID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("customer mapping for user %d missing after insert", customer.UserID)
	}
	return stored, nil
}
