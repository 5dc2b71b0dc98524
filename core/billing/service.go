package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"echofm/logger"
	"echofm/model"
	"echofm/repository"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	// ErrMissingSignature is returned when the signature header is absent or
	// no webhook secret is configured. The webhook endpoint rejects such
	// requests loudly instead of silently acknowledging them, so a
	// misconfigured deployment is visible to operators.
	ErrMissingSignature = errors.New("billing: missing signature header or webhook secret")

	// ErrBadSignature is returned when the payload fails signature
	// verification against the webhook secret.
	ErrBadSignature = errors.New("billing: webhook signature verification failed")

	// ErrUnhandledEvent is returned when an allow-listed event reaches
	// dispatch with no matching case.
	ErrUnhandledEvent = errors.New("billing: unhandled relevant event")
)

// ProviderAPI is the slice of the payment provider's API the service needs.
// The real implementation wraps the provider SDK client; tests substitute it.
type ProviderAPI interface {
	RetrieveSubscription(id string) (*stripe.Subscription, error)
	CreateCustomer(email string, userID int64) (*stripe.Customer, error)
	CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// Service maps inbound billing-provider notifications to data-store mutations
// and drives outbound checkout/portal session creation. Each call is an
// independent unit of work; all state lives in the repositories, and
// redelivered notifications converge through the keyed upserts.
type Service struct {
	api           ProviderAPI
	repo          repository.BillingRepository
	users         repository.UserRepository
	webhookSecret string
}

// NewService creates a billing service.
func NewService(api ProviderAPI, repo repository.BillingRepository, users repository.UserRepository, webhookSecret string) *Service {
	return &Service{
		api:           api,
		repo:          repo,
		users:         users,
		webhookSecret: webhookSecret,
	}
}

// HandleEvent validates an inbound webhook notification and dispatches it.
// A nil return means the notification was applied or deliberately ignored;
// callers distinguish rejection causes with errors.Is against the exported
// sentinel errors.
func (s *Service) HandleEvent(payload []byte, sigHeader string) error {
	if sigHeader == "" || s.webhookSecret == "" {
		return ErrMissingSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	kind, relevant := parseEventKind(string(event.Type))
	if !relevant {
		logger.Debug("Ignoring irrelevant billing event", logger.String("type", string(event.Type)))
		return nil
	}

	if err := s.dispatch(kind, event); err != nil {
		return fmt.Errorf("handling %s event %s: %w", event.Type, event.ID, err)
	}
	return nil
}

func (s *Service) dispatch(kind eventKind, event stripe.Event) error {
	switch kind {
	case eventPlanCreated, eventPlanUpdated:
		return s.upsertPlan(event.Data.Raw)

	case eventPriceCreated, eventPriceUpdated:
		return s.upsertPrice(event.Data.Raw)

	case eventSubscriptionCreated, eventSubscriptionUpdated, eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("failed to decode subscription payload: %w", err)
		}
		if sub.Customer == nil {
			return fmt.Errorf("subscription %s carries no customer", sub.ID)
		}
		// Deletion arrives as a terminal status on the retrieved subscription;
		// the record is updated in place, never removed.
		return s.applySubscriptionChange(sub.ID, sub.Customer.ID, kind == eventSubscriptionCreated)

	case eventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("failed to decode checkout session payload: %w", err)
		}
		if sess.Mode != stripe.CheckoutSessionModeSubscription {
			return nil // one-time payments are not our concern
		}
		if sess.Subscription == nil || sess.Customer == nil {
			return fmt.Errorf("completed session %s carries no subscription or customer", sess.ID)
		}
		return s.applySubscriptionChange(sess.Subscription.ID, sess.Customer.ID, true)
	}

	return ErrUnhandledEvent
}

func (s *Service) upsertPlan(raw json.RawMessage) error {
	var product stripe.Product
	if err := json.Unmarshal(raw, &product); err != nil {
		return fmt.Errorf("failed to decode plan payload: %w", err)
	}

	plan := &model.Plan{
		ID:          product.ID,
		Active:      product.Active,
		Name:        product.Name,
		Description: product.Description,
		Metadata:    marshalMetadata(product.Metadata),
	}
	if len(product.Images) > 0 {
		plan.Image = product.Images[0]
	}

	if err := s.repo.UpsertPlan(plan); err != nil {
		return err
	}
	logger.Info("Upserted plan record", logger.String("planId", plan.ID), logger.Bool("active", plan.Active))
	return nil
}

func (s *Service) upsertPrice(raw json.RawMessage) error {
	var price stripe.Price
	if err := json.Unmarshal(raw, &price); err != nil {
		return fmt.Errorf("failed to decode price payload: %w", err)
	}

	record := &model.Price{
		ID:          price.ID,
		Active:      price.Active,
		Description: price.Nickname,
		Currency:    string(price.Currency),
		Type:        string(price.Type),
		UnitAmount:  price.UnitAmount,
		Metadata:    marshalMetadata(price.Metadata),
	}
	if price.Product != nil {
		record.PlanID = price.Product.ID
	}
	if price.Recurring != nil {
		record.Interval = string(price.Recurring.Interval)
		record.IntervalCount = price.Recurring.IntervalCount
		record.TrialPeriodDays = price.Recurring.TrialPeriodDays
	}

	if err := s.repo.UpsertPrice(record); err != nil {
		return err
	}
	logger.Info("Upserted price record", logger.String("priceId", record.ID), logger.String("planId", record.PlanID))
	return nil
}

// applySubscriptionChange resolves the owning user, retrieves the full
// subscription from the provider, and upserts the record. When isCreate is
// set, billing-address and payment-method metadata are copied from the
// customer's default payment method onto the user's profile (the
// first-subscription side effect).
func (s *Service) applySubscriptionChange(subscriptionID, customerID string, isCreate bool) error {
	mapping, err := s.repo.GetCustomerByID(customerID)
	if err != nil {
		return err
	}
	if mapping == nil {
		return fmt.Errorf("no user mapped to provider customer %s", customerID)
	}

	sub, err := s.api.RetrieveSubscription(subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to retrieve subscription %s: %w", subscriptionID, err)
	}

	record := subscriptionRecord(mapping.UserID, sub)
	if !record.Status.Valid() {
		// Stored as-is so a provider-side addition does not wedge redelivery.
		logger.Warn("Unknown subscription status",
			logger.String("subscriptionId", record.ID),
			logger.String("status", string(record.Status)))
	}

	if err := s.repo.UpsertSubscription(record); err != nil {
		return err
	}
	logger.Info("Upserted subscription record",
		logger.String("subscriptionId", record.ID),
		logger.Int64("userId", record.UserID),
		logger.String("status", string(record.Status)),
		logger.Bool("create", isCreate))

	if isCreate && sub.DefaultPaymentMethod != nil {
		if err := s.copyBillingDetails(mapping.UserID, sub.DefaultPaymentMethod); err != nil {
			return err
		}
	}
	return nil
}

// CreateOrRetrieveCustomer returns the provider customer id for a user,
// creating the provider customer and the cross-reference on first contact.
// The mapping insert ignores conflicts and re-reads, so concurrent first
// subscriptions settle on a single mapping.
func (s *Service) CreateOrRetrieveCustomer(userID int64, email string) (string, error) {
	existing, err := s.repo.GetCustomerByUserID(userID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.CustomerID, nil
	}

	created, err := s.api.CreateCustomer(email, userID)
	if err != nil {
		return "", fmt.Errorf("failed to create provider customer for user %d: %w", userID, err)
	}

	stored, err := s.repo.CreateCustomerMapping(&model.Customer{
		UserID:     userID,
		CustomerID: created.ID,
	})
	if err != nil {
		return "", err
	}
	if stored.CustomerID != created.ID {
		// Lost the race; the freshly created provider customer is orphaned
		// and never referenced again.
		logger.Warn("Concurrent customer creation detected",
			logger.Int64("userId", userID),
			logger.String("kept", stored.CustomerID),
			logger.String("orphaned", created.ID))
	}
	logger.Info("Resolved provider customer",
		logger.Int64("userId", userID),
		logger.String("customerId", stored.CustomerID))
	return stored.CustomerID, nil
}

// CreateCheckoutSession opens a provider checkout session in subscription
// mode for the given price and returns the session id. Unauthenticated
// callers are passed through with a zero user id and empty email, matching
// the public subscribe flow.
func (s *Service) CreateCheckoutSession(userID int64, email, priceID string, quantity int64, metadata map[string]string, successURL, cancelURL string) (string, error) {
	customerID, err := s.CreateOrRetrieveCustomer(userID, email)
	if err != nil {
		return "", err
	}
	if quantity <= 0 {
		quantity = 1
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
		Customer:                 stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(quantity),
			},
		},
		Mode:                stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		AllowPromotionCodes: stripe.Bool(true),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}

	// Trials are configured on the stored price; apply them at checkout.
	if price, err := s.repo.GetPriceByID(priceID); err != nil {
		return "", err
	} else if price != nil && price.TrialPeriodDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(price.TrialPeriodDays)
	}

	sess, err := s.api.CreateCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sess.ID, nil
}

// CreatePortalLink opens a provider billing-portal session for the user and
// returns its URL.
func (s *Service) CreatePortalLink(userID int64, email, returnURL string) (string, error) {
	customerID, err := s.CreateOrRetrieveCustomer(userID, email)
	if err != nil {
		return "", err
	}
	if customerID == "" {
		return "", fmt.Errorf("could not resolve provider customer for user %d", userID)
	}

	sess, err := s.api.CreatePortalSession(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return sess.URL, nil
}

// subscriptionRecord flattens a provider subscription into the stored record.
func subscriptionRecord(userID int64, sub *stripe.Subscription) *model.Subscription {
	record := &model.Subscription{
		ID:                 sub.ID,
		UserID:             userID,
		Status:             model.SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		Metadata:           marshalMetadata(sub.Metadata),
		Created:            time.Unix(sub.Created, 0),
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0),
		EndedAt:            unixTimePtr(sub.EndedAt),
		CancelAt:           unixTimePtr(sub.CancelAt),
		CanceledAt:         unixTimePtr(sub.CanceledAt),
		TrialStart:         unixTimePtr(sub.TrialStart),
		TrialEnd:           unixTimePtr(sub.TrialEnd),
	}
	// Quantity lives on the subscription item, not the subscription itself.
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		record.Quantity = item.Quantity
		if item.Price != nil {
			record.PriceID = item.Price.ID
		}
	}
	return record
}

// copyBillingDetails mirrors the payment method's billing address and card
// metadata onto the user profile.
func (s *Service) copyBillingDetails(userID int64, pm *stripe.PaymentMethod) error {
	if pm.BillingDetails == nil || pm.BillingDetails.Address == nil {
		return nil
	}

	address, err := json.Marshal(pm.BillingDetails.Address)
	if err != nil {
		return fmt.Errorf("failed to encode billing address: %w", err)
	}

	method := map[string]interface{}{"type": string(pm.Type)}
	if pm.Card != nil {
		method["card"] = map[string]interface{}{
			"brand":    string(pm.Card.Brand),
			"last4":    pm.Card.Last4,
			"expMonth": pm.Card.ExpMonth,
			"expYear":  pm.Card.ExpYear,
		}
	}
	methodJSON, err := json.Marshal(method)
	if err != nil {
		return fmt.Errorf("failed to encode payment method: %w", err)
	}

	if err := s.users.UpdateBillingDetails(userID, string(address), string(methodJSON)); err != nil {
		return fmt.Errorf("failed to copy billing details to user %d: %w", userID, err)
	}
	return nil
}

func marshalMetadata(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unixTimePtr(v int64) *time.Time {
	if v == 0 {
		return nil
	}
	t := time.Unix(v, 0)
	return &t
}
