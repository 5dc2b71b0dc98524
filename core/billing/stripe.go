package billing

import (
	"strconv"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// stripeAPI implements ProviderAPI on the Stripe SDK client.
type stripeAPI struct {
	sc *client.API
}

// NewStripeAPI creates a ProviderAPI backed by Stripe.
func NewStripeAPI(secretKey string) ProviderAPI {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &stripeAPI{sc: sc}
}

// RetrieveSubscription fetches the full subscription with its default payment
// method expanded, which the lifecycle reducer needs for the profile copy.
func (a *stripeAPI) RetrieveSubscription(id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.AddExpand("default_payment_method")
	return a.sc.Subscriptions.Get(id, params)
}

// CreateCustomer creates a provider customer tagged with the owning user id.
func (a *stripeAPI) CreateCustomer(email string, userID int64) (*stripe.Customer, error) {
	params := &stripe.CustomerParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("echofmUserID", strconv.FormatInt(userID, 10))
	return a.sc.Customers.New(params)
}

func (a *stripeAPI) CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return a.sc.CheckoutSessions.New(params)
}

func (a *stripeAPI) CreatePortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return a.sc.BillingPortalSessions.New(params)
}
