package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"echofm/model"

	stripe "github.com/stripe/stripe-go/v76"
)

const testSecret = "whsec_test_secret"

// signPayload produces a valid provider signature header for the payload.
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeBillingRepo struct {
	plans           map[string]*model.Plan
	prices          map[string]*model.Price
	subs            map[string]*model.Subscription
	customersByUser map[int64]*model.Customer
	writes          int
}

func newFakeBillingRepo() *fakeBillingRepo {
	return &fakeBillingRepo{
		plans:           map[string]*model.Plan{},
		prices:          map[string]*model.Price{},
		subs:            map[string]*model.Subscription{},
		customersByUser: map[int64]*model.Customer{},
	}
}

func (f *fakeBillingRepo) UpsertPlan(plan *model.Plan) error {
	f.plans[plan.ID] = plan
	f.writes++
	return nil
}

func (f *fakeBillingRepo) UpsertPrice(price *model.Price) error {
	f.prices[price.ID] = price
	f.writes++
	return nil
}

func (f *fakeBillingRepo) UpsertSubscription(sub *model.Subscription) error {
	f.subs[sub.ID] = sub
	f.writes++
	return nil
}

func (f *fakeBillingRepo) GetPriceByID(id string) (*model.Price, error) {
	return f.prices[id], nil
}

func (f *fakeBillingRepo) GetActivePlansWithPrices() ([]*model.Plan, error) {
	return nil, nil
}

func (f *fakeBillingRepo) GetSubscriptionForUser(userID int64) (*model.Subscription, error) {
	return nil, nil
}

func (f *fakeBillingRepo) GetCustomerByUserID(userID int64) (*model.Customer, error) {
	return f.customersByUser[userID], nil
}

func (f *fakeBillingRepo) GetCustomerByID(customerID string) (*model.Customer, error) {
	for _, c := range f.customersByUser {
		if c.CustomerID == customerID {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeBillingRepo) CreateCustomerMapping(customer *model.Customer) (*model.Customer, error) {
	if existing, ok := f.customersByUser[customer.UserID]; ok {
		return existing, nil
	}
	f.customersByUser[customer.UserID] = customer
	f.writes++
	return customer, nil
}

type fakeUserRepo struct {
	billingCopies int
	lastAddress   string
	lastMethod    string
}

func (f *fakeUserRepo) CreateUser(user *model.User) (int64, error)            { return 0, nil }
func (f *fakeUserRepo) GetUserByID(id int64) (*model.User, error)             { return nil, nil }
func (f *fakeUserRepo) GetUserByEmail(email string) (*model.User, error)      { return nil, nil }
func (f *fakeUserRepo) GetUserByUsername(username string) (*model.User, error) { return nil, nil }

func (f *fakeUserRepo) UpdateBillingDetails(userID int64, billingAddress, paymentMethod string) error {
	f.billingCopies++
	f.lastAddress = billingAddress
	f.lastMethod = paymentMethod
	return nil
}

type fakeProviderAPI struct {
	subscription  *stripe.Subscription
	retrievals    int
	customerSeq   int
	checkoutCalls int
	lastCheckout  *stripe.CheckoutSessionParams
}

func (f *fakeProviderAPI) RetrieveSubscription(id string) (*stripe.Subscription, error) {
	f.retrievals++
	if f.subscription == nil {
		return nil, fmt.Errorf("no such subscription %s", id)
	}
	return f.subscription, nil
}

func (f *fakeProviderAPI) CreateCustomer(email string, userID int64) (*stripe.Customer, error) {
	f.customerSeq++
	return &stripe.Customer{ID: fmt.Sprintf("cus_new_%d", f.customerSeq)}, nil
}

func (f *fakeProviderAPI) CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.checkoutCalls++
	f.lastCheckout = params
	return &stripe.CheckoutSession{ID: "cs_test_1"}, nil
}

func (f *fakeProviderAPI) CreatePortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return &stripe.BillingPortalSession{URL: "https://billing.example.com/session"}, nil
}

func newTestService() (*Service, *fakeProviderAPI, *fakeBillingRepo, *fakeUserRepo) {
	api := &fakeProviderAPI{}
	repo := newFakeBillingRepo()
	users := &fakeUserRepo{}
	return NewService(api, repo, users, testSecret), api, repo, users
}

func TestHandleEvent_MissingSignature(t *testing.T) {
	svc, _, repo, _ := newTestService()

	err := svc.HandleEvent([]byte(`{}`), "")
	if !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("HandleEvent() = %v, want ErrMissingSignature", err)
	}
	if repo.writes != 0 {
		t.Errorf("writes = %d, want 0", repo.writes)
	}
}

func TestHandleEvent_NoSecretConfigured(t *testing.T) {
	api := &fakeProviderAPI{}
	repo := newFakeBillingRepo()
	svc := NewService(api, repo, &fakeUserRepo{}, "")

	payload := []byte(`{"type":"product.created"}`)
	err := svc.HandleEvent(payload, signPayload(payload, testSecret))
	if !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("HandleEvent() = %v, want ErrMissingSignature", err)
	}
	if repo.writes != 0 {
		t.Errorf("writes = %d, want 0", repo.writes)
	}
}

func TestHandleEvent_BadSignature(t *testing.T) {
	svc, _, repo, _ := newTestService()

	payload := []byte(`{"type":"product.created"}`)
	err := svc.HandleEvent(payload, signPayload(payload, "whsec_wrong_secret"))
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("HandleEvent() = %v, want ErrBadSignature", err)
	}
	if repo.writes != 0 {
		t.Errorf("writes = %d, want 0 (no dispatch on bad signature)", repo.writes)
	}
}

func TestHandleEvent_IrrelevantType(t *testing.T) {
	svc, _, repo, _ := newTestService()

	payload := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{}}}`)
	err := svc.HandleEvent(payload, signPayload(payload, testSecret))
	if err != nil {
		t.Fatalf("HandleEvent() = %v, want nil (received but ignored)", err)
	}
	if repo.writes != 0 {
		t.Errorf("writes = %d, want 0", repo.writes)
	}
}

func TestHandleEvent_PlanCreated(t *testing.T) {
	svc, _, repo, _ := newTestService()

	payload := []byte(`{
		"id": "evt_1",
		"type": "product.created",
		"data": {"object": {
			"id": "prod_1",
			"active": true,
			"name": "Premium",
			"description": "Full catalog access",
			"images": ["https://cdn.example.com/premium.png"],
			"metadata": {"tier": "premium"}
		}}
	}`)

	if err := svc.HandleEvent(payload, signPayload(payload, testSecret)); err != nil {
		t.Fatalf("HandleEvent() = %v", err)
	}

	plan := repo.plans["prod_1"]
	if plan == nil {
		t.Fatal("plan prod_1 was not upserted")
	}
	if !plan.Active || plan.Name != "Premium" {
		t.Errorf("plan = %+v, want active Premium", plan)
	}
	if plan.Image != "https://cdn.example.com/premium.png" {
		t.Errorf("plan.Image = %q", plan.Image)
	}
}

func TestHandleEvent_PriceCreated(t *testing.T) {
	svc, _, repo, _ := newTestService()

	payload := []byte(`{
		"id": "evt_2",
		"type": "price.created",
		"data": {"object": {
			"id": "price_1",
			"product": "prod_1",
			"active": true,
			"currency": "usd",
			"type": "recurring",
			"unit_amount": 999,
			"recurring": {"interval": "month", "interval_count": 1, "trial_period_days": 7}
		}}
	}`)

	if err := svc.HandleEvent(payload, signPayload(payload, testSecret)); err != nil {
		t.Fatalf("HandleEvent() = %v", err)
	}

	price := repo.prices["price_1"]
	if price == nil {
		t.Fatal("price price_1 was not upserted")
	}
	if price.PlanID != "prod_1" {
		t.Errorf("price.PlanID = %q, want prod_1", price.PlanID)
	}
	if price.UnitAmount != 999 || price.Interval != "month" || price.TrialPeriodDays != 7 {
		t.Errorf("price = %+v", price)
	}
}

func providerSubscription(id, customerID string, status stripe.SubscriptionStatus) *stripe.Subscription {
	return &stripe.Subscription{
		ID:                 id,
		Customer:           &stripe.Customer{ID: customerID},
		Status:             status,
		Created:            1700000000,
		CurrentPeriodStart: 1700000000,
		CurrentPeriodEnd:   1702592000,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{ID: "price_1"}, Quantity: 1},
			},
		},
	}
}

func TestHandleEvent_SubscriptionDeleted(t *testing.T) {
	svc, api, repo, users := newTestService()
	repo.customersByUser[42] = &model.Customer{UserID: 42, CustomerID: "cus_1"}
	api.subscription = providerSubscription("sub_1", "cus_1", stripe.SubscriptionStatusCanceled)
	api.subscription.CanceledAt = 1701000000

	payload := []byte(`{
		"id": "evt_3",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "customer": "cus_1", "status": "canceled"}}
	}`)

	if err := svc.HandleEvent(payload, signPayload(payload, testSecret)); err != nil {
		t.Fatalf("HandleEvent() = %v", err)
	}

	sub := repo.subs["sub_1"]
	if sub == nil {
		t.Fatal("subscription sub_1 was not upserted")
	}
	if sub.Status != model.SubscriptionStatusCanceled {
		t.Errorf("sub.Status = %q, want canceled", sub.Status)
	}
	if sub.UserID != 42 {
		t.Errorf("sub.UserID = %d, want 42", sub.UserID)
	}
	if sub.Quantity != 1 {
		t.Errorf("sub.Quantity = %d, want 1 from the subscription item", sub.Quantity)
	}
	if sub.PriceID != "price_1" {
		t.Errorf("sub.PriceID = %q, want price_1", sub.PriceID)
	}
	if sub.CanceledAt == nil {
		t.Error("sub.CanceledAt = nil, want set")
	}
	if users.billingCopies != 0 {
		t.Errorf("billingCopies = %d, want 0 (no profile copy on delete)", users.billingCopies)
	}
}

func TestHandleEvent_SubscriptionCreated_CopiesBillingDetails(t *testing.T) {
	svc, api, repo, users := newTestService()
	repo.customersByUser[42] = &model.Customer{UserID: 42, CustomerID: "cus_1"}
	api.subscription = providerSubscription("sub_1", "cus_1", stripe.SubscriptionStatusActive)
	api.subscription.DefaultPaymentMethod = &stripe.PaymentMethod{
		Type: stripe.PaymentMethodTypeCard,
		BillingDetails: &stripe.PaymentMethodBillingDetails{
			Address: &stripe.Address{City: "Berlin", Country: "DE", Line1: "Karl-Marx-Allee 1"},
		},
		Card: &stripe.PaymentMethodCard{Brand: "visa", Last4: "4242"},
	}

	payload := []byte(`{
		"id": "evt_4",
		"type": "customer.subscription.created",
		"data": {"object": {"id": "sub_1", "customer": "cus_1", "status": "active"}}
	}`)

	if err := svc.HandleEvent(payload, signPayload(payload, testSecret)); err != nil {
		t.Fatalf("HandleEvent() = %v", err)
	}

	if repo.subs["sub_1"] == nil {
		t.Fatal("subscription sub_1 was not upserted")
	}
	if users.billingCopies != 1 {
		t.Fatalf("billingCopies = %d, want 1", users.billingCopies)
	}
	if users.lastAddress == "" || users.lastMethod == "" {
		t.Error("billing details were not recorded on the user profile")
	}
}

func TestHandleEvent_CheckoutCompleted_SubscriptionMode(t *testing.T) {
	svc, api, repo, users := newTestService()
	repo.customersByUser[42] = &model.Customer{UserID: 42, CustomerID: "cus_1"}
	api.subscription = providerSubscription("sub_1", "cus_1", stripe.SubscriptionStatusTrialing)

	payload := []byte(`{
		"id": "evt_5",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"mode": "subscription",
			"subscription": "sub_1",
			"customer": "cus_1"
		}}
	}`)

	if err := svc.HandleEvent(payload, signPayload(payload, testSecret)); err != nil {
		t.Fatalf("HandleEvent() = %v", err)
	}

	if len(repo.subs) != 1 {
		t.Fatalf("subscription upserts = %d, want exactly 1", len(repo.subs))
	}
	if repo.subs["sub_1"].Status != model.SubscriptionStatusTrialing {
		t.Errorf("sub.Status = %q, want trialing", repo.subs["sub_1"].Status)
	}
	// create-flag true, but no default payment method on the subscription
	if users.billingCopies != 0 {
		t.Errorf("billingCopies = %d, want 0 without a default payment method", users.billingCopies)
	}
}

func TestHandleEvent_CheckoutCompleted_PaymentModeIgnored(t *testing.T) {
	svc, api, repo, _ := newTestService()

	payload := []byte(`{
		"id": "evt_6",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_2", "mode": "payment"}}
	}`)

	if err := svc.HandleEvent(payload, signPayload(payload, testSecret)); err != nil {
		t.Fatalf("HandleEvent() = %v, want nil for non-subscription mode", err)
	}
	if repo.writes != 0 {
		t.Errorf("writes = %d, want 0", repo.writes)
	}
	if api.retrievals != 0 {
		t.Errorf("retrievals = %d, want 0", api.retrievals)
	}
}

func TestHandleEvent_SubscriptionForUnknownCustomer(t *testing.T) {
	svc, api, repo, _ := newTestService()
	api.subscription = providerSubscription("sub_9", "cus_unknown", stripe.SubscriptionStatusActive)

	payload := []byte(`{
		"id": "evt_7",
		"type": "customer.subscription.updated",
		"data": {"object": {"id": "sub_9", "customer": "cus_unknown", "status": "active"}}
	}`)

	err := svc.HandleEvent(payload, signPayload(payload, testSecret))
	if err == nil {
		t.Fatal("HandleEvent() = nil, want error for unmapped customer")
	}
	if repo.writes != 0 {
		t.Errorf("writes = %d, want 0", repo.writes)
	}
}

func TestCreateOrRetrieveCustomer(t *testing.T) {
	svc, api, repo, _ := newTestService()

	first, err := svc.CreateOrRetrieveCustomer(7, "user@example.com")
	if err != nil {
		t.Fatalf("CreateOrRetrieveCustomer() = %v", err)
	}
	if first == "" {
		t.Fatal("expected a customer id")
	}

	second, err := svc.CreateOrRetrieveCustomer(7, "user@example.com")
	if err != nil {
		t.Fatalf("CreateOrRetrieveCustomer() second call = %v", err)
	}
	if second != first {
		t.Errorf("second call returned %q, want cached %q", second, first)
	}
	if api.customerSeq != 1 {
		t.Errorf("provider customers created = %d, want 1", api.customerSeq)
	}
	if _, ok := repo.customersByUser[7]; !ok {
		t.Error("cross-reference was not persisted")
	}
}

func TestCreateCheckoutSession_AppliesTrialFromStoredPrice(t *testing.T) {
	svc, api, repo, _ := newTestService()
	repo.prices["price_1"] = &model.Price{ID: "price_1", TrialPeriodDays: 14}

	sessionID, err := svc.CreateCheckoutSession(7, "user@example.com", "price_1", 0, nil,
		"https://app.example.com/account", "https://app.example.com/")
	if err != nil {
		t.Fatalf("CreateCheckoutSession() = %v", err)
	}
	if sessionID != "cs_test_1" {
		t.Errorf("sessionID = %q", sessionID)
	}

	params := api.lastCheckout
	if params == nil {
		t.Fatal("no checkout session created")
	}
	if got := params.LineItems[0]; *got.Price != "price_1" || *got.Quantity != 1 {
		t.Errorf("line item = %q x%d, want price_1 x1", *got.Price, *got.Quantity)
	}
	if params.SubscriptionData == nil || params.SubscriptionData.TrialPeriodDays == nil ||
		*params.SubscriptionData.TrialPeriodDays != 14 {
		t.Error("trial period from the stored price was not applied")
	}
}

func TestParseEventKind(t *testing.T) {
	relevant := []string{
		"product.created", "product.updated",
		"price.created", "price.updated",
		"checkout.session.completed",
		"customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted",
	}
	for _, typ := range relevant {
		if _, ok := parseEventKind(typ); !ok {
			t.Errorf("parseEventKind(%q) not relevant, want relevant", typ)
		}
	}
	for _, typ := range []string{"invoice.paid", "customer.created", ""} {
		if _, ok := parseEventKind(typ); ok {
			t.Errorf("parseEventKind(%q) relevant, want irrelevant", typ)
		}
	}
}
