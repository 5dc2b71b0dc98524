package billing

// eventKind is the closed set of provider notifications this service reacts
// to. Dispatch switches over eventKind rather than raw provider strings, so a
// newly allow-listed event type cannot silently fall through: it must be added
// both here and in the dispatch switch.
type eventKind int

const (
	eventPlanCreated eventKind = iota
	eventPlanUpdated
	eventPriceCreated
	eventPriceUpdated
	eventCheckoutCompleted
	eventSubscriptionCreated
	eventSubscriptionUpdated
	eventSubscriptionDeleted
)

// parseEventKind maps a provider event type string onto the allow-list.
// The second result is false for irrelevant event types, which the webhook
// acknowledges without dispatching.
func parseEventKind(eventType string) (eventKind, bool) {
	switch eventType {
	case "product.created":
		return eventPlanCreated, true
	case "product.updated":
		return eventPlanUpdated, true
	case "price.created":
		return eventPriceCreated, true
	case "price.updated":
		return eventPriceUpdated, true
	case "checkout.session.completed":
		return eventCheckoutCompleted, true
	case "customer.subscription.created":
		return eventSubscriptionCreated, true
	case "customer.subscription.updated":
		return eventSubscriptionUpdated, true
	case "customer.subscription.deleted":
		return eventSubscriptionDeleted, true
	}
	return 0, false
}
