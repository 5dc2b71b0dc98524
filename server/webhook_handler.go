package server

import (
	"errors"
	"io"
	"net/http"

	"echofm/core/billing"
	"echofm/logger"
)

// 防止恶意的超大webhook请求体
const maxWebhookBody = 1 << 20

// WebhookHandler receives signed billing-provider notifications and feeds
// them to the subscription lifecycle reducer. The provider retries failed
// deliveries on its own schedule, so the handler's only duty is to fail fast;
// redelivered notifications converge through the keyed upserts.
func (h *APIHandler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		logger.Error("Failed to read webhook body", logger.ErrorField(err))
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	err = h.billingSvc.HandleEvent(body, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})

	case errors.Is(err, billing.ErrMissingSignature):
		logger.Warn("Webhook rejected: missing signature or secret")
		http.Error(w, "Missing signature header or webhook secret", http.StatusBadRequest)

	case errors.Is(err, billing.ErrBadSignature):
		logger.Warn("Webhook rejected: bad signature", logger.ErrorField(err))
		http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)

	default:
		// Handler failures are logged with their cause but surfaced
		// generically, so internals never leak to the caller.
		logger.Error("Webhook handler failed", logger.ErrorField(err))
		http.Error(w, "Webhook handler failed. View logs.", http.StatusBadRequest)
	}
}
