package server

import (
	"encoding/json"
	"net/http"

	"echofm/logger"
)

// CheckoutSessionRequest is the body of POST /api/checkout-session.
type CheckoutSessionRequest struct {
	Price struct {
		ID string `json:"id"`
	} `json:"price"`
	Quantity int64             `json:"quantity,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// GetPlansHandler lists active plans with their active prices.
func (h *APIHandler) GetPlansHandler(w http.ResponseWriter, r *http.Request) {
	plans, err := h.billingRepo.GetActivePlansWithPrices()
	if err != nil {
		logger.Error("Failed to list plans", logger.ErrorField(err))
		http.Error(w, "Failed to list plans", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// GetSubscriptionHandler returns the caller's active or trialing
// subscription, if any.
func (h *APIHandler) GetSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	sub, err := h.billingRepo.GetSubscriptionForUser(userID)
	if err != nil {
		logger.Error("Failed to get subscription", logger.Int64("userId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to get subscription", http.StatusInternalServerError)
		return
	}
	if sub == nil {
		http.Error(w, "No active subscription", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// CreateCheckoutSessionHandler opens a provider checkout session for the
// requested price. Unauthenticated visitors are allowed; they check out with
// an anonymous customer.
func (h *APIHandler) CreateCheckoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req CheckoutSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Price.ID == "" {
		http.Error(w, "Price id is required", http.StatusBadRequest)
		return
	}

	// Optional identity: zero id and empty email for anonymous visitors.
	var userID int64
	var email string
	if id, err := GetUserIDFromContext(r.Context()); err == nil {
		userID = id
		if user, err := h.userRepo.GetUserByID(id); err == nil && user != nil {
			email = user.Email
		}
	}

	sessionID, err := h.billingSvc.CreateCheckoutSession(
		userID, email, req.Price.ID, req.Quantity, req.Metadata,
		h.cfg.AppURL+"/account", h.cfg.AppURL+"/")
	if err != nil {
		logger.Error("Failed to create checkout session",
			logger.Int64("userId", userID),
			logger.String("priceId", req.Price.ID),
			logger.ErrorField(err))
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

// CreatePortalLinkHandler opens a provider billing-portal session for the
// caller.
func (h *APIHandler) CreatePortalLinkHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		// The portal is only reachable from the account page; an absent user
		// is treated as an internal failure rather than a client error.
		logger.Error("Portal link requested without a user")
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	user, err := h.userRepo.GetUserByID(userID)
	if err != nil || user == nil {
		logger.Error("Failed to resolve user for portal link", logger.Int64("userId", userID), logger.ErrorField(err))
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	url, err := h.billingSvc.CreatePortalLink(userID, user.Email, h.cfg.AppURL+"/account")
	if err != nil {
		logger.Error("Failed to create portal link", logger.Int64("userId", userID), logger.ErrorField(err))
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
