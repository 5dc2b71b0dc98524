package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"echofm/config"
	"echofm/core/auth"
	"echofm/core/billing"
	"echofm/logger"
	"echofm/repository"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	userRepo    repository.UserRepository
	trackRepo   repository.TrackRepository
	likeRepo    repository.LikeRepository
	billingRepo repository.BillingRepository
	billingSvc  *billing.Service
	queues      QueueStore
	cfg         *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	userRepo repository.UserRepository,
	trackRepo repository.TrackRepository,
	likeRepo repository.LikeRepository,
	billingRepo repository.BillingRepository,
	billingSvc *billing.Service,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		userRepo:    userRepo,
		trackRepo:   trackRepo,
		likeRepo:    likeRepo,
		billingRepo: billingRepo,
		billingSvc:  billingSvc,
		queues:      redisQueueStore{},
		cfg:         cfg,
	}
}

// writeJSON serializes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", logger.ErrorField(err))
	}
}

// AuthMiddleware is a middleware function that checks for a valid JWT token.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "username", claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// OptionalAuthMiddleware attaches the user identity when a valid token is
// present but lets unauthenticated requests through. Used by the checkout
// endpoint, where an anonymous visitor may still start a subscription.
func (h *APIHandler) OptionalAuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			if claims, err := auth.ParseToken(parts[1]); err == nil {
				ctx := context.WithValue(r.Context(), "userID", claims.UserID)
				ctx = context.WithValue(ctx, "username", claims.Username)
				r = r.WithContext(ctx)
			}
		}
		next.ServeHTTP(w, r)
	}
}

// GetUserIDFromContext extracts the user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}
