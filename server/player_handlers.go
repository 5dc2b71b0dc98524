package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"echofm/cache"
	"echofm/core/player"
	"echofm/logger"
)

// QueueStore persists per-user playback queue snapshots between requests.
type QueueStore interface {
	Load(ctx context.Context, userID int64) (*cache.QueueSnapshot, error)
	Save(ctx context.Context, userID int64, snap cache.QueueSnapshot) error
	Delete(ctx context.Context, userID int64) error
}

// redisQueueStore is the default QueueStore backed by the shared Redis cache.
type redisQueueStore struct{}

func (redisQueueStore) Load(ctx context.Context, userID int64) (*cache.QueueSnapshot, error) {
	return cache.LoadQueue(ctx, userID)
}

func (redisQueueStore) Save(ctx context.Context, userID int64, snap cache.QueueSnapshot) error {
	return cache.SaveQueue(ctx, userID, snap)
}

func (redisQueueStore) Delete(ctx context.Context, userID int64) error {
	return cache.DeleteQueue(ctx, userID)
}

// SetQueueRequest is the body of PUT /api/player/queue.
type SetQueueRequest struct {
	IDs      []string `json:"ids"`
	ActiveID string   `json:"activeId,omitempty"`
}

// loadUserQueue rebuilds the queue controller from the stored snapshot.
func (h *APIHandler) loadUserQueue(ctx context.Context, userID int64) (*player.Queue, error) {
	snap, err := h.queues.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	q := player.NewQueue()
	if snap != nil {
		q.SetIDs(snap.IDs)
		if snap.ActiveID != "" {
			// A snapshot written by us is always consistent; a stale active
			// id simply stays absent.
			_ = q.SetActive(snap.ActiveID)
		}
	}
	return q, nil
}

// saveUserQueue persists the controller state for the next request.
func (h *APIHandler) saveUserQueue(ctx context.Context, userID int64, q *player.Queue) error {
	snap := cache.QueueSnapshot{IDs: q.IDs()}
	if id, ok := q.ActiveID(); ok {
		snap.ActiveID = id
	}
	return h.queues.Save(ctx, userID, snap)
}

// GetQueueHandler returns the caller's current playback queue.
func (h *APIHandler) GetQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	q, err := h.loadUserQueue(r.Context(), userID)
	if err != nil {
		logger.Error("Failed to load queue", logger.Int64("userId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to load queue", http.StatusInternalServerError)
		return
	}

	resp := SetQueueRequest{IDs: q.IDs()}
	if id, ok := q.ActiveID(); ok {
		resp.ActiveID = id
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetQueueHandler replaces the caller's queue wholesale and optionally sets
// the active track.
func (h *APIHandler) SetQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req SetQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	q := player.NewQueue()
	q.SetIDs(req.IDs)
	if req.ActiveID != "" {
		if err := q.SetActive(req.ActiveID); err != nil {
			if errors.Is(err, player.ErrNotQueued) {
				http.Error(w, "Active track is not in the queue", http.StatusBadRequest)
				return
			}
			http.Error(w, "Failed to set active track", http.StatusInternalServerError)
			return
		}
	}

	if err := h.saveUserQueue(r.Context(), userID, q); err != nil {
		logger.Error("Failed to save queue", logger.Int64("userId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to save queue", http.StatusInternalServerError)
		return
	}

	resp := SetQueueRequest{IDs: q.IDs()}
	if id, ok := q.ActiveID(); ok {
		resp.ActiveID = id
	}
	writeJSON(w, http.StatusOK, resp)
}

// NextTrackHandler advances to the next track with wraparound and returns the
// new active id. An empty queue yields 204 with no body.
func (h *APIHandler) NextTrackHandler(w http.ResponseWriter, r *http.Request) {
	h.stepQueue(w, r, (*player.Queue).Next)
}

// PreviousTrackHandler steps back to the previous track with wraparound and
// returns the new active id. An empty queue yields 204 with no body.
func (h *APIHandler) PreviousTrackHandler(w http.ResponseWriter, r *http.Request) {
	h.stepQueue(w, r, (*player.Queue).Previous)
}

func (h *APIHandler) stepQueue(w http.ResponseWriter, r *http.Request, step func(*player.Queue) (string, bool)) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	q, err := h.loadUserQueue(r.Context(), userID)
	if err != nil {
		logger.Error("Failed to load queue", logger.Int64("userId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to load queue", http.StatusInternalServerError)
		return
	}

	activeID, ok := step(q)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.saveUserQueue(r.Context(), userID, q); err != nil {
		logger.Error("Failed to save queue", logger.Int64("userId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to save queue", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"activeId": activeID})
}

// ResetQueueHandler clears the caller's queue and active track. Used on
// logout or explicit stop.
func (h *APIHandler) ResetQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	if err := h.queues.Delete(r.Context(), userID); err != nil {
		logger.Error("Failed to reset queue", logger.Int64("userId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to reset queue", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
