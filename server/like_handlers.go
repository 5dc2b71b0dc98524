package server

import (
	"net/http"

	"echofm/logger"

	"github.com/gorilla/mux"
)

// LikeTrackHandler records that the caller liked a track.
func (h *APIHandler) LikeTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	trackID := mux.Vars(r)["id"]

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		logger.Error("Failed to get track for like", logger.String("trackId", trackID), logger.ErrorField(err))
		http.Error(w, "Failed to like track", http.StatusInternalServerError)
		return
	}
	if track == nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	if err := h.likeRepo.LikeTrack(userID, trackID); err != nil {
		logger.Error("Failed to like track", logger.String("trackId", trackID), logger.ErrorField(err))
		http.Error(w, "Failed to like track", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": true})
}

// UnlikeTrackHandler removes the caller's like from a track.
func (h *APIHandler) UnlikeTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	trackID := mux.Vars(r)["id"]

	if err := h.likeRepo.UnlikeTrack(userID, trackID); err != nil {
		logger.Error("Failed to unlike track", logger.String("trackId", trackID), logger.ErrorField(err))
		http.Error(w, "Failed to unlike track", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": false})
}

// GetLikedTracksHandler lists the caller's liked tracks, most recently liked
// first.
func (h *APIHandler) GetLikedTracksHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	tracks, err := h.likeRepo.GetLikedTracks(userID)
	if err != nil {
		logger.Error("Failed to list liked tracks", logger.Int64("userId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to list liked tracks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}
