package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"echofm/logger"
	"echofm/model"
	"echofm/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// 上传文件大小上限：50MB 音频 + 5MB 封面
const (
	maxUploadSize = 55 << 20
	maxSongSize   = 50 << 20
	maxImageSize  = 5 << 20
)

var nonAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)
var multipleSpaces = regexp.MustCompile(`\s+`)

// generateSafeObjectPrefix builds a storage-safe name fragment from the track
// title.
func generateSafeObjectPrefix(title string) string {
	base := strings.TrimSpace(title)
	if base == "" {
		base = "Untitled_Track"
	}
	base = multipleSpaces.ReplaceAllString(base, "_")
	base = nonAlphaNumeric.ReplaceAllString(base, "")
	if len(base) > 100 {
		base = base[:100]
	}
	if base == "" {
		base = "track"
	}
	return base
}

// GetTracksHandler lists tracks, newest first. Supports ?title= substring
// search and ?mine=1 for the caller's own uploads.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	var tracks []*model.Track
	var err error

	switch {
	case r.URL.Query().Get("mine") == "1":
		userID, uerr := GetUserIDFromContext(r.Context())
		if uerr != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		tracks, err = h.trackRepo.GetTracksByUserID(userID)
	case r.URL.Query().Get("title") != "":
		tracks, err = h.trackRepo.SearchTracksByTitle(r.URL.Query().Get("title"))
	default:
		tracks, err = h.trackRepo.GetAllTracks()
	}

	if err != nil {
		logger.Error("Failed to list tracks", logger.ErrorField(err))
		http.Error(w, "Failed to list tracks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// GetTrackHandler returns a single track by id.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		logger.Error("Failed to get track", logger.String("trackId", trackID), logger.ErrorField(err))
		http.Error(w, "Failed to get track", http.StatusInternalServerError)
		return
	}
	if track == nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// UploadTrackHandler accepts a multipart upload with title, author, a song
// file and an artwork file, stores both objects and records the track.
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		logger.Warn("Upload request too large or malformed", logger.ErrorField(err))
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	author := strings.TrimSpace(r.FormValue("author"))
	if title == "" || author == "" {
		http.Error(w, "Title and author are required", http.StatusBadRequest)
		return
	}

	songFile, songHeader, err := r.FormFile("song")
	if err != nil {
		http.Error(w, "Song file is required", http.StatusBadRequest)
		return
	}
	defer songFile.Close()
	if songHeader.Size > maxSongSize {
		http.Error(w, "Song file too large", http.StatusBadRequest)
		return
	}

	imageFile, imageHeader, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "Image file is required", http.StatusBadRequest)
		return
	}
	defer imageFile.Close()
	if imageHeader.Size > maxImageSize {
		http.Error(w, "Image file too large", http.StatusBadRequest)
		return
	}

	trackID := uuid.NewString()
	prefix := generateSafeObjectPrefix(title)
	songPath := fmt.Sprintf("songs/%s-%s%s", prefix, trackID, filepath.Ext(songHeader.Filename))
	imagePath := fmt.Sprintf("images/%s-%s%s", prefix, trackID, filepath.Ext(imageHeader.Filename))

	ctx := r.Context()
	if err := storage.UploadObject(ctx, songPath, songFile, songHeader.Size,
		songHeader.Header.Get("Content-Type")); err != nil {
		logger.Error("Failed to upload song object", logger.ErrorField(err))
		http.Error(w, "Failed to store song", http.StatusInternalServerError)
		return
	}
	if err := storage.UploadObject(ctx, imagePath, imageFile, imageHeader.Size,
		imageHeader.Header.Get("Content-Type")); err != nil {
		logger.Error("Failed to upload image object", logger.ErrorField(err))
		// roll back the song object so no orphan remains
		if rerr := storage.RemoveObject(ctx, songPath); rerr != nil {
			logger.Warn("Failed to roll back song object", logger.ErrorField(rerr))
		}
		http.Error(w, "Failed to store artwork", http.StatusInternalServerError)
		return
	}

	track := &model.Track{
		ID:        trackID,
		UserID:    userID,
		Title:     title,
		Author:    author,
		SongPath:  songPath,
		ImagePath: imagePath,
	}
	if err := h.trackRepo.CreateTrack(track); err != nil {
		logger.Error("Failed to create track record", logger.ErrorField(err))
		http.Error(w, "Failed to create track", http.StatusInternalServerError)
		return
	}

	logger.Info("Track uploaded",
		logger.String("trackId", trackID),
		logger.Int64("userId", userID),
		logger.String("title", title))
	writeJSON(w, http.StatusCreated, track)
}

// TrackURLHandler resolves the stored object paths of a track to fetchable
// URLs: path in, URL out.
func (h *APIHandler) TrackURLHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		logger.Error("Failed to get track", logger.String("trackId", trackID), logger.ErrorField(err))
		http.Error(w, "Failed to get track", http.StatusInternalServerError)
		return
	}
	if track == nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	songURL, err := storage.ResolveURL(r.Context(), track.SongPath)
	if err != nil {
		logger.Error("Failed to resolve song URL", logger.String("trackId", trackID), logger.ErrorField(err))
		http.Error(w, "Failed to resolve song URL", http.StatusInternalServerError)
		return
	}

	response := map[string]string{"songUrl": songURL}
	if track.ImagePath != "" {
		imageURL, err := storage.ResolveURL(r.Context(), track.ImagePath)
		if err != nil {
			logger.Warn("Failed to resolve image URL", logger.String("trackId", trackID), logger.ErrorField(err))
		} else {
			response["imageUrl"] = imageURL
		}
	}
	writeJSON(w, http.StatusOK, response)
}
