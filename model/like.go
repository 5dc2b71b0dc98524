package model

import "time"

// LikedTrack links a user to a track they have liked.
type LikedTrack struct {
	UserID    int64     `json:"userId"`
	TrackID   string    `json:"trackId"`
	CreatedAt time.Time `json:"createdAt"`
}
