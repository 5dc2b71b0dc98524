package model

import "time"

// Track represents a single uploaded song.
type Track struct {
	ID        string    `json:"id"` // uuid issued at upload time
	UserID    int64     `json:"userId"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	SongPath  string    `json:"songPath"`  // object key of the audio file
	ImagePath string    `json:"imagePath"` // object key of the artwork
	Duration  float32   `json:"duration,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
