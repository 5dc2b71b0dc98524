package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"echofm/model"
)

// LikeRepository defines the interface for liked-track operations.
type LikeRepository interface {
	LikeTrack(userID int64, trackID string) error
	UnlikeTrack(userID int64, trackID string) error
	IsLiked(userID int64, trackID string) (bool, error)
	GetLikedTracks(userID int64) ([]*model.Track, error)
}

// mysqlLikeRepository implements LikeRepository for MySQL.
type mysqlLikeRepository struct {
	DB *sql.DB
}

// NewMySQLLikeRepository creates a new instance of mysqlLikeRepository.
func NewMySQLLikeRepository(db *sql.DB) LikeRepository {
	return &mysqlLikeRepository{DB: db}
}

// LikeTrack records that a user liked a track. Liking twice is a no-op.
func (r *mysqlLikeRepository) LikeTrack(userID int64, trackID string) error {
	query := `INSERT INTO liked_tracks (user_id, track_id, created_at) VALUES (?, ?, ?)`
	_, err := r.DB.Exec(query, userID, trackID, time.Now())
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			return nil // already liked
		}
		return fmt.Errorf("failed to like track %s for user %d: %w", trackID, userID, err)
	}
	return nil
}

// UnlikeTrack removes a like. Removing a non-existent like is a no-op.
func (r *mysqlLikeRepository) UnlikeTrack(userID int64, trackID string) error {
	query := `DELETE FROM liked_tracks WHERE user_id = ? AND track_id = ?`
	_, err := r.DB.Exec(query, userID, trackID)
	if err != nil {
		return fmt.Errorf("failed to unlike track %s for user %d: %w", trackID, userID, err)
	}
	return nil
}

// IsLiked reports whether the user has liked the track.
func (r *mysqlLikeRepository) IsLiked(userID int64, trackID string) (bool, error) {
	query := `SELECT 1 FROM liked_tracks WHERE user_id = ? AND track_id = ?`
	var one int
	err := r.DB.QueryRow(query, userID, trackID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check like for track %s: %w", trackID, err)
	}
	return true, nil
}

// GetLikedTracks retrieves the tracks a user liked, most recently liked first.
func (r *mysqlLikeRepository) GetLikedTracks(userID int64) ([]*model.Track, error) {
	query := `SELECT t.id, t.user_id, t.title, t.author, t.song_path, t.image_path, t.duration, t.created_at, t.updated_at
	           FROM liked_tracks l
	           JOIN tracks t ON t.id = l.track_id
	           WHERE l.user_id = ?
	           ORDER BY l.created_at DESC`
	rows, err := r.DB.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query liked tracks for user %d: %w", userID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track := &model.Track{}
		err := rows.Scan(&track.ID, &track.UserID, &track.Title, &track.Author,
			&track.SongPath, &track.ImagePath, &track.Duration, &track.CreatedAt, &track.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan liked track row: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during liked tracks iteration: %w", err)
	}
	return tracks, nil
}
