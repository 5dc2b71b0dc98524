package repository

import (
	"database/sql"
	"fmt"
	"time"

	"echofm/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(track *model.Track) error
	GetTrackByID(id string) (*model.Track, error)
	GetAllTracks() ([]*model.Track, error)
	GetTracksByUserID(userID int64) ([]*model.Track, error)
	SearchTracksByTitle(title string) ([]*model.Track, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{DB: db}
}

const trackColumns = `id, user_id, title, author, song_path, image_path, duration, created_at, updated_at`

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) error {
	query := `INSERT INTO tracks (id, user_id, title, author, song_path, image_path, duration, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	_, err = stmt.Exec(track.ID, track.UserID, track.Title, track.Author,
		track.SongPath, track.ImagePath, track.Duration, now, now)
	if err != nil {
		return fmt.Errorf("failed to execute CreateTrack: %w", err)
	}
	return nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(id string) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	row := r.DB.QueryRow(query, id)

	track := &model.Track{}
	err := row.Scan(&track.ID, &track.UserID, &track.Title, &track.Author,
		&track.SongPath, &track.ImagePath, &track.Duration, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %s: %w", id, err)
	}
	return track, nil
}

// GetAllTracks retrieves every track, newest first.
func (r *mysqlTrackRepository) GetAllTracks() ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks ORDER BY created_at DESC`
	return r.queryTracks(query)
}

// GetTracksByUserID retrieves the tracks a user uploaded, newest first.
func (r *mysqlTrackRepository) GetTracksByUserID(userID int64) ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE user_id = ? ORDER BY created_at DESC`
	return r.queryTracks(query, userID)
}

// SearchTracksByTitle retrieves tracks whose title contains the given
// substring, newest first.
func (r *mysqlTrackRepository) SearchTracksByTitle(title string) ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE title LIKE ? ORDER BY created_at DESC`
	return r.queryTracks(query, "%"+title+"%")
}

func (r *mysqlTrackRepository) queryTracks(query string, args ...interface{}) ([]*model.Track, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track := &model.Track{}
		err := rows.Scan(&track.ID, &track.UserID, &track.Title, &track.Author,
			&track.SongPath, &track.ImagePath, &track.Duration, &track.CreatedAt, &track.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during tracks iteration: %w", err)
	}
	return tracks, nil
}
