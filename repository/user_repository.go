package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"echofm/model"
)

// ErrDuplicateUser is returned when a username or email is already taken.
var ErrDuplicateUser = errors.New("username or email already exists")

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	CreateUser(user *model.User) (int64, error)
	GetUserByID(id int64) (*model.User, error)
	GetUserByEmail(email string) (*model.User, error)
	GetUserByUsername(username string) (*model.User, error)
	UpdateBillingDetails(userID int64, billingAddress, paymentMethod string) error
}

// mysqlUserRepository implements UserRepository for MySQL.
type mysqlUserRepository struct {
	DB *sql.DB
}

// NewMySQLUserRepository creates a new instance of mysqlUserRepository.
func NewMySQLUserRepository(db *sql.DB) UserRepository {
	return &mysqlUserRepository{DB: db}
}

// CreateUser adds a new user to the database.
func (r *mysqlUserRepository) CreateUser(user *model.User) (int64, error) {
	query := `INSERT INTO users (username, email, password_hash, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateUser: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(user.Username, user.Email, user.PasswordHash, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			return 0, ErrDuplicateUser
		}
		return 0, fmt.Errorf("failed to execute CreateUser: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateUser: %w", err)
	}
	return id, nil
}

// GetUserByID retrieves a user by primary key.
func (r *mysqlUserRepository) GetUserByID(id int64) (*model.User, error) {
	return r.getUser(`SELECT id, username, email, password_hash, billing_address, payment_method, created_at, updated_at
	                   FROM users WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email address.
func (r *mysqlUserRepository) GetUserByEmail(email string) (*model.User, error) {
	return r.getUser(`SELECT id, username, email, password_hash, billing_address, payment_method, created_at, updated_at
	                   FROM users WHERE email = ?`, email)
}

// GetUserByUsername retrieves a user by username.
func (r *mysqlUserRepository) GetUserByUsername(username string) (*model.User, error) {
	return r.getUser(`SELECT id, username, email, password_hash, billing_address, payment_method, created_at, updated_at
	                   FROM users WHERE username = ?`, username)
}

func (r *mysqlUserRepository) getUser(query string, arg interface{}) (*model.User, error) {
	row := r.DB.QueryRow(query, arg)

	user := &model.User{}
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.BillingAddress, &user.PaymentMethod, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}

// UpdateBillingDetails stores the billing address and payment method metadata
// copied from the payment provider on first subscription.
func (r *mysqlUserRepository) UpdateBillingDetails(userID int64, billingAddress, paymentMethod string) error {
	query := `UPDATE users SET billing_address = ?, payment_method = ?, updated_at = ? WHERE id = ?`
	res, err := r.DB.Exec(query, billingAddress, paymentMethod, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update billing details for user %d: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no user with ID %d", userID)
	}
	return nil
}
