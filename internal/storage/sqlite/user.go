package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	warden "github.com/eugener/warden/internal"
)

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (*warden.User, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT id, name, password_hash, profile_json FROM users WHERE id = ?`, userID)
	return scanUser(row)
}

// GetByName retrieves a user by its unique name.
func (s *Store) GetByName(ctx context.Context, name string) (*warden.User, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT id, name, password_hash, profile_json FROM users WHERE name = ?`, name)
	return scanUser(row)
}

// CreateUser inserts a new user, assigning a fresh UserID if unset.
func (s *Store) CreateUser(ctx context.Context, user *warden.User) error {
	if user.UserID == "" {
		user.UserID = uuid.Must(uuid.NewV7()).String()
	}
	profile, err := json.Marshal(user.Profile)
	if err != nil {
		return fmt.Errorf("sqlite: marshal profile: %w", err)
	}
	_, err = s.write.ExecContext(ctx,
		`INSERT INTO users (id, name, password_hash, profile_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.UserID, user.Name, user.PasswordHash, string(profile), timeToStr(time.Now().UTC()),
	)
	if isUniqueViolation(err) {
		return warden.ErrConflict
	}
	return err
}

// UpdateUser updates an existing user's mutable fields.
func (s *Store) UpdateUser(ctx context.Context, user *warden.User) error {
	profile, err := json.Marshal(user.Profile)
	if err != nil {
		return fmt.Errorf("sqlite: marshal profile: %w", err)
	}
	result, err := s.write.ExecContext(ctx,
		`UPDATE users SET name = ?, password_hash = ?, profile_json = ? WHERE id = ?`,
		user.Name, user.PasswordHash, string(profile), user.UserID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return warden.ErrConflict
		}
		return err
	}
	return checkRowsAffected(result, "user")
}

func scanUser(row scanner) (*warden.User, error) {
	var u warden.User
	var profileJSON sql.NullString
	if err := row.Scan(&u.UserID, &u.Name, &u.PasswordHash, &profileJSON); err != nil {
		return nil, notFoundErr(err)
	}
	if profileJSON.Valid && profileJSON.String != "" {
		if err := json.Unmarshal([]byte(profileJSON.String), &u.Profile); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal profile: %w", err)
		}
	}
	return &u, nil
}
