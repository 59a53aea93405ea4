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

// GetByServiceAndName retrieves a federated account by (service, name).
func (s *Store) GetByServiceAndName(ctx context.Context, service, name string) (*warden.Account, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT id, service, name, user_id, profile_json FROM accounts WHERE service = ? AND name = ?`,
		service, name)
	return scanAccount(row)
}

// CreateAccount inserts a new federated account, assigning a fresh
// AccountID if unset.
func (s *Store) CreateAccount(ctx context.Context, account *warden.Account) error {
	if account.AccountID == "" {
		account.AccountID = uuid.Must(uuid.NewV7()).String()
	}
	profile, err := json.Marshal(account.Profile)
	if err != nil {
		return fmt.Errorf("sqlite: marshal profile: %w", err)
	}
	_, err = s.write.ExecContext(ctx,
		`INSERT INTO accounts (id, service, name, user_id, profile_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		account.AccountID, account.Service, account.Name, account.UserID, string(profile),
		timeToStr(time.Now().UTC()),
	)
	if isUniqueViolation(err) {
		return warden.ErrConflict
	}
	return err
}

// UpdateAccount updates an existing federated account, typically to
// re-link it to a different user.
func (s *Store) UpdateAccount(ctx context.Context, account *warden.Account) error {
	profile, err := json.Marshal(account.Profile)
	if err != nil {
		return fmt.Errorf("sqlite: marshal profile: %w", err)
	}
	result, err := s.write.ExecContext(ctx,
		`UPDATE accounts SET user_id = ?, profile_json = ? WHERE id = ?`,
		account.UserID, string(profile), account.AccountID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "account")
}

func scanAccount(row scanner) (*warden.Account, error) {
	var a warden.Account
	var profileJSON sql.NullString
	if err := row.Scan(&a.AccountID, &a.Service, &a.Name, &a.UserID, &profileJSON); err != nil {
		return nil, notFoundErr(err)
	}
	if profileJSON.Valid && profileJSON.String != "" {
		if err := json.Unmarshal([]byte(profileJSON.String), &a.Profile); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal profile: %w", err)
		}
	}
	return &a, nil
}
