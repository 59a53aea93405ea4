package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	warden "github.com/eugener/warden/internal"
)

const sessionTokenSize = 20

// FindByUserAndCtime returns the session whose CreatedAt equals ctime (a
// millisecond Unix timestamp) for this user, if any.
func (s *Store) FindByUserAndCtime(ctx context.Context, userID string, ctime int64) (*warden.Session, error) {
	want := time.UnixMilli(ctime)
	row := s.read.QueryRowContext(ctx,
		`SELECT user_id, session_id, client_public_key, token, serial, created_at, accessed_at
		 FROM sessions WHERE user_id = ? AND created_at = ?`,
		userID, timeToStr(want),
	)
	return scanSession(row)
}

// Get returns the session for (userID, sessionID).
func (s *Store) Get(ctx context.Context, userID, sessionID string) (*warden.Session, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT user_id, session_id, client_public_key, token, serial, created_at, accessed_at
		 FROM sessions WHERE user_id = ? AND session_id = ?`,
		userID, sessionID,
	)
	return scanSession(row)
}

// Put inserts or overwrites a session by (UserID, SessionID). On first
// insert (SessionID == ""), a fresh per-user session id is assigned.
func (s *Store) Put(ctx context.Context, session *warden.Session) (*warden.Session, error) {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sess := *session
	if sess.SessionID == "" {
		id, err := nextSessionID(ctx, tx, sess.UserID)
		if err != nil {
			return nil, err
		}
		sess.SessionID = id
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (user_id, session_id, client_public_key, token, serial, created_at, accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, session_id) DO UPDATE SET
		   client_public_key = excluded.client_public_key,
		   token             = excluded.token,
		   serial            = excluded.serial,
		   accessed_at       = excluded.accessed_at`,
		sess.UserID, sess.SessionID, sess.ClientPublicKey[:], sess.Token, sess.Serial,
		timeToStr(sess.CreatedAt), timeToStr(sess.AccessedAt),
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Delete removes the session for (userID, sessionID). Deleting an absent
// session is not an error.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	_, err := s.write.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = ? AND session_id = ?`, userID, sessionID)
	return err
}

// ListByUser returns every live session for a user.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*warden.Session, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT user_id, session_id, client_public_key, token, serial, created_at, accessed_at
		 FROM sessions WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*warden.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteAll removes every session for a user.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	_, err := s.write.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

// NewForUser materializes a fresh session: generates Token, sets Serial=1,
// CreatedAt=time.UnixMilli(ctime) so a later FindByUserAndCtime replay
// check can find it, AccessedAt=now, then stores it.
func (s *Store) NewForUser(ctx context.Context, userID string, ctime int64, clientPublicKey [32]byte) (*warden.Session, error) {
	token := make([]byte, sessionTokenSize)
	if _, err := rand.Read(token); err != nil {
		return nil, fmt.Errorf("sqlite: generate session token: %w", err)
	}
	createdAt := time.UnixMilli(ctime)
	now := time.Now().UTC()

	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sessionID, err := nextSessionID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	sess := &warden.Session{
		UserID:          userID,
		SessionID:       sessionID,
		ClientPublicKey: clientPublicKey,
		Token:           token,
		Serial:          1,
		CreatedAt:       createdAt,
		AccessedAt:      now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (user_id, session_id, client_public_key, token, serial, created_at, accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.UserID, sess.SessionID, sess.ClientPublicKey[:], sess.Token, sess.Serial,
		timeToStr(sess.CreatedAt), timeToStr(sess.AccessedAt),
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sess, nil
}

// nextSessionID allocates the next session id for a user from
// session_counters, creating the counter row on first use. Must run inside
// tx so the allocation is atomic with the session insert.
func nextSessionID(ctx context.Context, tx *sql.Tx, userID string) (string, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO session_counters (user_id, next) VALUES (?, 0)
		 ON CONFLICT(user_id) DO NOTHING`, userID)
	if err != nil {
		return "", err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE session_counters SET next = next + 1 WHERE user_id = ?`, userID)
	if err != nil {
		return "", err
	}
	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT next FROM session_counters WHERE user_id = ?`, userID).Scan(&next); err != nil {
		return "", err
	}
	return strconv.FormatInt(next, 10), nil
}

func scanSession(row scanner) (*warden.Session, error) {
	var sess warden.Session
	var clientPubKey, token []byte
	var createdAt, accessedAt string

	err := row.Scan(
		&sess.UserID, &sess.SessionID, &clientPubKey, &token, &sess.Serial,
		&createdAt, &accessedAt,
	)
	if err != nil {
		return nil, notFoundErr(err)
	}
	copy(sess.ClientPublicKey[:], clientPubKey)
	sess.Token = token

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse created_at: %w", err)
	}
	sess.CreatedAt = created

	accessed, err := parseTime(accessedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse accessed_at: %w", err)
	}
	sess.AccessedAt = accessed

	return &sess, nil
}
