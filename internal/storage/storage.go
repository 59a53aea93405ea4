// Package storage defines persistence-agnostic contracts for the session,
// user, and account records (component C2). Every operation returns
// asynchronously (via context.Context) and may fail with a backend-specific
// error; the authentication protocol folds any such failure into a generic
// BackendError, per spec. Reads and writes must be safe under concurrent
// calls; a Put following a Get must see that Get's value or a later one for
// the same key.
package storage

import (
	"context"

	warden "github.com/eugener/warden/internal"
)

// SessionStore manages session persistence.
type SessionStore interface {
	// FindByUserAndCtime returns the session whose CreatedAt equals ctime
	// for this user, if any -- used to detect replay of a login envelope.
	FindByUserAndCtime(ctx context.Context, userID string, ctime int64) (*warden.Session, error)
	// Get returns the session for (userID, sessionID), or ErrNotFound.
	Get(ctx context.Context, userID, sessionID string) (*warden.Session, error)
	// Put inserts or overwrites by (UserID, SessionID). On first insert
	// (SessionID == ""), a fresh SessionID is assigned -- "next available
	// for this user" -- and the assigned session is returned.
	Put(ctx context.Context, session *warden.Session) (*warden.Session, error)
	// Delete removes the session for (userID, sessionID). Deleting an
	// absent session is not an error.
	Delete(ctx context.Context, userID, sessionID string) error
	// ListByUser returns every live session for a user.
	ListByUser(ctx context.Context, userID string) ([]*warden.Session, error)
	// DeleteAll removes every session for a user (e.g. "log out everywhere").
	DeleteAll(ctx context.Context, userID string) error
	// NewForUser materializes a fresh session: generates Token, sets
	// Serial=1, CreatedAt=time.UnixMilli(ctime) so a later
	// FindByUserAndCtime replay check can find it, AccessedAt=now, then
	// stores it.
	NewForUser(ctx context.Context, userID string, ctime int64, clientPublicKey [envelopeKeySize]byte) (*warden.Session, error)
}

// envelopeKeySize mirrors envelope.KeySize without importing the envelope
// package, keeping storage's dependency surface to the domain root only.
const envelopeKeySize = 32

// UserStore manages user persistence.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*warden.User, error)
	GetByName(ctx context.Context, name string) (*warden.User, error)
	CreateUser(ctx context.Context, user *warden.User) error
	UpdateUser(ctx context.Context, user *warden.User) error
}

// AccountStore manages federated-identity account persistence.
type AccountStore interface {
	GetByServiceAndName(ctx context.Context, service, name string) (*warden.Account, error)
	CreateAccount(ctx context.Context, account *warden.Account) error
	UpdateAccount(ctx context.Context, account *warden.Account) error
}

// Store combines every persistence contract the protocol depends on.
type Store interface {
	SessionStore
	UserStore
	AccountStore
	Close() error
}
