// Package warden defines the domain types and interfaces shared by every
// component of the authenticated session protocol. This package has no
// project imports -- it is the dependency root, the same role
// internal/gateway.go plays in the teacher this module grew out of.
package warden

import (
	"context"
	"time"
)

// --- Users, accounts, sessions ---

// Profile holds the optional extended profile information a user may carry
// when federated identity (OAuth2) is in use. Fields beyond the common ones
// live in Extra, keyed by provider-specific attribute name.
type Profile struct {
	Email  string            `json:"email,omitempty"`
	URL    string            `json:"url,omitempty"`
	Locale string            `json:"locale,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// Merge copies non-empty fields from other into p, favoring other's values.
// Used when a federated login refreshes a previously linked account.
func (p *Profile) Merge(other Profile) {
	if other.Email != "" {
		p.Email = other.Email
	}
	if other.URL != "" {
		p.URL = other.URL
	}
	if other.Locale != "" {
		p.Locale = other.Locale
	}
	if len(other.Extra) > 0 {
		if p.Extra == nil {
			p.Extra = make(map[string]string, len(other.Extra))
		}
		for k, v := range other.Extra {
			p.Extra[k] = v
		}
	}
}

// User is keyed by UserID, which is server-assigned and never reused.
// Name is unique. PasswordHash is opaque (PHC-encoded Argon2id) and absent
// for users who have never set a native password.
type User struct {
	UserID       string
	Name         string
	PasswordHash string
	Profile      Profile
}

// Account links one external-service identity to a local User. The pair
// (Service, Name) is unique; Name is the service's stable external user id,
// not a display name.
type Account struct {
	AccountID string
	Service   string
	Name      string
	UserID    string
	Profile   Profile
}

// Session is keyed by (UserID, SessionID). Token is opaque random bytes
// (>=160 bits) compared for strict equality on every authenticated request;
// Serial is the monotone ratchet counter, starting at 1.
type Session struct {
	UserID          string
	SessionID       string
	ClientPublicKey [32]byte
	Token           []byte
	Serial          uint64
	CreatedAt       time.Time
	AccessedAt      time.Time
}

// Valid reports whether the session has not exceeded the given TTL,
// measured from AccessedAt. A zero ttl means no expiry.
func (s *Session) Valid(ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return time.Since(s.AccessedAt) < ttl
}

// --- Context propagation ---

type contextKey int

const (
	ctxKeyRequestID contextKey = iota
	ctxKeySubject
)

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFromContext extracts the request ID stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// ContextWithSubject stores the authenticated subject in ctx.
func ContextWithSubject(ctx context.Context, s *Subject) context.Context {
	return context.WithValue(ctx, ctxKeySubject, s)
}

// SubjectFromContext extracts the authenticated subject from ctx, or nil if
// the request was anonymous.
func SubjectFromContext(ctx context.Context) *Subject {
	s, _ := ctx.Value(ctxKeySubject).(*Subject)
	return s
}

// Subject is the authenticated caller context built by the per-request
// authenticator out of a validated Session and its owning User. It is the
// thing access-model grants are checked against.
type Subject struct {
	User    *User
	Session *Session
	Roles   []Role
}

// Anonymous returns a Subject representing an unauthenticated caller. Its
// HasPerm reports false for every permission.
func Anonymous() *Subject { return &Subject{} }

// IsAnonymous reports whether the subject carries no session.
func (s *Subject) IsAnonymous() bool { return s == nil || s.Session == nil }
