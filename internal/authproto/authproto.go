// Package authproto implements the authentication protocol (component
// C5): the three public operations -- publish server info, perform
// login, authenticate a per-request sealed header -- verbatim per
// spec.md 4.5. It depends only on the sealed envelope (C1), the method
// algebra (C4), and the storage contracts (C2); HTTP routing is a
// separate external collaborator (internal/server).
package authproto

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	warden "github.com/eugener/warden/internal"
	"github.com/eugener/warden/internal/auth/method"
	"github.com/eugener/warden/internal/envelope"
	"github.com/eugener/warden/internal/storage"
)

// skewTolerance is the maximum allowed difference between client and
// server clocks at login, per spec.md 4.5.2 step 2.
const skewTolerance = 3 * time.Second

// ServerInfo is the unencrypted reply to GET /auth.
type ServerInfo struct {
	Ctime int64           `json:"ctime"`
	Pbkey string          `json:"pbkey"`
	Authm json.RawMessage `json:"authm"`
}

// LoginRequest is the plaintext sealed inside POST /auth's body.
type LoginRequest struct {
	Ctime int64           `json:"ctime"`
	Pbkey string          `json:"pbkey"`
	Ident json.RawMessage `json:"ident"`
}

// LoginResponse is the plaintext sealed inside POST /auth's reply.
type LoginResponse struct {
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id"`
	Token     string            `json:"token"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// AuthData is the plaintext sealed inside the X-Auth header of every
// authenticated request.
type AuthData struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	Serial    uint64 `json:"serial"`
}

// Protocol ties the sealed envelope, the composed authentication method,
// and the session/user stores into the three public operations.
type Protocol struct {
	Keys     *envelope.KeyPair
	Method   method.Method
	Sessions storage.SessionStore
	Users    storage.UserStore
	// SessionTTL bounds a session's idle lifetime (spec.md 4.5.3
	// "Timeouts"); zero means no expiry.
	SessionTTL time.Duration
	// DefaultRoles is attached to every Subject built by Authenticate;
	// applications that need per-user roles look them up themselves and
	// override Subject.Roles downstream.
	DefaultRoles []warden.Role
	// Now is overridable for deterministic tests; nil means time.Now.
	Now func() time.Time
}

func (p *Protocol) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// ServerInfo implements GET /auth: publishes the server's envelope
// public key, current time, and composed AuthInfo.
func (p *Protocol) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	authm, err := p.Method.Info(ctx)
	if err != nil {
		return nil, warden.NewProtoError(warden.KindBackendError, err)
	}
	return &ServerInfo{
		Ctime: p.now().UnixMilli(),
		Pbkey: base64.StdEncoding.EncodeToString(p.Keys.Public[:]),
		Authm: authm,
	}, nil
}

// Login implements POST /auth: opens the sealed request, dispatches to
// the method algebra, enforces replay defense, and seals a fresh session
// credential under the client's public key.
//
// A *warden.ProtoError of KindNeedRetry is a normal outcome (OTP first
// leg): the caller should surface it to the client, not treat it as a
// server failure.
func (p *Protocol) Login(ctx context.Context, sealedBody string) (string, error) {
	var req LoginRequest
	if err := envelope.OpenJSON(sealedBody, p.Keys, &req); err != nil {
		return "", warden.NewProtoError(warden.KindCryptoError, err)
	}

	if skew := p.now().UnixMilli() - req.Ctime; abs64(skew) > skewTolerance.Milliseconds() {
		return "", warden.NewProtoError(warden.KindOutdated, nil)
	}

	user, err := p.Method.TryAuth(ctx, req.Ctime, req.Ident)
	if err != nil {
		return "", err
	}

	clientKey, err := decodeClientKey(req.Pbkey)
	if err != nil {
		return "", warden.NewProtoError(warden.KindCryptoError, err)
	}

	if existing, err := p.Sessions.FindByUserAndCtime(ctx, user.UserID, req.Ctime); err == nil && existing != nil {
		return "", warden.NewProtoError(warden.KindOutdated, nil)
	} else if err != nil && err != warden.ErrNotFound {
		return "", warden.NewProtoError(warden.KindBackendError, err)
	}

	sess, err := p.Sessions.NewForUser(ctx, user.UserID, req.Ctime, clientKey)
	if err != nil {
		return "", warden.NewProtoError(warden.KindBackendError, err)
	}

	resp := LoginResponse{
		UserID:    user.UserID,
		SessionID: sess.SessionID,
		Token:     base64.StdEncoding.EncodeToString(sess.Token),
		Extra:     flattenProfile(user.Profile),
	}
	sealed, err := envelope.SealJSON(resp, clientKey)
	if err != nil {
		return "", warden.NewProtoError(warden.KindCryptoError, err)
	}
	return sealed, nil
}

// Authenticate implements the per-request X-Auth filter: opens the
// sealed header, validates (token, serial) by strict equality, ratchets
// the serial, and returns an authenticated Subject.
func (p *Protocol) Authenticate(ctx context.Context, sealedHeader string) (*warden.Subject, error) {
	var data AuthData
	if err := envelope.OpenJSON(sealedHeader, p.Keys, &data); err != nil {
		return nil, warden.NewProtoError(warden.KindCryptoError, err)
	}

	sess, err := p.Sessions.Get(ctx, data.UserID, data.SessionID)
	if err != nil {
		if err == warden.ErrNotFound {
			return nil, warden.NewProtoError(warden.KindLostSession, nil)
		}
		return nil, warden.NewProtoError(warden.KindBackendError, err)
	}

	if p.SessionTTL > 0 && !sess.Valid(p.SessionTTL) {
		return nil, warden.NewProtoError(warden.KindLostSession, nil)
	}

	token, err := base64.StdEncoding.DecodeString(data.Token)
	if err != nil || !constantTimeEqual(token, sess.Token) || data.Serial != sess.Serial {
		return nil, warden.NewProtoError(warden.KindBadSession, nil)
	}

	sess.Serial++
	sess.AccessedAt = p.now()
	if _, err := p.Sessions.Put(ctx, sess); err != nil {
		return nil, warden.NewProtoError(warden.KindBackendError, err)
	}

	user, err := p.Users.GetUser(ctx, data.UserID)
	if err != nil {
		if err == warden.ErrNotFound {
			return nil, warden.NewProtoError(warden.KindBadUser, nil)
		}
		return nil, warden.NewProtoError(warden.KindBackendError, err)
	}

	return &warden.Subject{User: user, Session: sess, Roles: p.DefaultRoles}, nil
}

func decodeClientKey(b64 string) ([envelope.KeySize]byte, error) {
	var key [envelope.KeySize]byte
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return key, fmt.Errorf("authproto: decode client pbkey: %w", err)
	}
	if len(raw) != envelope.KeySize {
		return key, fmt.Errorf("authproto: client pbkey has wrong length %d", len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// flattenProfile renders non-empty profile fields as the "extra"
// user-visible info accompanying a login response.
func flattenProfile(p warden.Profile) map[string]string {
	extra := make(map[string]string, len(p.Extra)+3)
	if p.Email != "" {
		extra["email"] = p.Email
	}
	if p.URL != "" {
		extra["url"] = p.URL
	}
	if p.Locale != "" {
		extra["locale"] = p.Locale
	}
	for k, v := range p.Extra {
		extra[k] = v
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// constantTimeEqual reports whether a and b are equal, in time independent
// of where they first differ. Session tokens are compared this way on
// every authenticated request.
func constantTimeEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
