package native

import (
	"context"
	"encoding/json"

	warden "github.com/eugener/warden/internal"
	"github.com/eugener/warden/internal/auth/method"
	"github.com/eugener/warden/internal/storage"
)

// userIdent is the UserIdent shape this method matches on: both fields are
// mandatory, unlike OTP's optional pass.
type userIdent struct {
	Name string `json:"name"`
	Pass string `json:"pass"`
}

// Method authenticates by looking up a user by name and verifying pass
// against the user's stored Argon2id hash.
type Method struct {
	users storage.UserStore
}

// New returns a native password Method backed by users.
func New(users storage.UserStore) *Method {
	return &Method{users: users}
}

func (m *Method) Name() string { return "native" }

// Info advertises only presence -- the spec calls for no parameters beyond
// "this method exists".
func (m *Method) Info(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (m *Method) Matches(ident json.RawMessage) bool {
	inner, ok := method.Unwrap(ident, m.Name())
	if !ok {
		return false
	}
	var i userIdent
	if err := json.Unmarshal(inner, &i); err != nil {
		return false
	}
	return i.Name != "" && i.Pass != ""
}

// TryAuth looks up the user by name and verifies pass in constant time
// against the stored hash. The cleartext password is referenced only for
// the duration of this call.
func (m *Method) TryAuth(ctx context.Context, _ int64, ident json.RawMessage) (*warden.User, error) {
	inner, ok := method.Unwrap(ident, m.Name())
	if !ok {
		return nil, warden.NewProtoError(warden.KindBadMethod, nil)
	}
	var i userIdent
	if err := json.Unmarshal(inner, &i); err != nil {
		return nil, warden.NewProtoError(warden.KindBadMethod, err)
	}

	user, err := m.users.GetByName(ctx, i.Name)
	if err != nil {
		if err == warden.ErrNotFound {
			return nil, warden.NewProtoError(warden.KindBadIdent, nil)
		}
		return nil, warden.NewProtoError(warden.KindBackendError, err)
	}
	if user.PasswordHash == "" {
		return nil, warden.NewProtoError(warden.KindBadIdent, nil)
	}
	if !VerifyPassword(user.PasswordHash, i.Pass) {
		return nil, warden.NewProtoError(warden.KindBadIdent, nil)
	}
	return user, nil
}
