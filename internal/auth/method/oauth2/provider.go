package oauth2

import (
	"context"
	"net/http"

	warden "github.com/eugener/warden/internal"
)

// ClientParams carries the per-service credentials and scope, read from
// configuration.
type ClientParams struct {
	ClientID     string
	ClientSecret string
	// RedirectURI is sent as-is in both the authorize URL and the token
	// exchange body; providers reject a mismatch between the two.
	RedirectURI string
	Scope       string
	// ExtraAuthorizeParams/ExtraTokenParams are provider-specific query
	// parameters beyond the common set (e.g. Yandex's force_confirm).
	ExtraAuthorizeParams map[string]string
	ExtraTokenParams     map[string]string
}

// AccountData is the normalized profile a provider's FetchUserProfile
// returns: Name is the service's stable external user id (never a display
// name, since it's the join key for the account store).
type AccountData struct {
	Name    string
	Profile warden.Profile
}

// Provider is one OAuth2 identity provider (Github, Google, Yandex,
// VKontakte, ...).
type Provider interface {
	// Name is this provider's service key, used as the AuthInfo entry key
	// and matched against UserIdent's "service" field.
	Name() string
	AuthorizeEndpoint() string
	AccessTokenEndpoint() string
	DefaultScope() string
	// FetchUserProfile calls the provider's profile endpoint with
	// accessToken and normalizes the result.
	FetchUserProfile(ctx context.Context, client *http.Client, accessToken string) (AccountData, error)
}
