// Package oauth2 implements the OAuth2 federation method (component
// C4.3): code-to-token exchange, profile fetch, and account-to-user
// linkage or auto-provisioning, for a configurable set of providers.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	goauth2 "golang.org/x/oauth2"

	warden "github.com/eugener/warden/internal"
	"github.com/eugener/warden/internal/auth/method"
	"github.com/eugener/warden/internal/circuitbreaker"
	"github.com/eugener/warden/internal/storage"
	"github.com/eugener/warden/internal/telemetry"
)

// userIdent is the UserIdent shape this method matches: Service names the
// registered provider; Code and State come from the provider's redirect.
type userIdent struct {
	Service string `json:"service"`
	Code    string `json:"code"`
	State   string `json:"state"`
}

// registration pairs a provider implementation with its configured
// credentials.
type registration struct {
	provider Provider
	params   ClientParams
}

// Method dispatches OAuth2 logins across a registered set of providers,
// linking or auto-provisioning a local user on success.
type Method struct {
	users    storage.UserStore
	accounts storage.AccountStore
	client   *http.Client
	breakers *circuitbreaker.Registry

	// Metrics, if set, receives circuit breaker state and rejection
	// counts keyed by OAuth2 service name.
	Metrics *telemetry.Metrics

	order []string // registration order, preserved in AuthInfo
	regs  map[string]registration
}

// New returns an OAuth2 Method with no providers registered; call
// Register for each configured service. client is the outbound HTTP
// client used for both token exchange and profile fetch (normally one
// built over internal/transport with DNS caching); breakers tracks
// per-service health.
func New(users storage.UserStore, accounts storage.AccountStore, client *http.Client, breakers *circuitbreaker.Registry) *Method {
	return &Method{
		users:    users,
		accounts: accounts,
		client:   client,
		breakers: breakers,
		regs:     make(map[string]registration),
	}
}

// Register adds provider under its own Name(), configured with params.
// Registering the same name twice replaces the prior registration without
// changing its position in AuthInfo order.
func (m *Method) Register(p Provider, params ClientParams) {
	name := p.Name()
	if _, exists := m.regs[name]; !exists {
		m.order = append(m.order, name)
	}
	m.regs[name] = registration{provider: p, params: params}
}

func (m *Method) Name() string { return "oauth2" }

// authInfoEntry is one service's AuthInfo fragment: its authorize URL,
// lacking only the state parameter (appended by the caller per login
// attempt).
type authInfoEntry struct {
	AuthorizeURL string `json:"authorize_url"`
}

// Info enumerates every registered service with its pre-built authorize
// URL, in registration order.
func (m *Method) Info(context.Context) (json.RawMessage, error) {
	fragments := make(map[string]json.RawMessage, len(m.order))
	for _, name := range m.order {
		reg := m.regs[name]
		entry, err := json.Marshal(authInfoEntry{AuthorizeURL: m.buildAuthorizeURL(reg)})
		if err != nil {
			return nil, err
		}
		fragments[name] = entry
	}
	return marshalOrdered(m.order, fragments)
}

func (m *Method) buildAuthorizeURL(reg registration) string {
	scope := reg.params.Scope
	if scope == "" {
		scope = reg.provider.DefaultScope()
	}
	q := url.Values{}
	q.Set("client_id", reg.params.ClientID)
	q.Set("redirect_uri", reg.params.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", scope)
	for k, v := range reg.params.ExtraAuthorizeParams {
		q.Set(k, v)
	}
	return reg.provider.AuthorizeEndpoint() + "?" + q.Encode()
}

// recordBreakerState publishes breaker's current state as a gauge value
// (0=closed, 1=open, 2=half_open), matching the teacher's provider-keyed
// circuit breaker gauge convention, keyed here by OAuth2 service instead.
func (m *Method) recordBreakerState(service string, breaker *circuitbreaker.Breaker) {
	if m.Metrics == nil {
		return
	}
	var v float64
	switch breaker.State() {
	case circuitbreaker.StateOpen:
		v = 1
	case circuitbreaker.StateHalfOpen:
		v = 2
	}
	m.Metrics.CircuitBreakerState.WithLabelValues(service).Set(v)
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
	return i.Service != "" && i.Code != ""
}

// TryAuth runs the seven-step exchange-and-link pipeline: locate the
// provider, exchange code for an access token, fetch the normalized
// profile, then link to an existing account or auto-provision a new user.
func (m *Method) TryAuth(ctx context.Context, _ int64, ident json.RawMessage) (*warden.User, error) {
	inner, ok := method.Unwrap(ident, m.Name())
	if !ok {
		return nil, warden.NewProtoError(warden.KindBadMethod, nil)
	}
	var i userIdent
	if err := json.Unmarshal(inner, &i); err != nil {
		return nil, warden.NewProtoError(warden.KindBadMethod, err)
	}

	reg, ok := m.regs[i.Service]
	if !ok {
		return nil, warden.NewProtoError(warden.KindBadService, nil)
	}

	breaker := m.breakers.GetOrCreate(i.Service)
	if !breaker.Allow() {
		m.recordBreakerState(i.Service, breaker)
		if m.Metrics != nil {
			m.Metrics.CircuitBreakerRejects.WithLabelValues(i.Service).Inc()
		}
		return nil, warden.NewProtoError(warden.KindServiceError, fmt.Errorf("oauth2: %s circuit open", i.Service))
	}

	token, err := m.exchangeCode(ctx, reg, i.Code, i.State)
	if err != nil {
		breaker.RecordError(circuitbreaker.ClassifyError(err))
		m.recordBreakerState(i.Service, breaker)
		return nil, warden.NewProtoError(warden.KindServiceError, err)
	}

	account, err := reg.provider.FetchUserProfile(ctx, m.client, token.AccessToken)
	if err != nil {
		breaker.RecordError(circuitbreaker.ClassifyError(err))
		m.recordBreakerState(i.Service, breaker)
		return nil, warden.NewProtoError(warden.KindServiceError, err)
	}
	breaker.RecordSuccess()
	m.recordBreakerState(i.Service, breaker)

	return m.linkOrCreateUser(ctx, i.Service, account)
}

// exchangeCode trades an authorization code for an access token per the
// provider's token endpoint: form-urlencoded POST, form-urlencoded
// response. The result is represented as an x/oauth2 Token even though the
// exchange itself is hand-rolled -- the spec's Content-Type/Accept headers
// don't match oauth2.Config.Exchange's JSON-only expectations, but the
// resulting token is still the standard shape callers elsewhere may want
// to pass through oauth2.Config.Client.
func (m *Method) exchangeCode(ctx context.Context, reg registration, code, state string) (*goauth2.Token, error) {
	body := url.Values{}
	body.Set("grant_type", "authorization_code")
	body.Set("client_id", reg.params.ClientID)
	body.Set("client_secret", reg.params.ClientSecret)
	body.Set("redirect_uri", reg.params.RedirectURI)
	body.Set("code", code)
	body.Set("state", state)
	for k, v := range reg.params.ExtraTokenParams {
		body.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.provider.AccessTokenEndpoint(), strings.NewReader(body.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth2: %s token exchange: %w", reg.provider.Name(), err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr{code: resp.StatusCode, body: respBody}
	}

	values, err := parseTokenResponse(respBody, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	accessToken := values.Get("access_token")
	if accessToken == "" {
		return nil, fmt.Errorf("oauth2: %s token response missing access_token", reg.provider.Name())
	}
	return &goauth2.Token{AccessToken: accessToken, TokenType: values.Get("token_type")}, nil
}

// parseTokenResponse accepts either form-urlencoded or JSON token
// responses: the spec calls for url-encoded, but several real providers
// (Github notably) answer JSON regardless of the Accept header sent.
func parseTokenResponse(body []byte, contentType string) (url.Values, error) {
	if strings.Contains(contentType, "json") {
		var fields map[string]string
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("oauth2: decode json token response: %w", err)
		}
		values := url.Values{}
		for k, v := range fields {
			values.Set(k, v)
		}
		return values, nil
	}
	return url.ParseQuery(string(body))
}

// linkOrCreateUser implements pipeline steps 4-7: stamp the service into
// the account, find-or-create the link, and return the local user.
func (m *Method) linkOrCreateUser(ctx context.Context, service string, data AccountData) (*warden.User, error) {
	existing, err := m.accounts.GetByServiceAndName(ctx, service, data.Name)
	switch {
	case err == nil:
		user, err := m.users.GetUser(ctx, existing.UserID)
		if err != nil {
			return nil, warden.NewProtoError(warden.KindBackendError, err)
		}
		user.Profile.Merge(data.Profile)
		if err := m.users.UpdateUser(ctx, user); err != nil {
			return nil, warden.NewProtoError(warden.KindBackendError, err)
		}
		existing.Profile.Merge(data.Profile)
		if err := m.accounts.UpdateAccount(ctx, existing); err != nil {
			return nil, warden.NewProtoError(warden.KindBackendError, err)
		}
		return user, nil

	case err == warden.ErrNotFound:
		user := &warden.User{Name: data.Name + "@" + service, Profile: data.Profile}
		if err := m.users.CreateUser(ctx, user); err != nil {
			return nil, warden.NewProtoError(warden.KindBackendError, err)
		}
		account := &warden.Account{Service: service, Name: data.Name, UserID: user.UserID, Profile: data.Profile}
		if err := m.accounts.CreateAccount(ctx, account); err != nil {
			return nil, warden.NewProtoError(warden.KindBackendError, err)
		}
		return user, nil

	default:
		return nil, warden.NewProtoError(warden.KindBackendError, err)
	}
}

// marshalOrdered renders a JSON object preserving key order, mirroring
// method.marshalOrdered -- duplicated rather than exported, since it's a
// three-line helper not worth widening the method package's surface for.
func marshalOrdered(order []string, fragments map[string]json.RawMessage) (json.RawMessage, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, '{')
	for i, name := range order {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, fragments[name]...)
	}
	buf = append(buf, '}')
	return buf, nil
}
