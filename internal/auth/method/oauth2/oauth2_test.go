package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	warden "github.com/eugener/warden/internal"
	"github.com/eugener/warden/internal/circuitbreaker"
	"github.com/eugener/warden/internal/storage/memory"
)

// fakeProvider is a minimal Provider backed by an httptest.Server standing
// in for both the token and profile endpoints.
type fakeProvider struct {
	name        string
	srv         *httptest.Server
	profile     AccountData
	failToken   bool
	failProfile bool
}

func (f *fakeProvider) Name() string               { return f.name }
func (f *fakeProvider) AuthorizeEndpoint() string   { return f.srv.URL + "/authorize" }
func (f *fakeProvider) AccessTokenEndpoint() string { return f.srv.URL + "/token" }
func (f *fakeProvider) DefaultScope() string        { return "profile" }

func (f *fakeProvider) FetchUserProfile(ctx context.Context, client *http.Client, accessToken string) (AccountData, error) {
	if f.failProfile {
		return AccountData{}, fmt.Errorf("profile fetch failed")
	}
	if accessToken != "tok-123" {
		return AccountData{}, fmt.Errorf("unexpected access token %q", accessToken)
	}
	return f.profile, nil
}

func newFakeProvider(t *testing.T, name string, profile AccountData) *fakeProvider {
	t.Helper()
	p := &fakeProvider{name: name, profile: profile}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if p.failToken {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		w.Write([]byte(url.Values{"access_token": {"tok-123"}, "token_type": {"bearer"}}.Encode()))
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func newTestMethod() (*Method, *fakeProvider) {
	users := memory.New()
	provider := &fakeProvider{}
	m := New(users, users, http.DefaultClient, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()))
	return m, provider
}

func identFor(service, code, state string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"oauth2": userIdent{Service: service, Code: code, State: state},
	})
	return raw
}

func TestMatches(t *testing.T) {
	m, _ := newTestMethod()
	if !m.Matches(identFor("github", "abc", "xyz")) {
		t.Fatal("expected oauth2 ident shape to match")
	}
	if m.Matches(json.RawMessage(`{"native":{"name":"a","pass":"b"}}`)) {
		t.Fatal("expected native shape not to match")
	}
}

func TestTryAuthUnknownServiceIsBadService(t *testing.T) {
	m, _ := newTestMethod()
	_, err := m.TryAuth(context.Background(), 0, identFor("nope", "c", "s"))
	if !warden.IsKind(err, warden.KindBadService) {
		t.Fatalf("want BadService, got %v", err)
	}
}

func TestTryAuthFirstSightCreatesUserAndAccount(t *testing.T) {
	users := memory.New()
	provider := newFakeProvider(t, "github", AccountData{
		Name:    "42",
		Profile: warden.Profile{Email: "a@x"},
	})
	m := New(users, users, http.DefaultClient, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()))
	m.Register(provider, ClientParams{ClientID: "id", ClientSecret: "secret"})

	user, err := m.TryAuth(context.Background(), 0, identFor("github", "C", "S"))
	if err != nil {
		t.Fatalf("try auth: %v", err)
	}
	if user.Name != "42@github" {
		t.Fatalf("want 42@github, got %q", user.Name)
	}

	account, err := users.GetByServiceAndName(context.Background(), "github", "42")
	if err != nil {
		t.Fatalf("expected linked account, got %v", err)
	}
	if account.UserID != user.UserID {
		t.Fatalf("account not linked to created user")
	}
}

func TestTryAuthSecondSightLinksExistingAccount(t *testing.T) {
	users := memory.New()
	provider := newFakeProvider(t, "github", AccountData{
		Name:    "42",
		Profile: warden.Profile{Email: "updated@x"},
	})
	m := New(users, users, http.DefaultClient, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()))
	m.Register(provider, ClientParams{ClientID: "id", ClientSecret: "secret"})

	first, err := m.TryAuth(context.Background(), 0, identFor("github", "C1", "S1"))
	if err != nil {
		t.Fatalf("first login: %v", err)
	}

	second, err := m.TryAuth(context.Background(), 0, identFor("github", "C2", "S2"))
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if second.UserID != first.UserID {
		t.Fatalf("want same user_id across logins, got %q then %q", first.UserID, second.UserID)
	}
	if second.Profile.Email != "updated@x" {
		t.Fatalf("want merged profile email, got %q", second.Profile.Email)
	}
}

func TestTryAuthTokenExchangeFailureIsServiceError(t *testing.T) {
	users := memory.New()
	provider := newFakeProvider(t, "github", AccountData{Name: "1"})
	provider.failToken = true
	m := New(users, users, http.DefaultClient, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()))
	m.Register(provider, ClientParams{ClientID: "id", ClientSecret: "secret"})

	_, err := m.TryAuth(context.Background(), 0, identFor("github", "C", "S"))
	if !warden.IsKind(err, warden.KindServiceError) {
		t.Fatalf("want ServiceError, got %v", err)
	}
}

func TestTryAuthProfileFetchFailureIsServiceError(t *testing.T) {
	users := memory.New()
	provider := newFakeProvider(t, "github", AccountData{Name: "1"})
	provider.failProfile = true
	m := New(users, users, http.DefaultClient, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()))
	m.Register(provider, ClientParams{ClientID: "id", ClientSecret: "secret"})

	_, err := m.TryAuth(context.Background(), 0, identFor("github", "C", "S"))
	if !warden.IsKind(err, warden.KindServiceError) {
		t.Fatalf("want ServiceError, got %v", err)
	}
}

func TestInfoEnumeratesServicesInRegistrationOrder(t *testing.T) {
	m, _ := newTestMethod()
	srvB, srvA := httptest.NewServer(nil), httptest.NewServer(nil)
	t.Cleanup(srvB.Close)
	t.Cleanup(srvA.Close)
	m.Register(&fakeProvider{name: "b", srv: srvB}, ClientParams{ClientID: "id-b"})
	m.Register(&fakeProvider{name: "a", srv: srvA}, ClientParams{ClientID: "id-a"})

	raw, err := m.Info(context.Background())
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	// "b" was registered before "a"; its key must appear first in the
	// rendered object text.
	bIdx := strings.Index(string(raw), `"b"`)
	aIdx := strings.Index(string(raw), `"a"`)
	if bIdx < 0 || aIdx < 0 || bIdx > aIdx {
		t.Fatalf("want b before a in %s", raw)
	}
}
