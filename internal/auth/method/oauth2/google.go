package oauth2

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	warden "github.com/eugener/warden/internal"
)

// Google is the accounts.google.com OAuth2 provider.
type Google struct{}

func (Google) Name() string               { return "google" }
func (Google) AuthorizeEndpoint() string   { return "https://accounts.google.com/o/oauth2/v2/auth" }
func (Google) AccessTokenEndpoint() string { return "https://oauth2.googleapis.com/token" }
func (Google) DefaultScope() string {
	return "openid https://www.googleapis.com/auth/userinfo.email https://www.googleapis.com/auth/userinfo.profile"
}

func (Google) FetchUserProfile(ctx context.Context, client *http.Client, accessToken string) (AccountData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v3/userinfo", nil)
	if err != nil {
		return AccountData{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return AccountData{}, fmt.Errorf("google: fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return AccountData{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return AccountData{}, statusErr{code: resp.StatusCode, body: body}
	}

	r := gjson.ParseBytes(body)
	sub := r.Get("sub").String()
	if sub == "" {
		return AccountData{}, fmt.Errorf("google: response missing sub")
	}
	return AccountData{
		Name: sub,
		Profile: warden.Profile{
			Email:  r.Get("email").String(),
			URL:    r.Get("picture").String(),
			Locale: r.Get("locale").String(),
			Extra:  map[string]string{"name": r.Get("name").String()},
		},
	}, nil
}
