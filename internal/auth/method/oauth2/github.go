package oauth2

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	warden "github.com/eugener/warden/internal"
)

// Github is the github.com OAuth2 provider.
type Github struct{}

func (Github) Name() string               { return "github" }
func (Github) AuthorizeEndpoint() string   { return "https://github.com/login/oauth/authorize" }
func (Github) AccessTokenEndpoint() string { return "https://github.com/login/oauth/access_token" }
func (Github) DefaultScope() string        { return "read:user user:email" }

func (Github) FetchUserProfile(ctx context.Context, client *http.Client, accessToken string) (AccountData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/user", nil)
	if err != nil {
		return AccountData{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return AccountData{}, fmt.Errorf("github: fetch user: %w", err)
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
	id := r.Get("id").String()
	if id == "" {
		return AccountData{}, fmt.Errorf("github: response missing id")
	}
	return AccountData{
		Name: id,
		Profile: warden.Profile{
			Email: r.Get("email").String(),
			URL:   r.Get("html_url").String(),
			Extra: map[string]string{"login": r.Get("login").String()},
		},
	}, nil
}
