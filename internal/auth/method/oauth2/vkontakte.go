package oauth2

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	warden "github.com/eugener/warden/internal"
)

// VKontakte is the oauth.vk.com provider. VK's user-info endpoint is
// versioned and keyed by access token as a query param rather than a
// bearer header, unlike the other three providers.
type VKontakte struct {
	// APIVersion pins the vk.com API revision; VK breaks response shape
	// across versions without notice.
	APIVersion string
}

func (VKontakte) Name() string               { return "vkontakte" }
func (VKontakte) AuthorizeEndpoint() string   { return "https://oauth.vk.com/authorize" }
func (VKontakte) AccessTokenEndpoint() string { return "https://oauth.vk.com/access_token" }
func (VKontakte) DefaultScope() string        { return "email" }

func (v VKontakte) FetchUserProfile(ctx context.Context, client *http.Client, accessToken string) (AccountData, error) {
	apiVersion := v.APIVersion
	if apiVersion == "" {
		apiVersion = "5.131"
	}
	url := fmt.Sprintf("https://api.vk.com/method/users.get?access_token=%s&v=%s&fields=screen_name",
		accessToken, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return AccountData{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return AccountData{}, fmt.Errorf("vkontakte: fetch user: %w", err)
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
	if errMsg := r.Get("error.error_msg"); errMsg.Exists() {
		return AccountData{}, fmt.Errorf("vkontakte: api error: %s", errMsg.String())
	}
	first := r.Get("response.0")
	id := first.Get("id").String()
	if id == "" {
		return AccountData{}, fmt.Errorf("vkontakte: response missing id")
	}
	return AccountData{
		Name: id,
		Profile: warden.Profile{
			Extra: map[string]string{
				"screen_name": first.Get("screen_name").String(),
				"first_name":  first.Get("first_name").String(),
				"last_name":   first.Get("last_name").String(),
			},
		},
	}, nil
}
