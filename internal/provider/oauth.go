package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// oauthEndpoint holds one provider's authorization-code flow settings
type oauthEndpoint struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	ExtraAuth    url.Values // provider-specific consent parameters
}

// tokenResponse is the common token endpoint payload
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

func (t *tokenResponse) expiry() *time.Time {
	if t.ExpiresIn <= 0 {
		return nil
	}
	exp := time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	return &exp
}

func (e *oauthEndpoint) authorizationURL(state string) string {
	q := url.Values{}
	q.Set("client_id", e.ClientID)
	q.Set("redirect_uri", e.RedirectURL)
	q.Set("response_type", "code")
	q.Set("state", state)
	if len(e.Scopes) > 0 {
		q.Set("scope", strings.Join(e.Scopes, " "))
	}
	for k, vs := range e.ExtraAuth {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	return e.AuthURL + "?" + q.Encode()
}

func (e *oauthEndpoint) exchange(ctx context.Context, client *http.Client, code string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", e.ClientID)
	form.Set("client_secret", e.ClientSecret)
	form.Set("redirect_uri", e.RedirectURL)
	return e.postToken(ctx, client, form)
}

func (e *oauthEndpoint) refresh(ctx context.Context, client *http.Client, refreshToken string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", e.ClientID)
	form.Set("client_secret", e.ClientSecret)
	return e.postToken(ctx, client, form)
}

func (e *oauthEndpoint) postToken(ctx context.Context, client *http.Client, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := doRequest(client, req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errFromStatus(status, body)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token endpoint returned no access token", ErrReauthRequired)
	}
	return &token, nil
}

// doRequest executes a request and reads the full body, mapping
// transport failures to ErrUnavailable.
func doRequest(client *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	return resp.StatusCode, body, nil
}

// getJSON issues an authorized GET and decodes the JSON response into out
func getJSON(ctx context.Context, client *http.Client, accessToken, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	status, body, err := doRequest(client, req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errFromStatus(status, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// postJSON issues an authorized POST with a JSON payload and decodes
// the response into out when provided.
func postJSON(ctx context.Context, client *http.Client, accessToken, rawURL string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	status, body, err := doRequest(client, req)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return errFromStatus(status, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
