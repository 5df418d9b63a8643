package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mixelka/unibox/pkg/models"
)

const twitterAPIURL = "https://api.twitter.com/2"

// TwitterConfig credentials for the Twitter OAuth application
type TwitterConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// TwitterAdapter exchanges direct messages via the Twitter v2 API
type TwitterAdapter struct {
	oauth      oauthEndpoint
	httpClient *http.Client
}

// NewTwitter creates a Twitter adapter
func NewTwitter(cfg TwitterConfig) *TwitterAdapter {
	return &TwitterAdapter{
		oauth: oauthEndpoint{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			AuthURL:      "https://twitter.com/i/oauth2/authorize",
			TokenURL:     "https://api.twitter.com/2/oauth2/token",
			Scopes:       []string{"dm.read", "dm.write", "tweet.read", "users.read", "offline.access"},
			ExtraAuth:    url.Values{"code_challenge": {"challenge"}, "code_challenge_method": {"plain"}},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *TwitterAdapter) Platform() models.Platform {
	return models.PlatformTwitter
}

func (t *TwitterAdapter) AuthorizationURL(state string) (string, error) {
	return t.oauth.authorizationURL(state), nil
}

func (t *TwitterAdapter) ExchangeCode(ctx context.Context, code string) (*Credential, error) {
	token, err := t.oauth.exchange(ctx, t.httpClient, code)
	if err != nil {
		return nil, fmt.Errorf("twitter code exchange: %w", err)
	}

	var me struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := getJSON(ctx, t.httpClient, token.AccessToken, twitterAPIURL+"/users/me", &me); err != nil {
		return nil, fmt.Errorf("twitter profile: %w", err)
	}

	return &Credential{
		AccountIdentifier: me.Data.Username,
		ExternalAccountID: me.Data.ID,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		ExpiresAt:         token.expiry(),
	}, nil
}

func (t *TwitterAdapter) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("twitter: no refresh token stored: %w", ErrReauthRequired)
	}
	token, err := t.oauth.refresh(ctx, t.httpClient, cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("twitter token refresh: %w", err)
	}

	next := *cred
	next.AccessToken = token.AccessToken
	next.ExpiresAt = token.expiry()
	if token.RefreshToken != "" {
		next.RefreshToken = token.RefreshToken
	}
	return &next, nil
}

func (t *TwitterAdapter) FetchRecent(ctx context.Context, cred *Credential) ([]*RawMessage, error) {
	var list struct {
		Data []struct {
			ID        string `json:"id"`
			Text      string `json:"text"`
			SenderID  string `json:"sender_id"`
			CreatedAt string `json:"created_at"`
		} `json:"data"`
	}
	listURL := twitterAPIURL + "/dm_events?dm_event.fields=id,text,sender_id,created_at&max_results=20"
	if err := getJSON(ctx, t.httpClient, cred.AccessToken, listURL, &list); err != nil {
		return nil, fmt.Errorf("twitter list dm events: %w", err)
	}

	messages := make([]*RawMessage, 0, len(list.Data))
	for _, e := range list.Data {
		raw := &RawMessage{
			ExternalID: e.ID,
			Snippet:    snippetOf(e.Text),
			Body:       e.Text,
			FromAddr:   e.SenderID,
			ReceivedAt: time.Now(),
		}
		if ts, err := time.Parse(time.RFC3339, e.CreatedAt); err == nil {
			raw.ReceivedAt = ts
		}
		messages = append(messages, raw)
	}
	return messages, nil
}

func (t *TwitterAdapter) Send(ctx context.Context, cred *Credential, env *Envelope) (string, error) {
	if len(env.Attachments) > 0 {
		return "", fmt.Errorf("twitter direct messages cannot carry attachments: %w", ErrUnsupported)
	}
	payload := map[string]string{"text": env.Body}
	var resp struct {
		Data struct {
			DMEventID string `json:"dm_event_id"`
		} `json:"data"`
	}
	sendURL := fmt.Sprintf("%s/dm_conversations/with/%s/messages", twitterAPIURL, url.PathEscape(env.To))
	if err := postJSON(ctx, t.httpClient, cred.AccessToken, sendURL, payload, &resp); err != nil {
		return "", fmt.Errorf("twitter send: %w", err)
	}
	return resp.Data.DMEventID, nil
}

func (t *TwitterAdapter) FetchAttachment(ctx context.Context, cred *Credential, messageID, attachmentID string) ([]byte, error) {
	return nil, fmt.Errorf("twitter attachment download: %w", ErrUnsupported)
}
