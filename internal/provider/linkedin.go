package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/mixelka/unibox/pkg/models"
)

const linkedinAPIURL = "https://api.linkedin.com/v2"

// LinkedInConfig credentials for the LinkedIn OAuth application
type LinkedInConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// LinkedInAdapter talks to the LinkedIn REST API. LinkedIn does not
// issue refresh tokens in this integration: once the access token
// expires the user must reconnect.
type LinkedInAdapter struct {
	oauth      oauthEndpoint
	httpClient *http.Client
}

// NewLinkedIn creates a LinkedIn adapter
func NewLinkedIn(cfg LinkedInConfig) *LinkedInAdapter {
	return &LinkedInAdapter{
		oauth: oauthEndpoint{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			AuthURL:      "https://www.linkedin.com/oauth/v2/authorization",
			TokenURL:     "https://www.linkedin.com/oauth/v2/accessToken",
			Scopes:       []string{"openid", "profile", "email", "w_member_social"},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (l *LinkedInAdapter) Platform() models.Platform {
	return models.PlatformLinkedIn
}

func (l *LinkedInAdapter) AuthorizationURL(state string) (string, error) {
	return l.oauth.authorizationURL(state), nil
}

func (l *LinkedInAdapter) ExchangeCode(ctx context.Context, code string) (*Credential, error) {
	token, err := l.oauth.exchange(ctx, l.httpClient, code)
	if err != nil {
		return nil, fmt.Errorf("linkedin code exchange: %w", err)
	}

	var userinfo struct {
		Sub   string `json:"sub"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, l.httpClient, token.AccessToken, linkedinAPIURL+"/userinfo", &userinfo); err != nil {
		return nil, fmt.Errorf("linkedin userinfo: %w", err)
	}

	identifier := userinfo.Email
	if identifier == "" {
		identifier = userinfo.Sub
	}

	return &Credential{
		AccountIdentifier: identifier,
		ExternalAccountID: userinfo.Sub,
		AccessToken:       token.AccessToken,
		ExpiresAt:         token.expiry(),
	}, nil
}

func (l *LinkedInAdapter) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	return nil, fmt.Errorf("linkedin does not issue refresh tokens: %w", ErrUnsupported)
}

func (l *LinkedInAdapter) FetchRecent(ctx context.Context, cred *Credential) ([]*RawMessage, error) {
	var list struct {
		Elements []struct {
			EntityURN string `json:"entityUrn"`
			CreatedAt int64  `json:"createdAt"`
			Subject   string `json:"subject"`
			Body      struct {
				Text string `json:"text"`
			} `json:"body"`
			From struct {
				Name      string `json:"name"`
				EntityURN string `json:"entityUrn"`
			} `json:"from"`
		} `json:"elements"`
	}
	listURL := linkedinAPIURL + "/conversationEvents?q=recent&count=20"
	if err := getJSON(ctx, l.httpClient, cred.AccessToken, listURL, &list); err != nil {
		return nil, fmt.Errorf("linkedin list messages: %w", err)
	}

	messages := make([]*RawMessage, 0, len(list.Elements))
	for _, e := range list.Elements {
		raw := &RawMessage{
			ExternalID: e.EntityURN,
			Subject:    e.Subject,
			Snippet:    snippetOf(e.Body.Text),
			Body:       e.Body.Text,
			FromName:   e.From.Name,
			FromAddr:   e.From.EntityURN,
			ReceivedAt: time.Now(),
		}
		if e.CreatedAt > 0 {
			raw.ReceivedAt = time.UnixMilli(e.CreatedAt)
		}
		messages = append(messages, raw)
	}
	return messages, nil
}

func (l *LinkedInAdapter) Send(ctx context.Context, cred *Credential, env *Envelope) (string, error) {
	if len(env.Attachments) > 0 {
		return "", fmt.Errorf("linkedin messages cannot carry attachments: %w", ErrUnsupported)
	}
	payload := map[string]interface{}{
		"recipients": []string{env.To}, // entityUrn of the recipient
		"body":       map[string]string{"text": env.Body},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := postJSON(ctx, l.httpClient, cred.AccessToken, linkedinAPIURL+"/messages", payload, &resp); err != nil {
		return "", fmt.Errorf("linkedin send: %w", err)
	}
	return resp.ID, nil
}

func (l *LinkedInAdapter) FetchAttachment(ctx context.Context, cred *Credential, messageID, attachmentID string) ([]byte, error) {
	return nil, fmt.Errorf("linkedin attachment download: %w", ErrUnsupported)
}

// snippetOf trims a body into a short preview. Truncation counts
// runes so a multibyte character is never cut in half.
func snippetOf(body string) string {
	const max = 120
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	return string([]rune(body)[:max])
}
