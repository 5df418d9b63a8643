package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/mixelka/unibox/pkg/models"
)

const gmailAPIURL = "https://gmail.googleapis.com/gmail/v1"

// GmailConfig credentials for the Gmail OAuth application
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// GmailAdapter talks to the Gmail REST API
type GmailAdapter struct {
	oauth      oauthEndpoint
	httpClient *http.Client
}

// NewGmail creates a Gmail adapter
func NewGmail(cfg GmailConfig) *GmailAdapter {
	return &GmailAdapter{
		oauth: oauthEndpoint{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:     "https://oauth2.googleapis.com/token",
			Scopes: []string{
				"https://www.googleapis.com/auth/gmail.readonly",
				"https://www.googleapis.com/auth/gmail.send",
				"https://www.googleapis.com/auth/userinfo.email",
			},
			// offline access so Google issues a refresh token on first consent
			ExtraAuth: url.Values{"access_type": {"offline"}, "prompt": {"consent"}},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GmailAdapter) Platform() models.Platform {
	return models.PlatformGmail
}

func (g *GmailAdapter) AuthorizationURL(state string) (string, error) {
	return g.oauth.authorizationURL(state), nil
}

func (g *GmailAdapter) ExchangeCode(ctx context.Context, code string) (*Credential, error) {
	token, err := g.oauth.exchange(ctx, g.httpClient, code)
	if err != nil {
		return nil, fmt.Errorf("gmail code exchange: %w", err)
	}

	var profile struct {
		EmailAddress string `json:"emailAddress"`
	}
	if err := getJSON(ctx, g.httpClient, token.AccessToken, gmailAPIURL+"/users/me/profile", &profile); err != nil {
		return nil, fmt.Errorf("gmail profile: %w", err)
	}

	return &Credential{
		AccountIdentifier: profile.EmailAddress,
		ExternalAccountID: profile.EmailAddress,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		ExpiresAt:         token.expiry(),
	}, nil
}

func (g *GmailAdapter) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("gmail: no refresh token stored: %w", ErrReauthRequired)
	}
	token, err := g.oauth.refresh(ctx, g.httpClient, cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("gmail token refresh: %w", err)
	}

	next := *cred
	next.AccessToken = token.AccessToken
	next.ExpiresAt = token.expiry()
	if token.RefreshToken != "" {
		next.RefreshToken = token.RefreshToken
	}
	return &next, nil
}

type gmailMessagePart struct {
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		AttachmentID string `json:"attachmentId"`
		Size         int64  `json:"size"`
		Data         string `json:"data"`
	} `json:"body"`
	Parts []gmailMessagePart `json:"parts"`
}

type gmailMessage struct {
	ID           string           `json:"id"`
	Snippet      string           `json:"snippet"`
	InternalDate string           `json:"internalDate"`
	Payload      gmailMessagePart `json:"payload"`
}

func (g *GmailAdapter) FetchRecent(ctx context.Context, cred *Credential) ([]*RawMessage, error) {
	var list struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	listURL := gmailAPIURL + "/users/me/messages?maxResults=20&labelIds=INBOX"
	if err := getJSON(ctx, g.httpClient, cred.AccessToken, listURL, &list); err != nil {
		return nil, fmt.Errorf("gmail list messages: %w", err)
	}

	messages := make([]*RawMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		var full gmailMessage
		getURL := fmt.Sprintf("%s/users/me/messages/%s?format=full", gmailAPIURL, ref.ID)
		if err := getJSON(ctx, g.httpClient, cred.AccessToken, getURL, &full); err != nil {
			return nil, fmt.Errorf("gmail get message %s: %w", ref.ID, err)
		}
		messages = append(messages, g.normalize(&full))
	}
	return messages, nil
}

func (g *GmailAdapter) normalize(m *gmailMessage) *RawMessage {
	raw := &RawMessage{
		ExternalID: m.ID,
		Snippet:    m.Snippet,
		ReceivedAt: time.Now(),
	}
	// internalDate is epoch milliseconds
	var ms int64
	if _, err := fmt.Sscanf(m.InternalDate, "%d", &ms); err == nil && ms > 0 {
		raw.ReceivedAt = time.UnixMilli(ms)
	}

	for _, h := range m.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			raw.Subject = h.Value
		case "from":
			raw.FromName, raw.FromAddr = splitAddress(h.Value)
		case "to":
			_, raw.ToAddr = splitAddress(h.Value)
		}
	}

	collectGmailParts(m.Payload, raw)
	return raw
}

// collectGmailParts walks the MIME tree picking up bodies and attachments
func collectGmailParts(part gmailMessagePart, raw *RawMessage) {
	if part.Filename != "" && part.Body.AttachmentID != "" {
		raw.Attachments = append(raw.Attachments, RawAttachment{
			ID:          part.Body.AttachmentID,
			FileName:    part.Filename,
			ContentType: part.MimeType,
			Size:        part.Body.Size,
		})
	} else if part.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err == nil {
			switch part.MimeType {
			case "text/plain":
				if raw.Body == "" {
					raw.Body = string(decoded)
				}
			case "text/html":
				if raw.HTMLBody == "" {
					raw.HTMLBody = string(decoded)
				}
			}
		}
	}
	for _, child := range part.Parts {
		collectGmailParts(child, raw)
	}
}

func (g *GmailAdapter) Send(ctx context.Context, cred *Credential, env *Envelope) (string, error) {
	mime := buildMIME(cred.AccountIdentifier, env)
	payload := map[string]string{
		"raw": base64.URLEncoding.EncodeToString([]byte(mime)),
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := postJSON(ctx, g.httpClient, cred.AccessToken, gmailAPIURL+"/users/me/messages/send", payload, &resp); err != nil {
		return "", fmt.Errorf("gmail send: %w", err)
	}
	return resp.ID, nil
}

func (g *GmailAdapter) FetchAttachment(ctx context.Context, cred *Credential, messageID, attachmentID string) ([]byte, error) {
	var resp struct {
		Data string `json:"data"`
	}
	attURL := fmt.Sprintf("%s/users/me/messages/%s/attachments/%s", gmailAPIURL, messageID, attachmentID)
	if err := getJSON(ctx, g.httpClient, cred.AccessToken, attURL, &resp); err != nil {
		return nil, fmt.Errorf("gmail fetch attachment: %w", err)
	}
	data, err := base64.URLEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("gmail decode attachment: %w", err)
	}
	return data, nil
}

// buildMIME assembles an RFC 822 message, multipart when attachments
// are present.
func buildMIME(from string, env *Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", env.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", env.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if len(env.Attachments) == 0 {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(env.Body)
		return b.String()
	}

	const boundary = "unibox-mixed-boundary"
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(env.Body)
	b.WriteString("\r\n")
	for _, att := range env.Attachments {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		fmt.Fprintf(&b, "Content-Type: %s; name=%q\r\n", contentType, att.FileName)
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n", att.FileName)
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString(att.Content))
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--", boundary)
	return b.String()
}

// splitAddress parses "Name <addr>" header values, tolerating bare
// addresses.
func splitAddress(header string) (name, addr string) {
	parsed, err := mail.ParseAddress(header)
	if err != nil {
		return "", strings.TrimSpace(header)
	}
	return parsed.Name, parsed.Address
}
