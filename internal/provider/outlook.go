package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/mixelka/unibox/pkg/models"
)

const graphAPIURL = "https://graph.microsoft.com/v1.0"

// OutlookConfig credentials for the Microsoft Graph OAuth application
type OutlookConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// OutlookAdapter talks to Microsoft Graph
type OutlookAdapter struct {
	oauth      oauthEndpoint
	httpClient *http.Client
}

// NewOutlook creates an Outlook adapter
func NewOutlook(cfg OutlookConfig) *OutlookAdapter {
	return &OutlookAdapter{
		oauth: oauthEndpoint{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			AuthURL:      "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL:     "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			Scopes: []string{
				"offline_access",
				"https://graph.microsoft.com/Mail.Read",
				"https://graph.microsoft.com/Mail.Send",
				"https://graph.microsoft.com/User.Read",
			},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *OutlookAdapter) Platform() models.Platform {
	return models.PlatformOutlook
}

func (o *OutlookAdapter) AuthorizationURL(state string) (string, error) {
	return o.oauth.authorizationURL(state), nil
}

func (o *OutlookAdapter) ExchangeCode(ctx context.Context, code string) (*Credential, error) {
	token, err := o.oauth.exchange(ctx, o.httpClient, code)
	if err != nil {
		return nil, fmt.Errorf("outlook code exchange: %w", err)
	}

	var me struct {
		ID                string `json:"id"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := getJSON(ctx, o.httpClient, token.AccessToken, graphAPIURL+"/me", &me); err != nil {
		return nil, fmt.Errorf("outlook profile: %w", err)
	}
	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}

	return &Credential{
		AccountIdentifier: email,
		ExternalAccountID: me.ID,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		ExpiresAt:         token.expiry(),
	}, nil
}

func (o *OutlookAdapter) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("outlook: no refresh token stored: %w", ErrReauthRequired)
	}
	token, err := o.oauth.refresh(ctx, o.httpClient, cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("outlook token refresh: %w", err)
	}

	next := *cred
	next.AccessToken = token.AccessToken
	next.ExpiresAt = token.expiry()
	if token.RefreshToken != "" {
		// Microsoft rotates refresh tokens on every use
		next.RefreshToken = token.RefreshToken
	}
	return &next, nil
}

type graphRecipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphMessage struct {
	ID             string `json:"id"`
	Subject        string `json:"subject"`
	BodyPreview    string `json:"bodyPreview"`
	ReceivedAt     string `json:"receivedDateTime"`
	HasAttachments bool   `json:"hasAttachments"`
	Body           struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From         graphRecipient   `json:"from"`
	ToRecipients []graphRecipient `json:"toRecipients"`
}

func (o *OutlookAdapter) FetchRecent(ctx context.Context, cred *Credential) ([]*RawMessage, error) {
	var list struct {
		Value []graphMessage `json:"value"`
	}
	listURL := graphAPIURL + "/me/messages?$top=20&$orderby=receivedDateTime%20desc"
	if err := getJSON(ctx, o.httpClient, cred.AccessToken, listURL, &list); err != nil {
		return nil, fmt.Errorf("outlook list messages: %w", err)
	}

	messages := make([]*RawMessage, 0, len(list.Value))
	for i := range list.Value {
		m := &list.Value[i]
		raw := &RawMessage{
			ExternalID: m.ID,
			Subject:    m.Subject,
			Snippet:    m.BodyPreview,
			FromName:   m.From.EmailAddress.Name,
			FromAddr:   m.From.EmailAddress.Address,
			ReceivedAt: time.Now(),
		}
		if t, err := time.Parse(time.RFC3339, m.ReceivedAt); err == nil {
			raw.ReceivedAt = t
		}
		if len(m.ToRecipients) > 0 {
			raw.ToAddr = m.ToRecipients[0].EmailAddress.Address
		}
		if m.Body.ContentType == "html" {
			raw.HTMLBody = m.Body.Content
		} else {
			raw.Body = m.Body.Content
		}
		if m.HasAttachments {
			attachments, err := o.listAttachments(ctx, cred, m.ID)
			if err != nil {
				return nil, err
			}
			raw.Attachments = attachments
		}
		messages = append(messages, raw)
	}
	return messages, nil
}

func (o *OutlookAdapter) listAttachments(ctx context.Context, cred *Credential, messageID string) ([]RawAttachment, error) {
	var list struct {
		Value []struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			ContentType  string `json:"contentType"`
			Size         int64  `json:"size"`
			ContentBytes string `json:"contentBytes"`
		} `json:"value"`
	}
	attURL := fmt.Sprintf("%s/me/messages/%s/attachments", graphAPIURL, messageID)
	if err := getJSON(ctx, o.httpClient, cred.AccessToken, attURL, &list); err != nil {
		return nil, fmt.Errorf("outlook list attachments: %w", err)
	}

	attachments := make([]RawAttachment, 0, len(list.Value))
	for _, a := range list.Value {
		att := RawAttachment{
			ID:          a.ID,
			FileName:    a.Name,
			ContentType: a.ContentType,
			Size:        a.Size,
		}
		if a.ContentBytes != "" {
			if content, err := base64.StdEncoding.DecodeString(a.ContentBytes); err == nil {
				att.Content = content
			}
		}
		attachments = append(attachments, att)
	}
	return attachments, nil
}

// Send posts via /me/sendMail. Graph acknowledges with 202 and no
// message id, so the stored record keeps a nil external id until a
// later fetch resolves it.
func (o *OutlookAdapter) Send(ctx context.Context, cred *Credential, env *Envelope) (string, error) {
	to := graphRecipient{}
	to.EmailAddress.Address = env.To

	message := map[string]interface{}{
		"subject": env.Subject,
		"body": map[string]string{
			"contentType": "Text",
			"content":     env.Body,
		},
		"toRecipients": []graphRecipient{to},
	}
	if len(env.Attachments) > 0 {
		attachments := make([]map[string]interface{}, 0, len(env.Attachments))
		for _, att := range env.Attachments {
			attachments = append(attachments, map[string]interface{}{
				"@odata.type":  "#microsoft.graph.fileAttachment",
				"name":         att.FileName,
				"contentType":  att.ContentType,
				"contentBytes": base64.StdEncoding.EncodeToString(att.Content),
			})
		}
		message["attachments"] = attachments
	}

	payload := map[string]interface{}{"message": message, "saveToSentItems": true}
	if err := postJSON(ctx, o.httpClient, cred.AccessToken, graphAPIURL+"/me/sendMail", payload, nil); err != nil {
		return "", fmt.Errorf("outlook send: %w", err)
	}
	return "", nil
}

func (o *OutlookAdapter) FetchAttachment(ctx context.Context, cred *Credential, messageID, attachmentID string) ([]byte, error) {
	var att struct {
		ContentBytes string `json:"contentBytes"`
	}
	attURL := fmt.Sprintf("%s/me/messages/%s/attachments/%s", graphAPIURL, messageID, attachmentID)
	if err := getJSON(ctx, o.httpClient, cred.AccessToken, attURL, &att); err != nil {
		return nil, fmt.Errorf("outlook fetch attachment: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(att.ContentBytes)
	if err != nil {
		return nil, fmt.Errorf("outlook decode attachment: %w", err)
	}
	return data, nil
}
