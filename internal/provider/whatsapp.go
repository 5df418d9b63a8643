package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/mixelka/unibox/pkg/models"
)

// WhatsAppConfig settings for the WhatsApp Business Cloud API
type WhatsAppConfig struct {
	APIURL string // e.g. https://graph.facebook.com/v17.0
}

// WhatsAppAdapter sends via the Cloud API. WhatsApp is push-driven:
// inbound messages arrive exclusively through the webhook path, and
// there is no authorization-code flow; the user supplies the
// credential directly when connecting a number.
type WhatsAppAdapter struct {
	apiURL     string
	httpClient *http.Client
}

// NewWhatsApp creates a WhatsApp adapter
func NewWhatsApp(cfg WhatsAppConfig) *WhatsAppAdapter {
	return &WhatsAppAdapter{
		apiURL:     cfg.APIURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *WhatsAppAdapter) Platform() models.Platform {
	return models.PlatformWhatsApp
}

func (w *WhatsAppAdapter) AuthorizationURL(state string) (string, error) {
	return "", fmt.Errorf("whatsapp has no authorization-code flow: %w", ErrUnsupported)
}

func (w *WhatsAppAdapter) ExchangeCode(ctx context.Context, code string) (*Credential, error) {
	return nil, fmt.Errorf("whatsapp has no authorization-code flow: %w", ErrUnsupported)
}

func (w *WhatsAppAdapter) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	return nil, fmt.Errorf("whatsapp tokens are not refreshable: %w", ErrUnsupported)
}

func (w *WhatsAppAdapter) FetchRecent(ctx context.Context, cred *Credential) ([]*RawMessage, error) {
	return nil, fmt.Errorf("whatsapp is webhook-only: %w", ErrUnsupported)
}

// Send delivers the envelope through the Cloud API. A non-empty body
// goes out as a text message; each attachment is first uploaded to the
// media endpoint and then sent as its own media message referencing
// the returned id. The id of the first delivered message is returned.
func (w *WhatsAppAdapter) Send(ctx context.Context, cred *Credential, env *Envelope) (string, error) {
	var firstID string
	if env.Body != "" || len(env.Attachments) == 0 {
		id, err := w.sendPayload(ctx, cred, map[string]interface{}{
			"messaging_product": "whatsapp",
			"to":                env.To,
			"type":              "text",
			"text":              map[string]string{"body": env.Body},
		})
		if err != nil {
			return "", err
		}
		firstID = id
	}

	for _, att := range env.Attachments {
		mediaID, err := w.uploadMedia(ctx, cred, att)
		if err != nil {
			return "", fmt.Errorf("whatsapp media upload: %w", err)
		}
		id, err := w.sendPayload(ctx, cred, mediaPayload(env.To, att, mediaID))
		if err != nil {
			return "", err
		}
		if firstID == "" {
			firstID = id
		}
	}
	return firstID, nil
}

func (w *WhatsAppAdapter) sendPayload(ctx context.Context, cred *Credential, payload map[string]interface{}) (string, error) {
	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	sendURL := fmt.Sprintf("%s/%s/messages", w.apiURL, cred.ExternalAccountID)
	if err := postJSON(ctx, w.httpClient, cred.AccessToken, sendURL, payload, &resp); err != nil {
		return "", fmt.Errorf("whatsapp send: %w", err)
	}
	if len(resp.Messages) == 0 {
		return "", nil
	}
	return resp.Messages[0].ID, nil
}

// uploadMedia pushes attachment content to the media endpoint and
// returns the media id to reference in a subsequent message.
func (w *WhatsAppAdapter) uploadMedia(ctx context.Context, cred *Credential, att OutgoingAttachment) (string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", att.FileName)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(att.Content); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := form.WriteField("type", att.ContentType); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := form.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	uploadURL := fmt.Sprintf("%s/%s/media", w.apiURL, cred.ExternalAccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", form.FormDataContentType())

	status, body, err := doRequest(w.httpClient, req)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", errFromStatus(status, body)
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("media endpoint returned no id")
	}
	return resp.ID, nil
}

// mediaPayload builds the message body for an uploaded attachment.
// Images go out as image messages; everything else as a document so
// the original filename survives.
func mediaPayload(to string, att OutgoingAttachment, mediaID string) map[string]interface{} {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
	}
	if strings.HasPrefix(att.ContentType, "image/") {
		payload["type"] = "image"
		payload["image"] = map[string]string{"id": mediaID}
		return payload
	}
	payload["type"] = "document"
	payload["document"] = map[string]string{"id": mediaID, "filename": att.FileName}
	return payload
}

func (w *WhatsAppAdapter) FetchAttachment(ctx context.Context, cred *Credential, messageID, attachmentID string) ([]byte, error) {
	return nil, fmt.Errorf("whatsapp attachment download: %w", ErrUnsupported)
}
