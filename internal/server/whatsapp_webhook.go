package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mixelka/unibox/internal/webhook"
)

// verifyWhatsAppWebhook answers the provider's subscription handshake
func (s *Server) verifyWhatsAppWebhook(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	verifyToken := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && verifyToken == s.cfg.WhatsAppVerifyToken {
		return c.String(http.StatusOK, challenge)
	}
	return c.NoContent(http.StatusForbidden)
}

// whatsAppWebhookPayload is the Cloud API push shape
type whatsAppWebhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					ID        string `json:"id"`
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// receiveWhatsAppWebhook normalizes a push payload and hands it to the
// ingestor. The provider expects a 200 regardless of what happens
// internally, so this handler never reports failure.
func (s *Server) receiveWhatsAppWebhook(c echo.Context) error {
	var payload whatsAppWebhookPayload
	if err := c.Bind(&payload); err != nil {
		s.logger.Warn("unparseable whatsapp webhook payload", "error", err)
		return c.NoContent(http.StatusOK)
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			if value.Metadata.PhoneNumberID == "" || len(value.Messages) == 0 {
				continue
			}

			names := make(map[string]string, len(value.Contacts))
			for _, contact := range value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}

			delivery := &webhook.Delivery{RoutingID: value.Metadata.PhoneNumberID}
			for _, m := range value.Messages {
				inbound := webhook.InboundMessage{
					ExternalID: m.ID,
					From:       m.From,
					FromName:   names[m.From],
					Body:       m.Text.Body,
				}
				if secs, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil && secs > 0 {
					inbound.ReceivedAt = time.Unix(secs, 0)
				}
				delivery.Messages = append(delivery.Messages, inbound)
			}
			s.ingestor.Ingest(c.Request().Context(), delivery)
		}
	}
	return c.NoContent(http.StatusOK)
}
