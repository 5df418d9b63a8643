package webhook

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mixelka/unibox/internal/database"
	"github.com/mixelka/unibox/internal/parser"
	"github.com/mixelka/unibox/pkg/models"
)

const snippetLimit = 120

// Delivery is a provider push payload normalized by the receiver
type Delivery struct {
	RoutingID string // provider-supplied routing id (phone-number-id for WhatsApp)
	Messages  []InboundMessage
}

// InboundMessage is one pushed message
type InboundMessage struct {
	ExternalID string
	From       string
	FromName   string
	Body       string
	ReceivedAt time.Time
}

// Store is the persistence surface for ingestion
type Store interface {
	GetWhatsAppByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.WhatsAppConnection, error)
	HasExternalID(ctx context.Context, platform models.Platform, externalID string) (bool, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
}

// Ingestor inserts webhook deliveries into the message store
// idempotently. It never reports failure upward: the provider expects
// an acknowledgement regardless, so problems are logged and dropped.
type Ingestor struct {
	store  Store
	parser *parser.BodyParser
	logger *slog.Logger
}

// NewIngestor creates a webhook ingestor
func NewIngestor(store Store, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		store:  store,
		parser: parser.NewBodyParser(),
		logger: logger.With("component", "webhook"),
	}
}

// Ingest processes one delivery. Messages already stored (provider
// redelivery) are skipped silently; new ones enter the store flagged
// for the auto-reply worker.
func (i *Ingestor) Ingest(ctx context.Context, d *Delivery) {
	conn, err := i.store.GetWhatsAppByPhoneNumberID(ctx, d.RoutingID)
	if errors.Is(err, database.ErrNotFound) {
		i.logger.Warn("no connected account for webhook routing id", "routing_id", d.RoutingID)
		return
	}
	if err != nil {
		i.logger.Error("failed to resolve webhook routing id", "routing_id", d.RoutingID, "error", err)
		return
	}

	for _, inbound := range d.Messages {
		if inbound.ExternalID == "" {
			i.logger.Warn("dropping webhook message without external id", "routing_id", d.RoutingID)
			continue
		}

		// Webhook payloads are always for one provider, so platform
		// plus external id is a sufficient dedup check.
		exists, err := i.store.HasExternalID(ctx, models.PlatformWhatsApp, inbound.ExternalID)
		if err != nil {
			i.logger.Error("failed to check message existence", "external_id", inbound.ExternalID, "error", err)
			continue
		}
		if exists {
			continue
		}

		receivedAt := inbound.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = time.Now()
		}
		externalID := inbound.ExternalID
		msg := &models.Message{
			UserID:            conn.UserID,
			PlatformType:      models.PlatformWhatsApp,
			ExternalMessageID: &externalID,
			AccountIdentifier: conn.PhoneNumber,
			Snippet:           i.parser.Snippet(inbound.Body, snippetLimit),
			Body:              inbound.Body,
			FromName:          inbound.FromName,
			FromAddr:          inbound.From,
			ToAddr:            conn.PhoneNumber,
			ReceivedAt:        receivedAt,
			IsNew:             true, // hand-off to the auto-reply worker
		}
		err = i.store.CreateMessage(ctx, msg)
		if errors.Is(err, database.ErrAlreadyExists) {
			// raced with a concurrent redelivery
			continue
		}
		if err != nil {
			i.logger.Error("failed to store webhook message", "external_id", inbound.ExternalID, "error", err)
			continue
		}
		i.logger.Info("ingested webhook message",
			"external_id", inbound.ExternalID,
			"from", inbound.From,
			"user_id", conn.UserID,
		)
	}
}
