package autoreply

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mixelka/unibox/internal/config"
	"github.com/mixelka/unibox/internal/provider"
	"github.com/mixelka/unibox/internal/token"
	"github.com/mixelka/unibox/pkg/models"
)

// Store is the persistence surface for the worker
type Store interface {
	ListAutoReplyCandidates(ctx context.Context) ([]*models.Message, error)
	MarkAutoReplied(ctx context.Context, id int64) error
	MarkSkipped(ctx context.Context, id int64) error
	GetAccount(ctx context.Context, userID int64, platform models.Platform, identifier string) (*models.PlatformAccount, error)
	GetConnectedWhatsApp(ctx context.Context, userID int64) (*models.WhatsAppConnection, error)
}

// Worker answers new inbound messages exactly once each. It polls on a
// fixed interval, single-flight: a pass runs to completion before the
// next tick is considered. A message whose reply fails stays eligible
// and is retried on the next pass.
type Worker struct {
	store    Store
	tokens   *token.Manager
	registry *provider.Registry
	cfg      *config.Config
	logger   *slog.Logger
}

// NewWorker creates the auto-reply worker
func NewWorker(store Store, tokens *token.Manager, registry *provider.Registry, cfg *config.Config, logger *slog.Logger) *Worker {
	return &Worker{
		store:    store,
		tokens:   tokens,
		registry: registry,
		cfg:      cfg,
		logger:   logger.With("component", "autoreply"),
	}
}

// Run polls until ctx is cancelled
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.AutoReplyPollInterval)
	defer ticker.Stop()

	w.logger.Info("auto-reply worker started", "interval", w.cfg.AutoReplyPollInterval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("auto-reply worker stopped")
			return
		case <-ticker.C:
			w.ProcessPass(ctx)
		}
	}
}

// ProcessPass answers every pending candidate once. Cancellation is
// observed between messages so a large batch can be interrupted at
// shutdown without finishing the whole pass.
func (w *Worker) ProcessPass(ctx context.Context) {
	candidates, err := w.store.ListAutoReplyCandidates(ctx)
	if err != nil {
		w.logger.Error("failed to list auto-reply candidates", "error", err)
		return
	}

	for _, msg := range candidates {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.reply(ctx, msg); err != nil {
			// stays is_new and is retried on the next pass
			w.logger.Error("failed to send auto-reply",
				"platform", msg.PlatformType,
				"external_id", externalID(msg),
				"account", msg.AccountIdentifier,
				"error", err,
			)
			continue
		}
	}
}

func (w *Worker) reply(ctx context.Context, msg *models.Message) error {
	adapter, ok := w.registry.Get(msg.PlatformType)
	if !ok {
		w.logger.Warn("skipping auto-reply for unsupported platform", "platform", msg.PlatformType)
		return w.store.MarkSkipped(ctx, msg.ID)
	}

	cred, err := w.credentialFor(ctx, msg)
	if err != nil {
		return err
	}

	env := &provider.Envelope{
		To:      msg.FromAddr,
		Subject: replySubject(msg),
		Body:    w.cfg.TemplateFor(msg.PlatformType),
	}
	if _, err := adapter.Send(ctx, cred, env); err != nil {
		return err
	}

	// Flip the flags only after the send succeeded so a failed message
	// remains eligible; a flipped message never reappears in a pass.
	if err := w.store.MarkAutoReplied(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message auto-replied: %w", err)
	}

	w.logger.Info("sent auto-reply",
		"platform", msg.PlatformType,
		"external_id", externalID(msg),
		"account", msg.AccountIdentifier,
	)
	return nil
}

// credentialFor resolves the connected account the message arrived on
func (w *Worker) credentialFor(ctx context.Context, msg *models.Message) (*provider.Credential, error) {
	if msg.PlatformType == models.PlatformWhatsApp {
		conn, err := w.store.GetConnectedWhatsApp(ctx, msg.UserID)
		if err != nil {
			return nil, fmt.Errorf("no connected whatsapp number: %w", err)
		}
		return provider.ConnectionCredential(conn), nil
	}

	account, err := w.store.GetAccount(ctx, msg.UserID, msg.PlatformType, msg.AccountIdentifier)
	if err != nil {
		return nil, fmt.Errorf("no credential for account %s: %w", msg.AccountIdentifier, err)
	}
	if err := w.tokens.EnsureValid(ctx, account); err != nil {
		return nil, err
	}
	return provider.AccountCredential(account), nil
}

// replySubject mirrors email threading for mail platforms only
func replySubject(msg *models.Message) string {
	switch msg.PlatformType {
	case models.PlatformGmail, models.PlatformOutlook:
		return "Re: " + msg.Subject
	default:
		return ""
	}
}

func externalID(msg *models.Message) string {
	if msg.ExternalMessageID == nil {
		return ""
	}
	return *msg.ExternalMessageID
}
