package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mixelka/unibox/internal/config"
	"github.com/mixelka/unibox/internal/database"
	"github.com/mixelka/unibox/internal/parser"
	"github.com/mixelka/unibox/internal/provider"
	"github.com/mixelka/unibox/internal/token"
	"github.com/mixelka/unibox/pkg/models"
)

const snippetLimit = 120

// Store is the persistence surface the orchestrator needs
type Store interface {
	GetAccountsByUser(ctx context.Context, userID int64) ([]*models.PlatformAccount, error)
	GetAccount(ctx context.Context, userID int64, platform models.Platform, identifier string) (*models.PlatformAccount, error)
	GetActiveAccount(ctx context.Context, userID int64, platform models.Platform) (*models.PlatformAccount, error)
	GetConnectedWhatsApp(ctx context.Context, userID int64) (*models.WhatsAppConnection, error)
	ListMessages(ctx context.Context, userID int64, platform *models.Platform, unread *bool, limit int) ([]*models.Message, error)
	GetMessageByExternal(ctx context.Context, userID int64, externalID, accountIdentifier string) (*models.Message, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	CreateMessageWithAttachments(ctx context.Context, msg *models.Message, attachments []*models.MessageAttachment) error
	MarkMessageRead(ctx context.Context, id int64) error
	ExistingExternalIDs(ctx context.Context, userID int64, platform models.Platform, accountIdentifier string) (map[string]struct{}, error)
	GetSyncCursors(ctx context.Context, userID int64) (map[models.Platform]time.Time, error)
	TouchSyncCursor(ctx context.Context, userID int64, platform models.Platform) error
	GetAttachment(ctx context.Context, messageID int64, attachmentID string) (*models.MessageAttachment, error)
}

// Service is the sync orchestrator and inbox query surface. Per
// connected account it decides whether to trust stored messages or
// refresh from the provider, merges provider results without
// overwriting local state, and serves the consolidated view.
type Service struct {
	store    Store
	tokens   *token.Manager
	registry *provider.Registry
	cfg      *config.Config
	parser   *parser.BodyParser
	logger   *slog.Logger
}

// NewService creates the inbox service
func NewService(store Store, tokens *token.Manager, registry *provider.Registry, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		registry: registry,
		cfg:      cfg,
		parser:   parser.NewBodyParser(),
		logger:   logger.With("component", "inbox"),
	}
}

// GetConsolidated returns the user's messages across all connected
// accounts, refreshing stale platforms first. A provider outage for
// one account degrades to its stored baseline and never fails the
// whole view.
func (s *Service) GetConsolidated(ctx context.Context, userID int64, unread *bool, platform *models.Platform) ([]*models.Message, error) {
	accounts, err := s.store.GetAccountsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cursors, err := s.store.GetSyncCursors(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Distinct accounts refresh concurrently; each account's calls stay
	// serial.
	var wg sync.WaitGroup
	for _, account := range accounts {
		if platform != nil && account.PlatformType != *platform {
			continue
		}
		if !s.shouldRefresh(account.PlatformType, cursors) {
			continue
		}
		wg.Add(1)
		go func(acct *models.PlatformAccount) {
			defer wg.Done()
			if err := s.syncAccount(ctx, acct); err != nil {
				s.logger.Error("sync failed, serving stored messages",
					"platform", acct.PlatformType,
					"account", acct.AccountIdentifier,
					"error", err,
				)
			}
		}(account)
	}
	wg.Wait()

	messages, err := s.store.ListMessages(ctx, userID, platform, unread, s.cfg.MessageWindow)
	if err != nil {
		return nil, err
	}
	return dedupeLatest(messages), nil
}

// shouldRefresh applies the staleness policy: push-driven platforms
// are never polled; otherwise a missing cursor or one older than the
// platform threshold triggers a refresh.
func (s *Service) shouldRefresh(platform models.Platform, cursors map[models.Platform]time.Time) bool {
	if platform.PushDriven() {
		return false
	}
	last, synced := cursors[platform]
	if !synced {
		return true
	}
	return time.Since(last) > s.cfg.ThresholdFor(platform)
}

func (s *Service) syncAccount(ctx context.Context, account *models.PlatformAccount) error {
	adapter, ok := s.registry.Get(account.PlatformType)
	if !ok {
		return fmt.Errorf("no adapter registered for platform %s", account.PlatformType)
	}
	if err := s.tokens.EnsureValid(ctx, account); err != nil {
		return err
	}
	fetched, err := adapter.FetchRecent(ctx, provider.AccountCredential(account))
	if err != nil {
		return err
	}
	if err := s.mergeFetched(ctx, account, fetched); err != nil {
		return err
	}
	return s.store.TouchSyncCursor(ctx, account.UserID, account.PlatformType)
}

// Send dispatches a message through the named account, or the active
// account for the platform when none is named, and records it locally.
func (s *Service) Send(ctx context.Context, userID int64, platform models.Platform, accountIdentifier string, env *provider.Envelope) (*models.Message, error) {
	adapter, ok := s.registry.Get(platform)
	if !ok {
		return nil, fmt.Errorf("unsupported platform %s: %w", platform, provider.ErrUnsupported)
	}

	var cred *provider.Credential
	if platform == models.PlatformWhatsApp {
		conn, err := s.store.GetConnectedWhatsApp(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("no connected whatsapp number: %w", err)
		}
		cred = provider.ConnectionCredential(conn)
	} else {
		var account *models.PlatformAccount
		var err error
		if accountIdentifier != "" {
			account, err = s.store.GetAccount(ctx, userID, platform, accountIdentifier)
		} else {
			account, err = s.store.GetActiveAccount(ctx, userID, platform)
		}
		if err != nil {
			return nil, fmt.Errorf("no usable %s account: %w", platform, err)
		}
		if err := s.tokens.EnsureValid(ctx, account); err != nil {
			return nil, err
		}
		cred = provider.AccountCredential(account)
	}

	externalID, err := adapter.Send(ctx, cred, env)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		UserID:            userID,
		PlatformType:      platform,
		AccountIdentifier: cred.AccountIdentifier,
		Subject:           env.Subject,
		Snippet:           s.parser.Snippet(env.Body, snippetLimit),
		Body:              env.Body,
		FromName:          models.SentByUser,
		FromAddr:          cred.AccountIdentifier,
		ToAddr:            env.To,
		ReceivedAt:        time.Now(),
		IsRead:            true, // sent messages are already read
	}
	if externalID != "" {
		msg.ExternalMessageID = &externalID
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil && !errors.Is(err, database.ErrAlreadyExists) {
		return nil, err
	}
	return msg, nil
}

// GetMessage returns one message with attachment metadata, marking it
// read on first view.
func (s *Service) GetMessage(ctx context.Context, userID int64, externalID, accountIdentifier string) (*models.Message, error) {
	msg, err := s.store.GetMessageByExternal(ctx, userID, externalID, accountIdentifier)
	if err != nil {
		return nil, err
	}
	if !msg.IsRead {
		if err := s.store.MarkMessageRead(ctx, msg.ID); err != nil {
			return nil, err
		}
		msg.IsRead = true
	}
	return msg, nil
}

// MarkRead marks a message as read
func (s *Service) MarkRead(ctx context.Context, userID int64, externalID, accountIdentifier string) error {
	msg, err := s.store.GetMessageByExternal(ctx, userID, externalID, accountIdentifier)
	if err != nil {
		return err
	}
	return s.store.MarkMessageRead(ctx, msg.ID)
}

// GetAttachment returns an attachment with its content, serving the
// stored inline blob when present and fetching from the provider on
// demand otherwise. On-demand content is not written back.
func (s *Service) GetAttachment(ctx context.Context, userID int64, externalID, accountIdentifier, attachmentID string) (*models.MessageAttachment, error) {
	msg, err := s.store.GetMessageByExternal(ctx, userID, externalID, accountIdentifier)
	if err != nil {
		return nil, err
	}
	att, err := s.store.GetAttachment(ctx, msg.ID, attachmentID)
	if err != nil {
		return nil, err
	}
	if att.Content != nil {
		return att, nil
	}

	adapter, ok := s.registry.Get(msg.PlatformType)
	if !ok {
		return nil, fmt.Errorf("unsupported platform %s: %w", msg.PlatformType, provider.ErrUnsupported)
	}
	account, err := s.store.GetAccount(ctx, userID, msg.PlatformType, msg.AccountIdentifier)
	if err != nil {
		return nil, fmt.Errorf("no credential for account %s: %w", msg.AccountIdentifier, err)
	}
	if err := s.tokens.EnsureValid(ctx, account); err != nil {
		return nil, err
	}
	content, err := adapter.FetchAttachment(ctx, provider.AccountCredential(account), externalID, attachmentID)
	if err != nil {
		return nil, err
	}
	att.Content = content
	return att, nil
}
