package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mixelka/unibox/internal/provider"
	"github.com/mixelka/unibox/pkg/models"
)

// Store is the persistence surface for account lifecycle operations
type Store interface {
	UpsertAccount(ctx context.Context, account *models.PlatformAccount) error
	GetAccountsByUser(ctx context.Context, userID int64) ([]*models.PlatformAccount, error)
	GetAccountsByPlatform(ctx context.Context, userID int64, platform models.Platform) ([]*models.PlatformAccount, error)
	GetActiveAccount(ctx context.Context, userID int64, platform models.Platform) (*models.PlatformAccount, error)
	SetActiveAccount(ctx context.Context, userID int64, platform models.Platform, identifier string) error
	DeleteAccount(ctx context.Context, userID int64, platform models.Platform, identifier string) error
	UpsertWhatsAppConnection(ctx context.Context, conn *models.WhatsAppConnection) error
	GetConnectedWhatsApp(ctx context.Context, userID int64) (*models.WhatsAppConnection, error)
	DisconnectWhatsApp(ctx context.Context, userID int64) error
}

// Service manages connecting, switching and disconnecting platform
// accounts.
type Service struct {
	store    Store
	registry *provider.Registry
	logger   *slog.Logger
}

// NewService creates the account service
func NewService(store Store, registry *provider.Registry, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		registry: registry,
		logger:   logger.With("component", "account"),
	}
}

// AuthorizationURL returns the provider consent URL for connecting a
// new account.
func (s *Service) AuthorizationURL(platform models.Platform, state string) (string, error) {
	adapter, ok := s.registry.Get(platform)
	if !ok {
		return "", fmt.Errorf("unsupported platform %s: %w", platform, provider.ErrUnsupported)
	}
	return adapter.AuthorizationURL(state)
}

// CompleteOAuth finishes the authorization-code flow: exchanges the
// code, stores the credential, and makes the account the active one
// for its platform.
func (s *Service) CompleteOAuth(ctx context.Context, userID int64, platform models.Platform, code string) (*models.PlatformAccount, error) {
	adapter, ok := s.registry.Get(platform)
	if !ok {
		return nil, fmt.Errorf("unsupported platform %s: %w", platform, provider.ErrUnsupported)
	}

	cred, err := adapter.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	account := &models.PlatformAccount{
		UserID:            userID,
		PlatformType:      platform,
		AccountIdentifier: cred.AccountIdentifier,
		AccessToken:       cred.AccessToken,
		RefreshToken:      cred.RefreshToken,
		TokenExpiresAt:    cred.ExpiresAt,
		ExternalAccountID: cred.ExternalAccountID,
	}
	if err := s.store.UpsertAccount(ctx, account); err != nil {
		return nil, err
	}
	if err := s.store.SetActiveAccount(ctx, userID, platform, account.AccountIdentifier); err != nil {
		return nil, err
	}
	account.IsActive = true

	s.logger.Info("connected account",
		"platform", platform,
		"account", account.AccountIdentifier,
		"user_id", userID,
	)
	return account, nil
}

// SwitchActive makes another connected account the platform's active
// one; the previous active account ceases to be eligible for default
// sends.
func (s *Service) SwitchActive(ctx context.Context, userID int64, platform models.Platform, identifier string) error {
	return s.store.SetActiveAccount(ctx, userID, platform, identifier)
}

// Disconnect removes an account. When the removed account was active,
// the most recently connected remaining account takes over.
func (s *Service) Disconnect(ctx context.Context, userID int64, platform models.Platform, identifier string) error {
	active, err := s.store.GetActiveAccount(ctx, userID, platform)
	wasActive := err == nil && active.AccountIdentifier == identifier

	if err := s.store.DeleteAccount(ctx, userID, platform, identifier); err != nil {
		return err
	}

	if wasActive {
		remaining, err := s.store.GetAccountsByPlatform(ctx, userID, platform)
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			if err := s.store.SetActiveAccount(ctx, userID, platform, remaining[0].AccountIdentifier); err != nil {
				return err
			}
		}
	}

	s.logger.Info("disconnected account", "platform", platform, "account", identifier, "user_id", userID)
	return nil
}

// List returns all connected accounts for a user
func (s *Service) List(ctx context.Context, userID int64) ([]*models.PlatformAccount, error) {
	return s.store.GetAccountsByUser(ctx, userID)
}

// ConnectWhatsApp stores a WhatsApp Business credential supplied
// directly by the user. Any previously connected number disconnects.
func (s *Service) ConnectWhatsApp(ctx context.Context, userID int64, phoneNumberID, phoneNumber, accessToken, businessName string) (*models.WhatsAppConnection, error) {
	if phoneNumberID == "" || phoneNumber == "" || accessToken == "" {
		return nil, fmt.Errorf("phone number id, phone number and access token are required")
	}
	conn := &models.WhatsAppConnection{
		UserID:        userID,
		PhoneNumberID: phoneNumberID,
		PhoneNumber:   phoneNumber,
		AccessToken:   accessToken,
		BusinessName:  businessName,
	}
	if err := s.store.UpsertWhatsAppConnection(ctx, conn); err != nil {
		return nil, err
	}
	s.logger.Info("connected whatsapp number", "phone_number", phoneNumber, "user_id", userID)
	return conn, nil
}

// DisconnectWhatsApp disconnects the user's WhatsApp number
func (s *Service) DisconnectWhatsApp(ctx context.Context, userID int64) error {
	return s.store.DisconnectWhatsApp(ctx, userID)
}
