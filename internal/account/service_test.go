package account

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mixelka/unibox/internal/database"
	"github.com/mixelka/unibox/internal/provider"
	"github.com/mixelka/unibox/pkg/models"
)

type fakeStore struct {
	accounts   []*models.PlatformAccount
	connection *models.WhatsAppConnection
}

func (s *fakeStore) UpsertAccount(ctx context.Context, account *models.PlatformAccount) error {
	for _, a := range s.accounts {
		if a.UserID == account.UserID && a.PlatformType == account.PlatformType && a.AccountIdentifier == account.AccountIdentifier {
			a.AccessToken = account.AccessToken
			if account.RefreshToken != "" {
				a.RefreshToken = account.RefreshToken
			}
			a.TokenExpiresAt = account.TokenExpiresAt
			*account = *a
			return nil
		}
	}
	account.ID = int64(len(s.accounts) + 1)
	s.accounts = append(s.accounts, account)
	return nil
}

func (s *fakeStore) GetAccountsByUser(ctx context.Context, userID int64) ([]*models.PlatformAccount, error) {
	return s.accounts, nil
}

func (s *fakeStore) GetAccountsByPlatform(ctx context.Context, userID int64, platform models.Platform) ([]*models.PlatformAccount, error) {
	var out []*models.PlatformAccount
	for _, a := range s.accounts {
		if a.UserID == userID && a.PlatformType == platform {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) GetActiveAccount(ctx context.Context, userID int64, platform models.Platform) (*models.PlatformAccount, error) {
	for _, a := range s.accounts {
		if a.UserID == userID && a.PlatformType == platform && a.IsActive {
			return a, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) SetActiveAccount(ctx context.Context, userID int64, platform models.Platform, identifier string) error {
	found := false
	for _, a := range s.accounts {
		if a.UserID != userID || a.PlatformType != platform {
			continue
		}
		a.IsActive = a.AccountIdentifier == identifier
		if a.IsActive {
			found = true
		}
	}
	if !found {
		return database.ErrNotFound
	}
	return nil
}

func (s *fakeStore) DeleteAccount(ctx context.Context, userID int64, platform models.Platform, identifier string) error {
	for i, a := range s.accounts {
		if a.UserID == userID && a.PlatformType == platform && a.AccountIdentifier == identifier {
			s.accounts = append(s.accounts[:i], s.accounts[i+1:]...)
			return nil
		}
	}
	return database.ErrNotFound
}

func (s *fakeStore) UpsertWhatsAppConnection(ctx context.Context, conn *models.WhatsAppConnection) error {
	conn.IsConnected = true
	s.connection = conn
	return nil
}

func (s *fakeStore) GetConnectedWhatsApp(ctx context.Context, userID int64) (*models.WhatsAppConnection, error) {
	if s.connection == nil {
		return nil, database.ErrNotFound
	}
	return s.connection, nil
}

func (s *fakeStore) DisconnectWhatsApp(ctx context.Context, userID int64) error {
	if s.connection == nil {
		return database.ErrNotFound
	}
	s.connection = nil
	return nil
}

type fakeAdapter struct {
	platform models.Platform
	cred     *provider.Credential
}

func (a *fakeAdapter) Platform() models.Platform { return a.platform }

func (a *fakeAdapter) AuthorizationURL(state string) (string, error) {
	return "https://auth.example.com/consent?state=" + state, nil
}

func (a *fakeAdapter) ExchangeCode(ctx context.Context, code string) (*provider.Credential, error) {
	return a.cred, nil
}

func (a *fakeAdapter) Refresh(ctx context.Context, cred *provider.Credential) (*provider.Credential, error) {
	return nil, provider.ErrUnsupported
}

func (a *fakeAdapter) FetchRecent(ctx context.Context, cred *provider.Credential) ([]*provider.RawMessage, error) {
	return nil, nil
}

func (a *fakeAdapter) Send(ctx context.Context, cred *provider.Credential, env *provider.Envelope) (string, error) {
	return "", provider.ErrUnsupported
}

func (a *fakeAdapter) FetchAttachment(ctx context.Context, cred *provider.Credential, messageID, attachmentID string) ([]byte, error) {
	return nil, provider.ErrUnsupported
}

func newTestService(store *fakeStore, adapters ...provider.Adapter) *Service {
	registry := provider.NewRegistry()
	for _, a := range adapters {
		registry.Register(a)
	}
	return NewService(store, registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func connected(userID int64, identifier string, active bool) *models.PlatformAccount {
	return &models.PlatformAccount{
		UserID:            userID,
		PlatformType:      models.PlatformGmail,
		AccountIdentifier: identifier,
		AccessToken:       "access",
		IsActive:          active,
	}
}

func TestCompleteOAuthConnectsAndActivates(t *testing.T) {
	store := &fakeStore{}
	expiry := time.Now().Add(time.Hour)
	adapter := &fakeAdapter{
		platform: models.PlatformGmail,
		cred: &provider.Credential{
			AccountIdentifier: "user@example.com",
			AccessToken:       "access",
			RefreshToken:      "refresh",
			ExpiresAt:         &expiry,
		},
	}
	svc := newTestService(store, adapter)

	account, err := svc.CompleteOAuth(context.Background(), 1, models.PlatformGmail, "code-1")
	if err != nil {
		t.Fatalf("CompleteOAuth: %v", err)
	}
	if account.AccountIdentifier != "user@example.com" {
		t.Errorf("identifier = %q", account.AccountIdentifier)
	}
	if !account.IsActive {
		t.Error("newly connected account is not active")
	}
}

func TestCompleteOAuthNewAccountTakesOverActive(t *testing.T) {
	store := &fakeStore{accounts: []*models.PlatformAccount{connected(1, "old@example.com", true)}}
	adapter := &fakeAdapter{
		platform: models.PlatformGmail,
		cred:     &provider.Credential{AccountIdentifier: "new@example.com", AccessToken: "access"},
	}
	svc := newTestService(store, adapter)

	if _, err := svc.CompleteOAuth(context.Background(), 1, models.PlatformGmail, "code-1"); err != nil {
		t.Fatalf("CompleteOAuth: %v", err)
	}

	active, err := store.GetActiveAccount(context.Background(), 1, models.PlatformGmail)
	if err != nil {
		t.Fatalf("GetActiveAccount: %v", err)
	}
	if active.AccountIdentifier != "new@example.com" {
		t.Errorf("active = %q, want the newly connected account", active.AccountIdentifier)
	}
}

func TestDisconnectPromotesRemainingAccount(t *testing.T) {
	store := &fakeStore{accounts: []*models.PlatformAccount{
		connected(1, "a@example.com", true),
		connected(1, "b@example.com", false),
	}}
	svc := newTestService(store)

	if err := svc.Disconnect(context.Background(), 1, models.PlatformGmail, "a@example.com"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	active, err := store.GetActiveAccount(context.Background(), 1, models.PlatformGmail)
	if err != nil {
		t.Fatalf("no active account after disconnect: %v", err)
	}
	if active.AccountIdentifier != "b@example.com" {
		t.Errorf("active = %q, want the remaining account promoted", active.AccountIdentifier)
	}
}

func TestDisconnectInactiveAccountKeepsActive(t *testing.T) {
	store := &fakeStore{accounts: []*models.PlatformAccount{
		connected(1, "a@example.com", true),
		connected(1, "b@example.com", false),
	}}
	svc := newTestService(store)

	if err := svc.Disconnect(context.Background(), 1, models.PlatformGmail, "b@example.com"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	active, err := store.GetActiveAccount(context.Background(), 1, models.PlatformGmail)
	if err != nil {
		t.Fatalf("GetActiveAccount: %v", err)
	}
	if active.AccountIdentifier != "a@example.com" {
		t.Errorf("active = %q, want unchanged", active.AccountIdentifier)
	}
}

func TestConnectWhatsAppValidatesInput(t *testing.T) {
	svc := newTestService(&fakeStore{})

	if _, err := svc.ConnectWhatsApp(context.Background(), 1, "", "+15550001111", "token", ""); err == nil {
		t.Error("missing phone number id accepted")
	}
	if _, err := svc.ConnectWhatsApp(context.Background(), 1, "pn-1", "+15550001111", "", ""); err == nil {
		t.Error("missing access token accepted")
	}
}

func TestAuthorizationURLUnsupportedPlatform(t *testing.T) {
	svc := newTestService(&fakeStore{})

	if _, err := svc.AuthorizationURL(models.PlatformGmail, "state"); err == nil {
		t.Error("unregistered platform produced a consent URL")
	}
}
