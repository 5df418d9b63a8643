package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mixelka/unibox/internal/provider"
	"github.com/mixelka/unibox/pkg/models"
)

// Store persists refreshed credentials
type Store interface {
	GetAccountByID(ctx context.Context, id int64) (*models.PlatformAccount, error)
	UpdateAccountTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error
}

// Manager validates a credential immediately before every outbound
// provider call. Validity is never cached beyond the stored expiry,
// since tokens can be invalidated out-of-band.
type Manager struct {
	store    Store
	registry *provider.Registry
	margin   time.Duration
	logger   *slog.Logger

	// advisory per-account locks so two concurrent requests seeing an
	// expired token serialize instead of double-refreshing
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewManager creates a token manager. margin is the safety window
// before the stored expiry within which a token is already treated as
// expired.
func NewManager(store Store, registry *provider.Registry, margin time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		registry: registry,
		margin:   margin,
		logger:   logger.With("component", "token_manager"),
		locks:    make(map[int64]*sync.Mutex),
	}
}

// EnsureValid returns once the account carries a usable access token,
// refreshing and persisting it when needed. The account is updated in
// place. A credential that cannot be refreshed fails with
// provider.ErrReauthRequired; transient provider failures propagate
// unchanged.
func (m *Manager) EnsureValid(ctx context.Context, account *models.PlatformAccount) error {
	if m.fresh(account) {
		return nil
	}

	lock := m.lockFor(account.ID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock: a concurrent caller may have refreshed
	// while we waited.
	stored, err := m.store.GetAccountByID(ctx, account.ID)
	if err == nil {
		*account = *stored
		if m.fresh(account) {
			return nil
		}
	}

	adapter, ok := m.registry.Get(account.PlatformType)
	if !ok {
		return fmt.Errorf("no adapter registered for platform %s", account.PlatformType)
	}
	if account.RefreshToken == "" {
		return fmt.Errorf("account %s has no refresh token: %w", account.AccountIdentifier, provider.ErrReauthRequired)
	}

	next, err := adapter.Refresh(ctx, provider.AccountCredential(account))
	if err != nil {
		if errors.Is(err, provider.ErrUnavailable) || errors.Is(err, provider.ErrRateLimited) {
			return fmt.Errorf("token refresh for %s: %w", account.AccountIdentifier, err)
		}
		// The provider rejected the refresh token or does not support
		// refresh at all; only the user can resolve this.
		return fmt.Errorf("token refresh for %s rejected (%v): %w", account.AccountIdentifier, err, provider.ErrReauthRequired)
	}

	account.AccessToken = next.AccessToken
	account.TokenExpiresAt = next.ExpiresAt
	if next.RefreshToken != "" {
		account.RefreshToken = next.RefreshToken
	}
	if err := m.store.UpdateAccountTokens(ctx, account.ID, account.AccessToken, next.RefreshToken, account.TokenExpiresAt); err != nil {
		return fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	m.logger.Info("refreshed access token",
		"platform", account.PlatformType,
		"account", account.AccountIdentifier,
	)
	return nil
}

// fresh reports whether the stored token is still usable without a
// network call. A nil expiry means the credential does not expire.
func (m *Manager) fresh(account *models.PlatformAccount) bool {
	if account.TokenExpiresAt == nil {
		return true
	}
	return time.Until(*account.TokenExpiresAt) > m.margin
}

func (m *Manager) lockFor(accountID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	return lock
}
