package autoreply

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mixelka/unibox/internal/config"
	"github.com/mixelka/unibox/internal/database"
	"github.com/mixelka/unibox/internal/provider"
	"github.com/mixelka/unibox/internal/token"
	"github.com/mixelka/unibox/pkg/models"
)

type fakeStore struct {
	mu         sync.Mutex
	candidates []*models.Message
	accounts   map[string]*models.PlatformAccount
	connection *models.WhatsAppConnection
	replied    []int64
	skipped    []int64
}

func (s *fakeStore) ListAutoReplyCandidates(ctx context.Context) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Message, len(s.candidates))
	copy(out, s.candidates)
	return out, nil
}

func (s *fakeStore) MarkAutoReplied(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replied = append(s.replied, id)
	s.removeCandidate(id)
	return nil
}

func (s *fakeStore) MarkSkipped(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = append(s.skipped, id)
	s.removeCandidate(id)
	return nil
}

func (s *fakeStore) removeCandidate(id int64) {
	kept := s.candidates[:0]
	for _, m := range s.candidates {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	s.candidates = kept
}

func (s *fakeStore) GetAccount(ctx context.Context, userID int64, platform models.Platform, identifier string) (*models.PlatformAccount, error) {
	account, ok := s.accounts[identifier]
	if !ok {
		return nil, database.ErrNotFound
	}
	return account, nil
}

func (s *fakeStore) GetConnectedWhatsApp(ctx context.Context, userID int64) (*models.WhatsAppConnection, error) {
	if s.connection == nil {
		return nil, database.ErrNotFound
	}
	return s.connection, nil
}

// token.Manager store surface; accounts in these tests never expire
func (s *fakeStore) GetAccountByID(ctx context.Context, id int64) (*models.PlatformAccount, error) {
	return nil, database.ErrNotFound
}

func (s *fakeStore) UpdateAccountTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	return nil
}

type sentReply struct {
	cred *provider.Credential
	env  *provider.Envelope
}

type fakeAdapter struct {
	platform models.Platform
	mu       sync.Mutex
	sent     []sentReply
	sendErr  error
	onSend   func()
}

func (a *fakeAdapter) Platform() models.Platform { return a.platform }

func (a *fakeAdapter) AuthorizationURL(state string) (string, error) {
	return "", provider.ErrUnsupported
}

func (a *fakeAdapter) ExchangeCode(ctx context.Context, code string) (*provider.Credential, error) {
	return nil, provider.ErrUnsupported
}

func (a *fakeAdapter) Refresh(ctx context.Context, cred *provider.Credential) (*provider.Credential, error) {
	return nil, provider.ErrUnsupported
}

func (a *fakeAdapter) FetchRecent(ctx context.Context, cred *provider.Credential) ([]*provider.RawMessage, error) {
	return nil, nil
}

func (a *fakeAdapter) Send(ctx context.Context, cred *provider.Credential, env *provider.Envelope) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.onSend != nil {
		a.onSend()
	}
	if a.sendErr != nil {
		return "", a.sendErr
	}
	a.sent = append(a.sent, sentReply{cred: cred, env: env})
	return "reply-id", nil
}

func (a *fakeAdapter) FetchAttachment(ctx context.Context, cred *provider.Credential, messageID, attachmentID string) ([]byte, error) {
	return nil, provider.ErrUnsupported
}

func (a *fakeAdapter) sentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

func testConfig() *config.Config {
	return &config.Config{
		AutoReplyPollInterval: time.Second,
		AutoReplyTemplate:     "Thank you for your message!",
		RefreshThreshold:      30 * time.Second,
	}
}

func newTestWorker(store *fakeStore, adapters ...provider.Adapter) *Worker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := provider.NewRegistry()
	for _, a := range adapters {
		registry.Register(a)
	}
	tokens := token.NewManager(store, registry, 5*time.Minute, logger)
	return NewWorker(store, tokens, registry, testConfig(), logger)
}

func externalIDPtr(s string) *string { return &s }

func gmailCandidate(id int64) *models.Message {
	return &models.Message{
		ID:                id,
		UserID:            1,
		PlatformType:      models.PlatformGmail,
		ExternalMessageID: externalIDPtr("ext-1"),
		AccountIdentifier: "user@example.com",
		Subject:           "hello",
		FromName:          "Alice",
		FromAddr:          "alice@example.com",
		IsNew:             true,
	}
}

func gmailAccount() *models.PlatformAccount {
	return &models.PlatformAccount{
		ID:                1,
		UserID:            1,
		PlatformType:      models.PlatformGmail,
		AccountIdentifier: "user@example.com",
		AccessToken:       "access",
	}
}

func TestProcessPassRepliesExactlyOnce(t *testing.T) {
	store := &fakeStore{
		candidates: []*models.Message{gmailCandidate(1)},
		accounts:   map[string]*models.PlatformAccount{"user@example.com": gmailAccount()},
	}
	adapter := &fakeAdapter{platform: models.PlatformGmail}
	w := newTestWorker(store, adapter)

	w.ProcessPass(context.Background())
	w.ProcessPass(context.Background())

	if n := adapter.sentCount(); n != 1 {
		t.Fatalf("sent %d replies across two passes, want 1", n)
	}
	if len(store.replied) != 1 || store.replied[0] != 1 {
		t.Errorf("marked replied = %v, want [1]", store.replied)
	}

	reply := adapter.sent[0]
	if reply.env.To != "alice@example.com" {
		t.Errorf("reply to = %q, want the sender address", reply.env.To)
	}
	if reply.env.Subject != "Re: hello" {
		t.Errorf("reply subject = %q, want Re: hello", reply.env.Subject)
	}
	if reply.env.Body != "Thank you for your message!" {
		t.Errorf("reply body = %q, want the template", reply.env.Body)
	}
}

func TestProcessPassRetriesFailedSend(t *testing.T) {
	store := &fakeStore{
		candidates: []*models.Message{gmailCandidate(1)},
		accounts:   map[string]*models.PlatformAccount{"user@example.com": gmailAccount()},
	}
	adapter := &fakeAdapter{platform: models.PlatformGmail, sendErr: provider.ErrUnavailable}
	w := newTestWorker(store, adapter)

	w.ProcessPass(context.Background())
	if len(store.replied) != 0 {
		t.Fatal("message marked replied despite a failed send")
	}

	adapter.mu.Lock()
	adapter.sendErr = nil
	adapter.mu.Unlock()

	w.ProcessPass(context.Background())
	if n := adapter.sentCount(); n != 1 {
		t.Fatalf("sent %d replies after retry, want 1", n)
	}
	if len(store.replied) != 1 {
		t.Errorf("marked replied = %v, want one entry", store.replied)
	}
}

func TestProcessPassSkipsUnsupportedPlatform(t *testing.T) {
	msg := gmailCandidate(1)
	msg.PlatformType = models.PlatformLinkedIn
	store := &fakeStore{candidates: []*models.Message{msg}}
	// no adapter registered for linkedin
	w := newTestWorker(store)

	w.ProcessPass(context.Background())

	if len(store.skipped) != 1 || store.skipped[0] != 1 {
		t.Errorf("marked skipped = %v, want [1]", store.skipped)
	}
	if len(store.replied) != 0 {
		t.Error("unsupported platform message marked replied")
	}
}

func TestProcessPassStopsBetweenMessagesOnCancel(t *testing.T) {
	store := &fakeStore{
		candidates: []*models.Message{gmailCandidate(1), gmailCandidate(2)},
		accounts:   map[string]*models.PlatformAccount{"user@example.com": gmailAccount()},
	}
	ctx, cancel := context.WithCancel(context.Background())
	adapter := &fakeAdapter{platform: models.PlatformGmail, onSend: cancel}
	w := newTestWorker(store, adapter)

	w.ProcessPass(ctx)

	if n := adapter.sentCount(); n != 1 {
		t.Errorf("sent %d replies after cancellation, want 1", n)
	}
}

func TestWhatsAppReplyUsesConnection(t *testing.T) {
	msg := gmailCandidate(1)
	msg.PlatformType = models.PlatformWhatsApp
	msg.AccountIdentifier = "+15550001111"
	msg.FromAddr = "+15559992222"
	msg.Subject = ""

	store := &fakeStore{
		candidates: []*models.Message{msg},
		connection: &models.WhatsAppConnection{
			UserID:        1,
			PhoneNumberID: "pn-123",
			PhoneNumber:   "+15550001111",
			AccessToken:   "wa-token",
			IsConnected:   true,
		},
	}
	adapter := &fakeAdapter{platform: models.PlatformWhatsApp}
	w := newTestWorker(store, adapter)

	w.ProcessPass(context.Background())

	if n := adapter.sentCount(); n != 1 {
		t.Fatalf("sent %d replies, want 1", n)
	}
	reply := adapter.sent[0]
	if reply.cred.AccessToken != "wa-token" {
		t.Errorf("reply credential token = %q, want the connection token", reply.cred.AccessToken)
	}
	if reply.cred.ExternalAccountID != "pn-123" {
		t.Errorf("reply routing id = %q, want pn-123", reply.cred.ExternalAccountID)
	}
	if reply.env.Subject != "" {
		t.Errorf("chat reply carries subject %q", reply.env.Subject)
	}
}

func TestProcessPassMissingCredentialRetriesLater(t *testing.T) {
	store := &fakeStore{
		candidates: []*models.Message{gmailCandidate(1)},
		accounts:   map[string]*models.PlatformAccount{},
	}
	adapter := &fakeAdapter{platform: models.PlatformGmail}
	w := newTestWorker(store, adapter)

	w.ProcessPass(context.Background())

	if len(store.replied) != 0 || len(store.skipped) != 0 {
		t.Error("message resolved despite a missing credential")
	}
	if n := adapter.sentCount(); n != 0 {
		t.Errorf("sent %d replies without a credential", n)
	}
}
