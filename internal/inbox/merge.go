package inbox

import (
	"context"
	"errors"
	"sort"

	"github.com/mixelka/unibox/internal/database"
	"github.com/mixelka/unibox/internal/provider"
	"github.com/mixelka/unibox/pkg/models"
)

// mergeFetched inserts provider results not yet in the store for this
// account. The merge is append-only: it never rewrites an existing row,
// so local read-state and auto-reply flags survive repeated syncs.
func (s *Service) mergeFetched(ctx context.Context, account *models.PlatformAccount, fetched []*provider.RawMessage) error {
	existing, err := s.store.ExistingExternalIDs(ctx, account.UserID, account.PlatformType, account.AccountIdentifier)
	if err != nil {
		return err
	}

	for _, raw := range fetched {
		if raw.ExternalID != "" {
			if _, ok := existing[raw.ExternalID]; ok {
				continue
			}
		}

		msg, attachments := s.recordFromRaw(account, raw)
		err := s.store.CreateMessageWithAttachments(ctx, msg, attachments)
		if errors.Is(err, database.ErrAlreadyExists) {
			// lost a race with a concurrent sync of the same account
			continue
		}
		if err != nil {
			return err
		}
		if raw.ExternalID != "" {
			existing[raw.ExternalID] = struct{}{}
		}
	}
	return nil
}

// recordFromRaw normalizes a provider message into a stored record.
// The body text and snippet fall back to flattened HTML when the
// provider supplied only an HTML body.
func (s *Service) recordFromRaw(account *models.PlatformAccount, raw *provider.RawMessage) (*models.Message, []*models.MessageAttachment) {
	body := raw.Body
	if body == "" && raw.HTMLBody != "" {
		if text, err := s.parser.PlainText(raw.HTMLBody); err == nil {
			body = text
		}
	}
	snippet := raw.Snippet
	if snippet == "" {
		snippet = s.parser.Snippet(body, snippetLimit)
	}

	msg := &models.Message{
		UserID:            account.UserID,
		PlatformType:      account.PlatformType,
		AccountIdentifier: account.AccountIdentifier,
		Subject:           raw.Subject,
		Snippet:           snippet,
		Body:              body,
		HTMLBody:          raw.HTMLBody,
		FromName:          raw.FromName,
		FromAddr:          raw.FromAddr,
		ToAddr:            raw.ToAddr,
		ReceivedAt:        raw.ReceivedAt,
		HasAttachments:    len(raw.Attachments) > 0,
	}
	if raw.ExternalID != "" {
		id := raw.ExternalID
		msg.ExternalMessageID = &id
	}

	attachments := make([]*models.MessageAttachment, 0, len(raw.Attachments))
	for _, a := range raw.Attachments {
		att := &models.MessageAttachment{
			AttachmentID: a.ID,
			FileName:     a.FileName,
			ContentType:  a.ContentType,
			Size:         a.Size,
		}
		// Inline content only below the small-object threshold; larger
		// attachments are fetched on demand.
		if a.Content != nil && int64(len(a.Content)) <= s.cfg.AttachmentInlineLimit {
			att.Content = a.Content
		}
		attachments = append(attachments, att)
	}
	return msg, attachments
}

type dedupKey struct {
	externalID        string
	accountIdentifier string
}

// dedupeLatest collapses duplicate (external id, account identifier)
// pairs keeping the most recently received copy. Messages without an
// external id pass through untouched: a nil id is never a dedup key.
func dedupeLatest(messages []*models.Message) []*models.Message {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.After(messages[j].ReceivedAt)
	})

	seen := make(map[dedupKey]struct{}, len(messages))
	out := make([]*models.Message, 0, len(messages))
	for _, m := range messages {
		if m.ExternalMessageID == nil {
			out = append(out, m)
			continue
		}
		key := dedupKey{*m.ExternalMessageID, m.AccountIdentifier}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}
