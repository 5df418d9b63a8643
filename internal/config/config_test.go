package config

import (
	"testing"
	"time"

	"github.com/mixelka/unibox/pkg/models"
)

func TestThresholdFor(t *testing.T) {
	cfg := &Config{
		RefreshThreshold:      30 * time.Second,
		GmailRefreshThreshold: 2 * time.Minute,
	}

	if got := cfg.ThresholdFor(models.PlatformGmail); got != 2*time.Minute {
		t.Errorf("gmail threshold = %s, want the override", got)
	}
	if got := cfg.ThresholdFor(models.PlatformOutlook); got != 30*time.Second {
		t.Errorf("outlook threshold = %s, want the shared default", got)
	}
}

func TestTemplateFor(t *testing.T) {
	cfg := &Config{
		AutoReplyTemplate:         "default reply",
		AutoReplyTemplateWhatsApp: "chat reply",
	}

	if got := cfg.TemplateFor(models.PlatformWhatsApp); got != "chat reply" {
		t.Errorf("whatsapp template = %q, want the override", got)
	}
	if got := cfg.TemplateFor(models.PlatformGmail); got != "default reply" {
		t.Errorf("gmail template = %q, want the shared default", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RefreshThreshold != 30*time.Second {
		t.Errorf("refresh threshold = %s, want 30s", cfg.RefreshThreshold)
	}
	if cfg.TokenExpiryMargin != 5*time.Minute {
		t.Errorf("token expiry margin = %s, want 5m", cfg.TokenExpiryMargin)
	}
	if cfg.MessageWindow != 100 {
		t.Errorf("message window = %d, want 100", cfg.MessageWindow)
	}
	if cfg.AttachmentInlineLimit != 1<<20 {
		t.Errorf("attachment inline limit = %d, want 1 MiB", cfg.AttachmentInlineLimit)
	}
}
