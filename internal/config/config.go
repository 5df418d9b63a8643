package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mixelka/unibox/pkg/models"
)

// Config application configuration
type Config struct {
	// Server
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/unibox.db"`

	// Sync
	RefreshThreshold         time.Duration `env:"REFRESH_THRESHOLD" envDefault:"30s"`
	GmailRefreshThreshold    time.Duration `env:"GMAIL_REFRESH_THRESHOLD"`
	OutlookRefreshThreshold  time.Duration `env:"OUTLOOK_REFRESH_THRESHOLD"`
	LinkedInRefreshThreshold time.Duration `env:"LINKEDIN_REFRESH_THRESHOLD"`
	TwitterRefreshThreshold  time.Duration `env:"TWITTER_REFRESH_THRESHOLD"`
	MessageWindow            int           `env:"MESSAGE_WINDOW" envDefault:"100"`

	// Tokens
	TokenExpiryMargin time.Duration `env:"TOKEN_EXPIRY_MARGIN" envDefault:"5m"`

	// Auto-reply
	AutoReplyPollInterval     time.Duration `env:"AUTO_REPLY_POLL_INTERVAL" envDefault:"30s"`
	AutoReplyTemplate         string        `env:"AUTO_REPLY_TEMPLATE" envDefault:"Thank you for your message! I'll get back to you soon."`
	AutoReplyTemplateGmail    string        `env:"AUTO_REPLY_TEMPLATE_GMAIL"`
	AutoReplyTemplateOutlook  string        `env:"AUTO_REPLY_TEMPLATE_OUTLOOK"`
	AutoReplyTemplateLinkedIn string        `env:"AUTO_REPLY_TEMPLATE_LINKEDIN"`
	AutoReplyTemplateTwitter  string        `env:"AUTO_REPLY_TEMPLATE_TWITTER"`
	AutoReplyTemplateWhatsApp string        `env:"AUTO_REPLY_TEMPLATE_WHATSAPP"`

	// Attachments
	AttachmentInlineLimit int64 `env:"ATTACHMENT_INLINE_LIMIT" envDefault:"1048576"` // 1 MiB

	// Provider credentials
	GmailClientID        string `env:"GMAIL_CLIENT_ID"`
	GmailClientSecret    string `env:"GMAIL_CLIENT_SECRET"`
	GmailRedirectURL     string `env:"GMAIL_REDIRECT_URL"`
	OutlookClientID      string `env:"OUTLOOK_CLIENT_ID"`
	OutlookClientSecret  string `env:"OUTLOOK_CLIENT_SECRET"`
	OutlookRedirectURL   string `env:"OUTLOOK_REDIRECT_URL"`
	LinkedInClientID     string `env:"LINKEDIN_CLIENT_ID"`
	LinkedInClientSecret string `env:"LINKEDIN_CLIENT_SECRET"`
	LinkedInRedirectURL  string `env:"LINKEDIN_REDIRECT_URL"`
	TwitterClientID      string `env:"TWITTER_CLIENT_ID"`
	TwitterClientSecret  string `env:"TWITTER_CLIENT_SECRET"`
	TwitterRedirectURL   string `env:"TWITTER_REDIRECT_URL"`
	WhatsAppAPIURL       string `env:"WHATSAPP_API_URL" envDefault:"https://graph.facebook.com/v17.0"`
	WhatsAppVerifyToken  string `env:"WHATSAPP_VERIFY_TOKEN"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// ThresholdFor returns the staleness threshold for a platform, falling
// back to the shared default when no per-platform override is set.
func (c *Config) ThresholdFor(p models.Platform) time.Duration {
	var d time.Duration
	switch p {
	case models.PlatformGmail:
		d = c.GmailRefreshThreshold
	case models.PlatformOutlook:
		d = c.OutlookRefreshThreshold
	case models.PlatformLinkedIn:
		d = c.LinkedInRefreshThreshold
	case models.PlatformTwitter:
		d = c.TwitterRefreshThreshold
	}
	if d <= 0 {
		return c.RefreshThreshold
	}
	return d
}

// TemplateFor returns the auto-reply text for a platform, falling back
// to the shared template.
func (c *Config) TemplateFor(p models.Platform) string {
	var t string
	switch p {
	case models.PlatformGmail:
		t = c.AutoReplyTemplateGmail
	case models.PlatformOutlook:
		t = c.AutoReplyTemplateOutlook
	case models.PlatformLinkedIn:
		t = c.AutoReplyTemplateLinkedIn
	case models.PlatformTwitter:
		t = c.AutoReplyTemplateTwitter
	case models.PlatformWhatsApp:
		t = c.AutoReplyTemplateWhatsApp
	}
	if t == "" {
		return c.AutoReplyTemplate
	}
	return t
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.RefreshThreshold <= 0 {
		return nil, fmt.Errorf("REFRESH_THRESHOLD must be positive, got %s", cfg.RefreshThreshold)
	}
	if cfg.AutoReplyPollInterval <= 0 {
		return nil, fmt.Errorf("AUTO_REPLY_POLL_INTERVAL must be positive, got %s", cfg.AutoReplyPollInterval)
	}
	if cfg.AttachmentInlineLimit < 0 {
		return nil, fmt.Errorf("ATTACHMENT_INLINE_LIMIT must not be negative, got %d", cfg.AttachmentInlineLimit)
	}

	return cfg, nil
}
