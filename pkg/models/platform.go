package models

import "strings"

// Platform identifies an external messaging provider
type Platform string

const (
	PlatformGmail    Platform = "gmail"
	PlatformOutlook  Platform = "outlook"
	PlatformLinkedIn Platform = "linkedin"
	PlatformTwitter  Platform = "twitter"
	PlatformWhatsApp Platform = "whatsapp"
)

// AllPlatforms lists every supported platform
var AllPlatforms = []Platform{
	PlatformGmail,
	PlatformOutlook,
	PlatformLinkedIn,
	PlatformTwitter,
	PlatformWhatsApp,
}

// ParsePlatform normalizes a platform name (case-insensitive)
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPlatforms {
		if p == known {
			return p, true
		}
	}
	return "", false
}

func (p Platform) String() string {
	return string(p)
}

// PushDriven reports whether the platform delivers messages via webhook
// instead of polling. Push-driven platforms are never refreshed by the
// sync orchestrator.
func (p Platform) PushDriven() bool {
	return p == PlatformWhatsApp
}
