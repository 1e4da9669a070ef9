package model

import (
	"strings"
	"time"
)

// Platform identifies a supported social network.
type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformMastodon Platform = "mastodon"
	PlatformBluesky  Platform = "bluesky"
	PlatformLinkedIn Platform = "linkedin"
)

// Platforms lists every supported platform in display order.
var Platforms = []Platform{PlatformTwitter, PlatformMastodon, PlatformBluesky, PlatformLinkedIn}

// ParsePlatform normalizes a user or database supplied platform key, including aliases.
func ParsePlatform(key string) (Platform, bool) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "twitter", "x":
		return PlatformTwitter, true
	case "mastodon":
		return PlatformMastodon, true
	case "bluesky", "bsky":
		return PlatformBluesky, true
	case "linkedin":
		return PlatformLinkedIn, true
	}
	return "", false
}

// Account is a connected social account. CredentialEncrypted holds the codec output, never plaintext.
type Account struct {
	ID                  int64     `json:"id"`
	Platform            Platform  `json:"platform"`
	DisplayName         string    `json:"display_name"`
	Handle              string    `json:"handle"`
	CredentialEncrypted string    `json:"-"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// AccountCredentials is what adapters receive: account identity plus the decrypted credential.
type AccountCredentials struct {
	ID          int64
	Platform    Platform
	DisplayName string
	Handle      string
	Credential  string
}

// Article is read-only to the delivery engine; only its URL is shared.
type Article struct {
	ID          int64     `json:"id"`
	FeedID      int64     `json:"feed_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	ContentHTML string    `json:"-"`
	ContentText string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}
