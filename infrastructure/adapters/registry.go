package adapters

import (
	"fmt"

	"echotree/domain/model"
)

// Registry resolves the adapter for an account's platform.
type Registry struct {
	twitter  Adapter
	mastodon Adapter
	bluesky  Adapter
	linkedin Adapter
}

func NewRegistry(cfg Config, writer CredentialWriter) *Registry {
	return &Registry{
		twitter:  NewTwitterAdapter(cfg),
		mastodon: NewMastodonAdapter(cfg),
		bluesky:  NewBlueskyAdapter(cfg, writer),
		linkedin: NewLinkedInAdapter(cfg),
	}
}

// NewRegistryWith wires explicit adapters; a nil entry makes that platform unsupported.
func NewRegistryWith(adapters map[model.Platform]Adapter) *Registry {
	return &Registry{
		twitter:  adapters[model.PlatformTwitter],
		mastodon: adapters[model.PlatformMastodon],
		bluesky:  adapters[model.PlatformBluesky],
		linkedin: adapters[model.PlatformLinkedIn],
	}
}

// ForPlatform trims and lower-cases key and accepts the x and bsky aliases.
func (r *Registry) ForPlatform(key string) (Adapter, error) {
	p, ok := model.ParsePlatform(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, key)
	}

	var a Adapter
	switch p {
	case model.PlatformTwitter:
		a = r.twitter
	case model.PlatformMastodon:
		a = r.mastodon
	case model.PlatformBluesky:
		a = r.bluesky
	case model.PlatformLinkedIn:
		a = r.linkedin
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, key)
	}
	return a, nil
}

func (r *Registry) Platforms() []model.Platform {
	out := make([]model.Platform, 0, len(model.Platforms))
	for _, p := range model.Platforms {
		if _, err := r.ForPlatform(string(p)); err == nil {
			out = append(out, p)
		}
	}
	return out
}
