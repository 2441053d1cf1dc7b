package builtin

import (
	"context"
	"net/url"
	"strings"
)

// MastodonPlugin turns a profile URL (https://host/@user) into the profile's
// public RSS feed.
type MastodonPlugin struct{}

func NewMastodonPlugin() *MastodonPlugin {
	return &MastodonPlugin{}
}

func (p *MastodonPlugin) Name() string {
	return "mastodon"
}

func (p *MastodonPlugin) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasPrefix(path, "/@") || strings.HasSuffix(path, ".rss") {
		return false
	}
	// Only the profile itself, not a single status or a tab.
	return !strings.Contains(path[2:], "/")
}

func (p *MastodonPlugin) Priority() int {
	return 10
}

func (p *MastodonPlugin) FeedURL(_ context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + ".rss"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
