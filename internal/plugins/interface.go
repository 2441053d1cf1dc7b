// Package plugins maps site URLs that are not feeds themselves (a subreddit,
// a Mastodon profile) to the feed URL the site publishes for them.
package plugins

import (
	"context"
)

// Plugin defines the interface that site-specific plugins must implement
type Plugin interface {
	// Name returns the plugin name for identification
	Name() string

	// CanHandle returns true if this plugin can handle the given URL
	CanHandle(url string) bool

	// FeedURL returns the feed URL for a page URL the plugin handles.
	FeedURL(ctx context.Context, url string) (string, error)

	// Priority breaks ties when several plugins handle the same URL
	// (higher wins).
	Priority() int
}

// Registry manages all registered plugins
type Registry struct {
	plugins []Plugin
}

func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{}
	for _, p := range plugins {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(plugin Plugin) {
	r.plugins = append(r.plugins, plugin)
}

// FindPlugin returns the highest priority plugin that can handle url, or nil.
func (r *Registry) FindPlugin(url string) Plugin {
	var bestPlugin Plugin
	highestPriority := -1

	for _, plugin := range r.plugins {
		if plugin.CanHandle(url) && plugin.Priority() > highestPriority {
			bestPlugin = plugin
			highestPriority = plugin.Priority()
		}
	}

	return bestPlugin
}

// Resolve returns the feed URL for url. URLs no plugin handles are returned
// unchanged.
func (r *Registry) Resolve(ctx context.Context, url string) (string, error) {
	if r == nil {
		return url, nil
	}
	plugin := r.FindPlugin(url)
	if plugin == nil {
		return url, nil
	}
	return plugin.FeedURL(ctx, url)
}

// ListPlugins returns all registered plugins
func (r *Registry) ListPlugins() []Plugin {
	return append([]Plugin(nil), r.plugins...)
}
