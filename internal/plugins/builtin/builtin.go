// Package builtin holds the site plugins shipped with fwrdpost.
package builtin

import "github.com/pders01/fwrdpost/internal/plugins"

// Registry returns a registry with every built-in plugin registered.
func Registry() *plugins.Registry {
	return plugins.NewRegistry(NewRedditPlugin(), NewMastodonPlugin())
}
