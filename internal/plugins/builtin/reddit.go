package builtin

import (
	"context"
	"strings"
)

// RedditPlugin handles Reddit subreddit URLs by converting them to RSS feeds
type RedditPlugin struct{}

func NewRedditPlugin() *RedditPlugin {
	return &RedditPlugin{}
}

func (p *RedditPlugin) Name() string {
	return "reddit"
}

// CanHandle accepts subreddit pages that are not already feeds.
func (p *RedditPlugin) CanHandle(url string) bool {
	if strings.HasSuffix(strings.TrimSuffix(url, "/"), ".rss") {
		return false
	}
	return strings.Contains(url, "://www.reddit.com/r/") ||
		strings.Contains(url, "://reddit.com/r/") ||
		strings.Contains(url, "://old.reddit.com/r/")
}

func (p *RedditPlugin) Priority() int {
	return 50
}

// FeedURL appends .rss, which Reddit serves for any listing page.
func (p *RedditPlugin) FeedURL(_ context.Context, rawURL string) (string, error) {
	base, query, _ := strings.Cut(rawURL, "?")
	feedURL := strings.TrimSuffix(base, "/") + ".rss"
	if query != "" {
		feedURL += "?" + query
	}
	return feedURL, nil
}
