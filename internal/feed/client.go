package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/pders01/fwrdpost/internal/config"
	"github.com/pders01/fwrdpost/internal/debuglog"
	"github.com/pders01/fwrdpost/internal/model"
	"github.com/pders01/fwrdpost/internal/plugins"
	"github.com/pders01/fwrdpost/internal/validation"
)

type cacheEntry struct {
	validators validators
	snap       model.FeedSnapshot
}

// Client fetches and parses feeds for job hosts. It is safe for concurrent
// use. The last snapshot of each URL is kept so that a 304 response still
// yields a full snapshot.
type Client struct {
	fetcher      *Fetcher
	parser       *Parser
	urlValidator *validation.FeedURLValidator
	sources      *plugins.Registry

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewClient(cfg *config.Config) *Client {
	v := validation.NewFeedURLValidator()
	if cfg != nil && cfg.Feed.AllowPrivate {
		v = validation.NewPermissiveFeedURLValidator()
	}
	return &Client{
		fetcher:      NewFetcher(cfg),
		parser:       NewParser(),
		urlValidator: v,
		cache:        make(map[string]cacheEntry),
	}
}

// WithSources makes Fetch map site URLs to their feeds through r first.
func (c *Client) WithSources(r *plugins.Registry) *Client {
	c.sources = r
	return c
}

// Fetch returns the current snapshot of the feed at url.
func (c *Client) Fetch(ctx context.Context, url string) (model.FeedSnapshot, error) {
	feedURL, err := c.sources.Resolve(ctx, url)
	if err != nil {
		return model.FeedSnapshot{}, fmt.Errorf("%w: resolving %s: %w", model.ErrFeedUnavailable, url, err)
	}

	normalized, err := c.urlValidator.ValidateAndNormalize(feedURL)
	if err != nil {
		return model.FeedSnapshot{}, fmt.Errorf("%w: %w", model.ErrFeedUnavailable, err)
	}

	c.mu.Lock()
	entry, cached := c.cache[normalized]
	c.mu.Unlock()

	body, next, err := c.fetcher.Fetch(ctx, normalized, entry.validators)
	if err != nil {
		return model.FeedSnapshot{}, err
	}
	if body == nil {
		if cached {
			debuglog.Debugf("feed %s not modified", normalized)
			return cloneSnapshot(entry.snap), nil
		}
		// 304 without a cached copy; retry unconditionally.
		body, next, err = c.fetcher.Fetch(ctx, normalized, validators{})
		if err != nil {
			return model.FeedSnapshot{}, err
		}
		if body == nil {
			return model.FeedSnapshot{}, fmt.Errorf("%w: %s answered 304 to an unconditional request", model.ErrFeedUnavailable, normalized)
		}
	}
	defer body.Close()

	snap, err := c.parser.Parse(body)
	if err != nil {
		return model.FeedSnapshot{}, fmt.Errorf("%s: %w", normalized, err)
	}

	if next.ETag != "" || next.LastModified != "" {
		c.mu.Lock()
		c.cache[normalized] = cacheEntry{validators: next, snap: cloneSnapshot(snap)}
		c.mu.Unlock()
	}
	return snap, nil
}

func cloneSnapshot(s model.FeedSnapshot) model.FeedSnapshot {
	s.Items = append([]model.FeedItem(nil), s.Items...)
	return s
}
