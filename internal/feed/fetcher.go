package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pders01/fwrdpost/internal/config"
	"github.com/pders01/fwrdpost/internal/model"
)

const (
	defaultUserAgent = "fwrdpost/1.0 (https://github.com/pders01/fwrdpost)"
	defaultTimeout   = 30 * time.Second
	maxFeedSize      = 10 << 20
)

// validators are the conditional-request headers remembered per URL.
type validators struct {
	ETag         string
	LastModified string
}

type Fetcher struct {
	client    *http.Client
	userAgent string
}

func NewFetcher(cfg *config.Config) *Fetcher {
	timeout := defaultTimeout
	ua := defaultUserAgent
	if cfg != nil {
		if cfg.Feed.HTTPTimeout > 0 {
			timeout = cfg.Feed.HTTPTimeout
		}
		if cfg.Feed.UserAgent != "" {
			ua = cfg.Feed.UserAgent
		}
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: ua,
	}
}

// Fetch performs a GET of url. A nil body with a nil error means the server
// answered 304 Not Modified for the given validators.
func (f *Fetcher) Fetch(ctx context.Context, url string, prev validators) (io.ReadCloser, validators, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, prev, fmt.Errorf("%w: creating request: %v", model.ErrFeedUnavailable, err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")
	if prev.ETag != "" {
		req.Header.Set("If-None-Match", prev.ETag)
	}
	if prev.LastModified != "" {
		req.Header.Set("If-Modified-Since", prev.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, prev, fmt.Errorf("%w: fetching %s: %w", model.ErrFeedUnavailable, url, err)
	}

	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		return nil, prev, nil
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, prev, fmt.Errorf("%w: %s returned HTTP %d", model.ErrFeedUnavailable, url, resp.StatusCode)
	}

	next := validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	return limitedBody{Reader: io.LimitReader(resp.Body, maxFeedSize), Closer: resp.Body}, next, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}
