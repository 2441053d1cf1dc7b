package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFeedURLValidator(t *testing.T) {
	v := NewFeedURLValidator()
	assert.False(t, v.AllowLocalhost)
	assert.False(t, v.AllowPrivateIPs)
	assert.Equal(t, 2048, v.MaxLength)

	p := NewPermissiveFeedURLValidator()
	assert.True(t, p.AllowLocalhost)
	assert.True(t, p.AllowPrivateIPs)
}

func TestValidateAndNormalize(t *testing.T) {
	v := NewFeedURLValidator()

	tests := []struct {
		name     string
		input    string
		expected string
		errorMsg string
	}{
		{name: "empty URL", input: "", errorMsg: "URL cannot be empty"},
		{name: "whitespace-only URL", input: "   ", errorMsg: "URL cannot be empty"},
		{name: "valid https", input: "https://blog.golang.org/feed.atom", expected: "https://blog.golang.org/feed.atom"},
		{name: "scheme added", input: "news.ycombinator.com/rss", expected: "https://news.ycombinator.com/rss"},
		{name: "host lowercased and fragment dropped", input: "https://Feeds.BBCI.co.uk/news/rss.xml#top", expected: "https://feeds.bbci.co.uk/news/rss.xml"},
		{name: "query kept", input: "http://example.org/feed?format=rss", expected: "http://example.org/feed?format=rss"},
		{name: "ftp rejected", input: "ftp://example.org/feed", errorMsg: "http or https"},
		{name: "javascript rejected", input: "javascript:alert(1)", errorMsg: "malformed"},
		{name: "html injection", input: "https://example.org/<script>", errorMsg: "invalid characters"},
		{name: "localhost", input: "http://localhost:8080/feed", errorMsg: "localhost"},
		{name: "loopback ip", input: "http://127.0.0.1/feed", errorMsg: "localhost"},
		{name: "private ipv4", input: "http://192.168.1.10/feed", errorMsg: "private IP"},
		{name: "link-local", input: "http://169.254.169.254/latest", errorMsg: "private IP"},
		{name: "private ipv6", input: "http://[fd00::1]/feed", errorMsg: "private IP"},
		{name: "unspecified", input: "http://0.0.0.0/feed", errorMsg: "unroutable"},
		{name: "credentials", input: "https://user:pw@example.org/feed", errorMsg: "credentials"},
		{name: "traversal", input: "https://example.org/a/../etc/passwd", errorMsg: "traversal"},
		{name: "public ip", input: "http://8.8.8.8/feed", expected: "http://8.8.8.8/feed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.ValidateAndNormalize(tt.input)
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidFeedURL))
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValidateAndNormalize_TooLong(t *testing.T) {
	v := &FeedURLValidator{MaxLength: 32}
	_, err := v.ValidateAndNormalize("https://example.org/" + "aaaaaaaaaaaaaaaaaaaaaaaa")
	require.ErrorIs(t, err, ErrInvalidFeedURL)
	assert.Contains(t, err.Error(), "too long")
}

func TestPermissiveValidator(t *testing.T) {
	v := NewPermissiveFeedURLValidator()

	for _, in := range []string{
		"http://localhost:8080/feed",
		"http://127.0.0.1:9000/rss",
		"http://10.0.0.5/feed",
	} {
		_, err := v.ValidateAndNormalize(in)
		assert.NoError(t, err, in)
	}

	_, err := v.ValidateAndNormalize("http://0.0.0.0/feed")
	assert.Error(t, err, "unspecified addresses stay blocked")
}
