package feed

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/pders01/fwrdpost/internal/model"
)

type Parser struct {
	parser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		parser: gofeed.NewParser(),
	}
}

// Parse turns an RSS, Atom or JSON feed document into a snapshot. Items
// without a usable date are dropped since they cannot be ordered. The
// channel timestamp falls back to the channel's updated date and then to the
// newest item.
func (p *Parser) Parse(reader io.Reader) (model.FeedSnapshot, error) {
	feed, err := p.parser.Parse(reader)
	if err != nil {
		return model.FeedSnapshot{}, fmt.Errorf("%w: %v", model.ErrFeedParse, err)
	}

	snap := model.FeedSnapshot{
		Title: strings.TrimSpace(feed.Title),
		Link:  feed.Link,
		Items: make([]model.FeedItem, 0, len(feed.Items)),
	}

	var newest time.Time
	for _, item := range feed.Items {
		published, ok := itemTime(item)
		if !ok {
			continue
		}
		snap.Items = append(snap.Items, model.FeedItem{
			Title:       strings.TrimSpace(item.Title),
			Link:        item.Link,
			PublishedAt: published,
		})
		if published.After(newest) {
			newest = published
		}
	}

	switch {
	case feed.PublishedParsed != nil:
		snap.PublishedAt = feed.PublishedParsed.UTC()
	case feed.UpdatedParsed != nil:
		snap.PublishedAt = feed.UpdatedParsed.UTC()
	default:
		snap.PublishedAt = newest
	}

	return snap, nil
}

func itemTime(item *gofeed.Item) (time.Time, bool) {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC(), true
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC(), true
	}
	return time.Time{}, false
}
