// Package content chooses what a job posts when it fires.
package content

import (
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"time"

	"github.com/pders01/fwrdpost/internal/model"
)

// DefaultTemplate is used when a feed task has no template of its own.
const DefaultTemplate = "{title}\n\n{link}"

// Rand is the randomness source for random-mode picks. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.Intn(n) }

func orGlobal(rnd Rand) Rand {
	if rnd == nil {
		return globalRand{}
	}
	return rnd
}

// PickMessage returns the message to post for a fixed task. Sequential mode
// always returns the most recently created message.
func PickMessage(msgs []model.Message, random bool, rnd Rand) (model.Message, error) {
	if len(msgs) == 0 {
		return model.Message{}, fmt.Errorf("%w: task has no messages", model.ErrNoEligibleContent)
	}

	sorted := slices.Clone(msgs)
	slices.SortStableFunc(sorted, func(a, b model.Message) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if random {
		return sorted[orGlobal(rnd).IntN(len(sorted))], nil
	}
	return sorted[0], nil
}

// PickItem returns the feed item to post. Random mode draws from every item
// regardless of the watermark. Sequential mode only takes the newest item and
// only when it is strictly newer than the watermark.
func PickItem(snap model.FeedSnapshot, random bool, watermark *time.Time, rnd Rand) (model.FeedItem, error) {
	if len(snap.Items) == 0 {
		return model.FeedItem{}, fmt.Errorf("%w: feed has no items", model.ErrNoEligibleContent)
	}

	items := slices.Clone(snap.Items)
	slices.SortStableFunc(items, func(a, b model.FeedItem) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})

	if random {
		return items[orGlobal(rnd).IntN(len(items))], nil
	}

	newest := items[0]
	if watermark != nil && !newest.PublishedAt.After(*watermark) {
		return model.FeedItem{}, fmt.Errorf("%w: newest item %s is not after watermark %s",
			model.ErrNoEligibleContent, newest.PublishedAt.Format(time.RFC3339), watermark.Format(time.RFC3339))
	}
	return newest, nil
}

// Render builds the post text for item. Supported placeholders are {title},
// {pub_date}, {url} and its alias {link}; a literal backslash-n becomes a
// newline.
func Render(item model.FeedItem, template *string) string {
	tmpl := DefaultTemplate
	if template != nil {
		tmpl = *template
	}

	pubDate := ""
	if !item.PublishedAt.IsZero() {
		pubDate = item.PublishedAt.Format(time.RFC1123Z)
	}

	r := strings.NewReplacer(
		"{title}", item.Title,
		"{pub_date}", pubDate,
		"{url}", item.Link,
		"{link}", item.Link,
		`\n`, "\n",
	)
	return r.Replace(tmpl)
}

// AdvanceWatermark returns the watermark to store after item was posted from
// snap. The result is the latest of the previous watermark, the channel
// timestamp and the posted item's timestamp, so it never moves backwards and
// never lags behind the item just posted.
func AdvanceWatermark(prev *time.Time, snap model.FeedSnapshot, item model.FeedItem) time.Time {
	var next time.Time
	if prev != nil {
		next = *prev
	}
	if snap.PublishedAt.After(next) {
		next = snap.PublishedAt
	}
	if item.PublishedAt.After(next) {
		next = item.PublishedAt
	}
	return next
}
