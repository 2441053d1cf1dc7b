package model

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID        uuid.UUID
	UserID    string
	Text      string
	MediaID   *uuid.UUID
	Priority  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FixedTask rotates among a bag of messages.
type FixedTask struct {
	ID       uuid.UUID
	Schedule Schedule
	UserID   string
	Messages []Message
	Random   bool
}

// Clone returns a copy whose message slice is not shared with t.
func (t FixedTask) Clone() FixedTask {
	c := t
	c.Messages = append([]Message(nil), t.Messages...)
	return c
}

// FeedTask posts one item of an RSS/Atom feed per firing.
type FeedTask struct {
	ID        uuid.UUID
	Schedule  Schedule
	UserID    string
	URL       string
	Random    bool
	Watermark *time.Time
	Template  *string
}

// ActiveUser is the unit of work handed to one job host.
type ActiveUser struct {
	UserID     string
	FixedTasks []FixedTask
	FeedTasks  []FeedTask
}

func (u ActiveUser) HasTasks() bool {
	return len(u.FixedTasks) > 0 || len(u.FeedTasks) > 0
}

// Token is a user's OAuth session with the social network.
type Token struct {
	UserID       string
	AccessToken  string
	RefreshToken *string
	IssuedAt     time.Time
	Validity     *time.Duration
}

type FeedItem struct {
	Title       string
	Link        string
	PublishedAt time.Time
}

// FeedSnapshot is one fetch of a feed. PublishedAt is the channel-level timestamp.
type FeedSnapshot struct {
	Title       string
	Link        string
	PublishedAt time.Time
	Items       []FeedItem
}

// Post is the payload sent to the social network.
type Post struct {
	Text     string
	MediaIDs []string
}
