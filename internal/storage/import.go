package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/pders01/fwrdpost/internal/model"
)

// Writer is the write side shared by the bolt and postgres stores.
type Writer interface {
	SaveUser(ctx context.Context, u User) error
	SaveTag(ctx context.Context, t Tag) error
	SaveMessage(ctx context.Context, m Message) error
	SaveFixedTask(ctx context.Context, t FixedTask) error
	SaveFeedTask(ctx context.Context, t FeedTask) error
	StoreSession(ctx context.Context, tok model.Token) (model.Token, error)
}

// ImportFile is the TOML document accepted by Import.
type ImportFile struct {
	Users      []User          `toml:"users"`
	Tags       []importTag     `toml:"tags"`
	Messages   []importMessage `toml:"messages"`
	FixedTasks []importFixed   `toml:"fixed_tasks"`
	FeedTasks  []importFeed    `toml:"feed_tasks"`
	Sessions   []importSession `toml:"sessions"`
}

type importTag struct {
	ID     uuid.UUID `toml:"id"`
	UserID string    `toml:"user_id"`
	Name   string    `toml:"name"`
}

type importMessage struct {
	ID        uuid.UUID  `toml:"id"`
	UserID    string     `toml:"user_id"`
	TagID     uuid.UUID  `toml:"tag_id"`
	Text      string     `toml:"text"`
	MediaID   *uuid.UUID `toml:"media_id"`
	Priority  int        `toml:"priority"`
	CreatedAt time.Time  `toml:"created_at"`
}

type importSchedule struct {
	At   string   `toml:"at"`
	Days []string `toml:"days"`
}

type importFixed struct {
	ID      uuid.UUID  `toml:"id"`
	UserID  string     `toml:"user_id"`
	TagID   *uuid.UUID `toml:"tag_id"`
	Random  bool       `toml:"random"`
	Enabled *bool      `toml:"enabled"`
	importSchedule
}

type importFeed struct {
	ID       uuid.UUID  `toml:"id"`
	UserID   string     `toml:"user_id"`
	URL      string     `toml:"url"`
	Template *string    `toml:"template"`
	Random   bool       `toml:"random"`
	Enabled  *bool      `toml:"enabled"`
	Since    *time.Time `toml:"since"`
	importSchedule
}

type importSession struct {
	UserID       string    `toml:"user_id"`
	AccessToken  string    `toml:"access_token"`
	RefreshToken *string   `toml:"refresh_token"`
	ExpiresIn    *int64    `toml:"expires_in"`
	IssuedAt     time.Time `toml:"issued_at"`
}

// ImportStats counts the records written by Import.
type ImportStats struct {
	Users, Tags, Messages, FixedTasks, FeedTasks, Sessions int
}

func (s ImportStats) String() string {
	return fmt.Sprintf("%d users, %d tags, %d messages, %d fixed tasks, %d feed tasks, %d sessions",
		s.Users, s.Tags, s.Messages, s.FixedTasks, s.FeedTasks, s.Sessions)
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func (s importSchedule) days() (Days, error) {
	at, err := model.ParseTimeOfDay(s.At)
	if err != nil {
		return Days{}, err
	}
	var wds []time.Weekday
	for _, d := range s.Days {
		key := strings.ToLower(strings.TrimSpace(d))
		if len(key) > 3 {
			key = key[:3]
		}
		wd, ok := weekdayNames[key]
		if !ok {
			return Days{}, fmt.Errorf("unknown weekday %q", d)
		}
		wds = append(wds, wd)
	}
	return DaysFromSchedule(model.NewSchedule(at, wds...)), nil
}

func enabled(b *bool) bool { return b == nil || *b }

func newID(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}

// Import reads an ImportFile from r and writes its records through w.
// Missing ids are generated, tasks default to enabled and messages without
// a creation time are stamped with the import time.
func Import(ctx context.Context, w Writer, r io.Reader) (ImportStats, error) {
	var stats ImportStats
	var f ImportFile
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&f); err != nil {
		return stats, fmt.Errorf("decoding import file: %w", err)
	}
	now := time.Now().UTC()

	for _, u := range f.Users {
		if u.ID == "" {
			return stats, fmt.Errorf("user without id")
		}
		if err := w.SaveUser(ctx, u); err != nil {
			return stats, fmt.Errorf("user %s: %w", u.ID, err)
		}
		stats.Users++
	}

	for _, t := range f.Tags {
		tag := Tag{ID: newID(t.ID), UserID: t.UserID, Name: t.Name}
		if err := w.SaveTag(ctx, tag); err != nil {
			return stats, fmt.Errorf("tag %s: %w", tag.ID, err)
		}
		stats.Tags++
	}

	for _, m := range f.Messages {
		created := m.CreatedAt
		if created.IsZero() {
			created = now
		}
		msg := Message{
			ID:        newID(m.ID),
			UserID:    m.UserID,
			TagID:     m.TagID,
			Text:      m.Text,
			MediaID:   m.MediaID,
			Priority:  m.Priority,
			CreatedAt: created.UTC(),
			UpdatedAt: created.UTC(),
		}
		if err := w.SaveMessage(ctx, msg); err != nil {
			return stats, fmt.Errorf("message %s: %w", msg.ID, err)
		}
		stats.Messages++
	}

	for _, t := range f.FixedTasks {
		days, err := t.days()
		if err != nil {
			return stats, fmt.Errorf("fixed task %s: %w", t.ID, err)
		}
		task := FixedTask{ID: newID(t.ID), UserID: t.UserID, TagID: t.TagID, Days: days, Random: t.Random, Enabled: enabled(t.Enabled)}
		if err := w.SaveFixedTask(ctx, task); err != nil {
			return stats, fmt.Errorf("fixed task %s: %w", task.ID, err)
		}
		stats.FixedTasks++
	}

	for _, t := range f.FeedTasks {
		days, err := t.days()
		if err != nil {
			return stats, fmt.Errorf("feed task %s: %w", t.ID, err)
		}
		task := FeedTask{
			ID:          newID(t.ID),
			UserID:      t.UserID,
			URL:         t.URL,
			Template:    t.Template,
			LastPubDate: t.Since,
			Days:        days,
			Random:      t.Random,
			Enabled:     enabled(t.Enabled),
		}
		if err := w.SaveFeedTask(ctx, task); err != nil {
			return stats, fmt.Errorf("feed task %s: %w", task.ID, err)
		}
		stats.FeedTasks++
	}

	for _, s := range f.Sessions {
		sess := Session{UserID: s.UserID, AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, ExpiresIn: s.ExpiresIn, IssuedAt: s.IssuedAt}
		if _, err := w.StoreSession(ctx, sess.Token()); err != nil {
			return stats, fmt.Errorf("session %s: %w", s.UserID, err)
		}
		stats.Sessions++
	}

	return stats, nil
}
