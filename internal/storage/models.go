package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pders01/fwrdpost/internal/model"
)

type User struct {
	ID     string `json:"id" db:"id"`
	Email  string `json:"email" db:"email"`
	Active bool   `json:"active" db:"active"`
}

// Tag groups the messages a fixed task rotates through.
type Tag struct {
	ID     uuid.UUID `json:"id" db:"id"`
	UserID string    `json:"user_id" db:"user_id"`
	Name   string    `json:"name" db:"name"`
}

type Message struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	TagID     uuid.UUID  `json:"tag_id" db:"tag_id"`
	Text      string     `json:"text" db:"text"`
	MediaID   *uuid.UUID `json:"media_id,omitempty" db:"media_id"`
	Priority  int        `json:"priority" db:"priority"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Days is the stored form of a weekly schedule.
type Days struct {
	At  string `json:"tweet_at" db:"tweet_at"`
	Sun bool   `json:"sun" db:"sun"`
	Mon bool   `json:"mon" db:"mon"`
	Tue bool   `json:"tue" db:"tue"`
	Wed bool   `json:"wed" db:"wed"`
	Thu bool   `json:"thu" db:"thu"`
	Fri bool   `json:"fri" db:"fri"`
	Sat bool   `json:"sat" db:"sat"`
}

func (d Days) Schedule() (model.Schedule, error) {
	at, err := model.ParseTimeOfDay(d.At)
	if err != nil {
		return model.Schedule{}, err
	}
	return model.ScheduleFromFlags(at, d.Sun, d.Mon, d.Tue, d.Wed, d.Thu, d.Fri, d.Sat), nil
}

func DaysFromSchedule(s model.Schedule) Days {
	return Days{
		At:  s.At().String(),
		Sun: s.On(time.Sunday),
		Mon: s.On(time.Monday),
		Tue: s.On(time.Tuesday),
		Wed: s.On(time.Wednesday),
		Thu: s.On(time.Thursday),
		Fri: s.On(time.Friday),
		Sat: s.On(time.Saturday),
	}
}

type FixedTask struct {
	ID     uuid.UUID  `json:"id" db:"id"`
	UserID string     `json:"user_id" db:"user_id"`
	TagID  *uuid.UUID `json:"tag_id,omitempty" db:"tag_id"`
	Days
	Random  bool `json:"random" db:"random"`
	Enabled bool `json:"enabled" db:"enabled"`
}

type FeedTask struct {
	ID       uuid.UUID `json:"id" db:"id"`
	UserID   string    `json:"user_id" db:"user_id"`
	URL      string    `json:"url" db:"url"`
	Template *string   `json:"template,omitempty" db:"template"`
	// LastPubDate is the posting watermark.
	LastPubDate *time.Time `json:"last_pub_date,omitempty" db:"last_pub_date"`
	Days
	Random  bool `json:"random" db:"random"`
	Enabled bool `json:"enabled" db:"enabled"`
}

type Session struct {
	UserID       string    `json:"id" db:"id"`
	AccessToken  string    `json:"access_token" db:"access_token"`
	RefreshToken *string   `json:"refresh_token,omitempty" db:"refresh_token"`
	ExpiresIn    *int64    `json:"expires_in,omitempty" db:"expires_in"`
	IssuedAt     time.Time `json:"issued_at" db:"issued_at"`
}

func (s Session) Token() model.Token {
	tok := model.Token{
		UserID:       s.UserID,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		IssuedAt:     s.IssuedAt,
	}
	if s.ExpiresIn != nil {
		v := time.Duration(*s.ExpiresIn) * time.Second
		tok.Validity = &v
	}
	return tok
}

func SessionFromToken(tok model.Token) Session {
	s := Session{
		UserID:       tok.UserID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IssuedAt:     tok.IssuedAt.UTC(),
	}
	if tok.Validity != nil {
		secs := int64(tok.Validity.Seconds())
		s.ExpiresIn = &secs
	}
	return s
}

func (m Message) Model() model.Message {
	return model.Message{
		ID:        m.ID,
		UserID:    m.UserID,
		Text:      m.Text,
		MediaID:   m.MediaID,
		Priority:  m.Priority,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (t FixedTask) Model(msgs []Message) (model.FixedTask, error) {
	sched, err := t.Schedule()
	if err != nil {
		return model.FixedTask{}, fmt.Errorf("fixed task %s: %w", t.ID, err)
	}
	out := model.FixedTask{
		ID:       t.ID,
		Schedule: sched,
		UserID:   t.UserID,
		Random:   t.Random,
		Messages: make([]model.Message, 0, len(msgs)),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, m.Model())
	}
	return out, nil
}

func (t FeedTask) Model() (model.FeedTask, error) {
	sched, err := t.Schedule()
	if err != nil {
		return model.FeedTask{}, fmt.Errorf("feed task %s: %w", t.ID, err)
	}
	return model.FeedTask{
		ID:        t.ID,
		Schedule:  sched,
		UserID:    t.UserID,
		URL:       t.URL,
		Random:    t.Random,
		Watermark: t.LastPubDate,
		Template:  t.Template,
	}, nil
}
