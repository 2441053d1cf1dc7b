// Package postgres is the PostgreSQL task store.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/pders01/fwrdpost/internal/model"
	"github.com/pders01/fwrdpost/internal/storage"
)

const (
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 2
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultPingTimeout     = 5 * time.Second
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sqlx.DB
}

// Open connects to dsn and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return New(db), nil
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

const (
	upsertUser = `INSERT INTO users (id, email, active) VALUES (:id, :email, :active)
ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, active = EXCLUDED.active`

	upsertTag = `INSERT INTO tags (id, user_id, name) VALUES (:id, :user_id, :name)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertMessage = `INSERT INTO messages (id, user_id, tag_id, text, media_id, priority, created_at, updated_at)
VALUES (:id, :user_id, :tag_id, :text, :media_id, :priority, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE SET tag_id = EXCLUDED.tag_id, text = EXCLUDED.text, media_id = EXCLUDED.media_id,
priority = EXCLUDED.priority, updated_at = EXCLUDED.updated_at`

	upsertFixedTask = `INSERT INTO tasks_fixed_time (id, user_id, tag_id, tweet_at, sun, mon, tue, wed, thu, fri, sat, random, enabled)
VALUES (:id, :user_id, :tag_id, :tweet_at, :sun, :mon, :tue, :wed, :thu, :fri, :sat, :random, :enabled)
ON CONFLICT (id) DO UPDATE SET tag_id = EXCLUDED.tag_id, tweet_at = EXCLUDED.tweet_at,
sun = EXCLUDED.sun, mon = EXCLUDED.mon, tue = EXCLUDED.tue, wed = EXCLUDED.wed, thu = EXCLUDED.thu,
fri = EXCLUDED.fri, sat = EXCLUDED.sat, random = EXCLUDED.random, enabled = EXCLUDED.enabled`

	upsertFeedTask = `INSERT INTO tasks_rss (id, user_id, url, template, last_pub_date, tweet_at, sun, mon, tue, wed, thu, fri, sat, random, enabled)
VALUES (:id, :user_id, :url, :template, :last_pub_date, :tweet_at, :sun, :mon, :tue, :wed, :thu, :fri, :sat, :random, :enabled)
ON CONFLICT (id) DO UPDATE SET url = EXCLUDED.url, template = EXCLUDED.template, tweet_at = EXCLUDED.tweet_at,
sun = EXCLUDED.sun, mon = EXCLUDED.mon, tue = EXCLUDED.tue, wed = EXCLUDED.wed, thu = EXCLUDED.thu,
fri = EXCLUDED.fri, sat = EXCLUDED.sat, random = EXCLUDED.random, enabled = EXCLUDED.enabled`

	selectActiveUserIDs = `SELECT id FROM users WHERE active ORDER BY id`

	selectUser = `SELECT id, email, active FROM users WHERE id = $1`

	selectFixedTasks = `SELECT id, user_id, tag_id, tweet_at::text AS tweet_at, sun, mon, tue, wed, thu, fri, sat, random, enabled
FROM tasks_fixed_time WHERE user_id = $1 AND enabled ORDER BY id`

	selectMessages = `SELECT id, user_id, tag_id, text, media_id, priority, created_at, updated_at
FROM messages WHERE user_id = $1 ORDER BY created_at DESC`

	selectFeedTasks = `SELECT id, user_id, url, template, last_pub_date, tweet_at::text AS tweet_at, sun, mon, tue, wed, thu, fri, sat, random, enabled
FROM tasks_rss WHERE user_id = $1 AND enabled ORDER BY id`

	advanceWatermark = `UPDATE tasks_rss SET last_pub_date = $2
WHERE id = $1 AND (last_pub_date IS NULL OR last_pub_date < $2)`

	feedTaskExists = `SELECT EXISTS (SELECT 1 FROM tasks_rss WHERE id = $1)`

	selectSession = `SELECT id, access_token, refresh_token, expires_in, issued_at FROM sessions WHERE id = $1`

	upsertSession = `INSERT INTO sessions (id, access_token, refresh_token, expires_in, issued_at)
VALUES (:id, :access_token, :refresh_token, :expires_in, :issued_at)
ON CONFLICT (id) DO UPDATE SET access_token = EXCLUDED.access_token, refresh_token = EXCLUDED.refresh_token,
expires_in = EXCLUDED.expires_in, issued_at = EXCLUDED.issued_at
RETURNING id, access_token, refresh_token, expires_in, issued_at`
)

func (s *Store) SaveUser(ctx context.Context, u storage.User) error {
	_, err := s.db.NamedExecContext(ctx, upsertUser, u)
	return wrap("saving user", err)
}

func (s *Store) SaveTag(ctx context.Context, t storage.Tag) error {
	_, err := s.db.NamedExecContext(ctx, upsertTag, t)
	return wrap("saving tag", err)
}

func (s *Store) SaveMessage(ctx context.Context, m storage.Message) error {
	_, err := s.db.NamedExecContext(ctx, upsertMessage, m)
	return wrap("saving message", err)
}

func (s *Store) SaveFixedTask(ctx context.Context, t storage.FixedTask) error {
	if _, err := t.Schedule(); err != nil {
		return fmt.Errorf("fixed task %s: %w", t.ID, err)
	}
	_, err := s.db.NamedExecContext(ctx, upsertFixedTask, t)
	return wrap("saving fixed task", err)
}

func (s *Store) SaveFeedTask(ctx context.Context, t storage.FeedTask) error {
	if _, err := t.Schedule(); err != nil {
		return fmt.Errorf("feed task %s: %w", t.ID, err)
	}
	_, err := s.db.NamedExecContext(ctx, upsertFeedTask, t)
	return wrap("saving feed task", err)
}

func (s *Store) ListActiveUsers(ctx context.Context) ([]model.ActiveUser, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, selectActiveUserIDs); err != nil {
		return nil, wrap("listing active users", err)
	}

	out := make([]model.ActiveUser, 0, len(ids))
	for _, id := range ids {
		au, err := s.activeUser(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, au)
	}
	return out, nil
}

func (s *Store) ActiveUser(ctx context.Context, userID string) (model.ActiveUser, error) {
	var u storage.User
	if err := s.db.GetContext(ctx, &u, selectUser, userID); err != nil {
		return model.ActiveUser{}, wrap("loading user "+userID, err)
	}
	if !u.Active {
		return model.ActiveUser{}, fmt.Errorf("user %s is inactive: %w", userID, model.ErrNotFound)
	}
	return s.activeUser(ctx, userID)
}

func (s *Store) activeUser(ctx context.Context, userID string) (model.ActiveUser, error) {
	au := model.ActiveUser{UserID: userID}

	var msgs []storage.Message
	if err := s.db.SelectContext(ctx, &msgs, selectMessages, userID); err != nil {
		return au, wrap("loading messages", err)
	}
	byTag := map[uuid.UUID][]storage.Message{}
	for _, m := range msgs {
		byTag[m.TagID] = append(byTag[m.TagID], m)
	}

	var fixed []storage.FixedTask
	if err := s.db.SelectContext(ctx, &fixed, selectFixedTasks, userID); err != nil {
		return au, wrap("loading fixed tasks", err)
	}
	for _, t := range fixed {
		var tagged []storage.Message
		if t.TagID != nil {
			tagged = byTag[*t.TagID]
		}
		task, err := t.Model(tagged)
		if err != nil {
			return au, err
		}
		au.FixedTasks = append(au.FixedTasks, task)
	}

	var feeds []storage.FeedTask
	if err := s.db.SelectContext(ctx, &feeds, selectFeedTasks, userID); err != nil {
		return au, wrap("loading feed tasks", err)
	}
	for _, t := range feeds {
		task, err := t.Model()
		if err != nil {
			return au, err
		}
		au.FeedTasks = append(au.FeedTasks, task)
	}

	return au, nil
}

// UpdateFeedWatermark moves the task's watermark forward to at. Older values
// are ignored.
func (s *Store) UpdateFeedWatermark(ctx context.Context, taskID uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, advanceWatermark, taskID, at.UTC())
	if err != nil {
		return wrap("updating watermark", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, feedTaskExists, taskID); err != nil {
		return wrap("checking feed task", err)
	}
	if !exists {
		return fmt.Errorf("feed task %s: %w", taskID, model.ErrNotFound)
	}
	return nil
}

func (s *Store) LoadSession(ctx context.Context, userID string) (model.Token, error) {
	var sess storage.Session
	if err := s.db.GetContext(ctx, &sess, selectSession, userID); err != nil {
		return model.Token{}, wrap("loading session", err)
	}
	return sess.Token(), nil
}

// StoreSession upserts the user's token and returns the stored row.
func (s *Store) StoreSession(ctx context.Context, tok model.Token) (model.Token, error) {
	query, args, err := s.db.BindNamed(upsertSession, storage.SessionFromToken(tok))
	if err != nil {
		return model.Token{}, fmt.Errorf("binding session: %w", err)
	}
	var stored storage.Session
	if err := s.db.GetContext(ctx, &stored, query, args...); err != nil {
		return model.Token{}, wrap("storing session", err)
	}
	return stored.Token(), nil
}

func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
