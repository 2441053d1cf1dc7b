package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/pders01/fwrdpost/internal/debuglog"
	"github.com/pders01/fwrdpost/internal/model"
)

var (
	usersBucket      = []byte("users")
	tagsBucket       = []byte("tags")
	messagesBucket   = []byte("messages")
	fixedTasksBucket = []byte("fixed_tasks")
	feedTasksBucket  = []byte("feed_tasks")
	sessionsBucket   = []byte("sessions")
)

// Store is the embedded task store. Values are JSON documents keyed by id.
type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string) (*Store, error) {
	return NewStoreWithTimeout(dbPath, 1*time.Second)
}

// NewStoreWithTimeout opens dbPath, waiting at most timeout for the file lock.
func NewStoreWithTimeout(dbPath string, timeout time.Duration) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{usersBucket, tagsBucket, messagesBucket, fixedTasksBucket, feedTasksBucket, sessionsBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func put(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func get(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return model.ErrNotFound
	}
	return json.Unmarshal(data, v)
}

func each[T any](tx *bolt.Tx, bucket []byte, fn func(T) error) error {
	return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
		var rec T
		if err := json.Unmarshal(v, &rec); err != nil {
			debuglog.Warnf("skipping undecodable record %s/%s: %v", bucket, k, err)
			return nil
		}
		return fn(rec)
	})
}

func (s *Store) SaveUser(_ context.Context, u User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, usersBucket, u.ID, u)
	})
}

func (s *Store) SaveTag(_ context.Context, t Tag) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, tagsBucket, t.ID.String(), t)
	})
}

func (s *Store) SaveMessage(_ context.Context, m Message) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, messagesBucket, m.ID.String(), m)
	})
}

func (s *Store) SaveFixedTask(_ context.Context, t FixedTask) error {
	if _, err := t.Schedule(); err != nil {
		return fmt.Errorf("fixed task %s: %w", t.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, fixedTasksBucket, t.ID.String(), t)
	})
}

func (s *Store) SaveFeedTask(_ context.Context, t FeedTask) error {
	if _, err := t.Schedule(); err != nil {
		return fmt.Errorf("feed task %s: %w", t.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, feedTasksBucket, t.ID.String(), t)
	})
}

func (s *Store) GetFeedTask(_ context.Context, id uuid.UUID) (FeedTask, error) {
	var t FeedTask
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, feedTasksBucket, id.String(), &t)
	})
	return t, err
}

// DeleteUser removes a user together with their tags, messages, tasks and
// session.
func (s *Store) DeleteUser(_ context.Context, userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(usersBucket).Get([]byte(userID)) == nil {
			return model.ErrNotFound
		}
		if err := tx.Bucket(usersBucket).Delete([]byte(userID)); err != nil {
			return err
		}
		if err := tx.Bucket(sessionsBucket).Delete([]byte(userID)); err != nil {
			return err
		}
		for _, bucket := range [][]byte{tagsBucket, messagesBucket, fixedTasksBucket, feedTasksBucket} {
			b := tx.Bucket(bucket)
			var owned [][]byte
			err := b.ForEach(func(k, v []byte) error {
				var owner struct {
					UserID string `json:"user_id"`
				}
				if json.Unmarshal(v, &owner) == nil && owner.UserID == userID {
					owned = append(owned, append([]byte(nil), k...))
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, k := range owned {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ListActiveUsers returns every active user with their enabled tasks,
// ordered by user id. Tasks are ordered by id.
func (s *Store) ListActiveUsers(_ context.Context) ([]model.ActiveUser, error) {
	var out []model.ActiveUser
	err := s.db.View(func(tx *bolt.Tx) error {
		var users []User
		if err := each(tx, usersBucket, func(u User) error {
			if u.Active {
				users = append(users, u)
			}
			return nil
		}); err != nil {
			return err
		}
		sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

		for _, u := range users {
			au, err := activeUser(tx, u.ID)
			if err != nil {
				return err
			}
			out = append(out, au)
		}
		return nil
	})
	return out, err
}

// ActiveUser loads one user's enabled tasks. It returns model.ErrNotFound if
// the user does not exist or is inactive.
func (s *Store) ActiveUser(_ context.Context, userID string) (model.ActiveUser, error) {
	var out model.ActiveUser
	err := s.db.View(func(tx *bolt.Tx) error {
		var u User
		if err := get(tx, usersBucket, userID, &u); err != nil {
			return err
		}
		if !u.Active {
			return fmt.Errorf("user %s is inactive: %w", userID, model.ErrNotFound)
		}
		var err error
		out, err = activeUser(tx, userID)
		return err
	})
	return out, err
}

func activeUser(tx *bolt.Tx, userID string) (model.ActiveUser, error) {
	au := model.ActiveUser{UserID: userID}

	byTag := map[uuid.UUID][]Message{}
	if err := each(tx, messagesBucket, func(m Message) error {
		if m.UserID == userID {
			byTag[m.TagID] = append(byTag[m.TagID], m)
		}
		return nil
	}); err != nil {
		return au, err
	}

	if err := each(tx, fixedTasksBucket, func(t FixedTask) error {
		if t.UserID != userID || !t.Enabled {
			return nil
		}
		var msgs []Message
		if t.TagID != nil {
			msgs = byTag[*t.TagID]
		}
		task, err := t.Model(msgs)
		if err != nil {
			debuglog.Warnf("skipping %v", err)
			return nil
		}
		au.FixedTasks = append(au.FixedTasks, task)
		return nil
	}); err != nil {
		return au, err
	}

	if err := each(tx, feedTasksBucket, func(t FeedTask) error {
		if t.UserID != userID || !t.Enabled {
			return nil
		}
		task, err := t.Model()
		if err != nil {
			debuglog.Warnf("skipping %v", err)
			return nil
		}
		au.FeedTasks = append(au.FeedTasks, task)
		return nil
	}); err != nil {
		return au, err
	}

	return au, nil
}

// UpdateFeedWatermark records the posting watermark of a feed task. The
// stored value only ever moves forward.
func (s *Store) UpdateFeedWatermark(_ context.Context, taskID uuid.UUID, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var t FeedTask
		if err := get(tx, feedTasksBucket, taskID.String(), &t); err != nil {
			return fmt.Errorf("feed task %s: %w", taskID, err)
		}
		if t.LastPubDate != nil && !at.After(*t.LastPubDate) {
			return nil
		}
		at = at.UTC()
		t.LastPubDate = &at
		return put(tx, feedTasksBucket, taskID.String(), t)
	})
}

func (s *Store) LoadSession(_ context.Context, userID string) (model.Token, error) {
	var sess Session
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, sessionsBucket, userID, &sess)
	})
	if err != nil {
		return model.Token{}, err
	}
	return sess.Token(), nil
}

// StoreSession upserts the user's token and returns the stored value.
func (s *Store) StoreSession(_ context.Context, tok model.Token) (model.Token, error) {
	sess := SessionFromToken(tok)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, sessionsBucket, sess.UserID, sess)
	})
	if err != nil {
		return model.Token{}, err
	}
	return sess.Token(), nil
}
