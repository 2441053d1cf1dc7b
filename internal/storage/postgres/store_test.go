package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/fwrdpost/internal/model"
	"github.com/pders01/fwrdpost/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return New(sqlx.NewDb(db, "postgres")), mock
}

var ctx = context.Background()

var (
	fixedCols   = []string{"id", "user_id", "tag_id", "tweet_at", "sun", "mon", "tue", "wed", "thu", "fri", "sat", "random", "enabled"}
	feedCols    = []string{"id", "user_id", "url", "template", "last_pub_date", "tweet_at", "sun", "mon", "tue", "wed", "thu", "fri", "sat", "random", "enabled"}
	messageCols = []string{"id", "user_id", "tag_id", "text", "media_id", "priority", "created_at", "updated_at"}
	sessionCols = []string{"id", "access_token", "refresh_token", "expires_in", "issued_at"}
)

func TestStore_Migrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.Migrate(ctx))
}

func TestStore_SaveUser(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id, email, active)")).
		WithArgs("alice", "alice@example.org", true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.SaveUser(ctx, storage.User{ID: "alice", Email: "alice@example.org", Active: true}))
}

func TestStore_SaveFixedTask(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tasks_fixed_time")).
		WithArgs(id, "alice", nil, "08:00", false, true, false, false, false, false, false, true, true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.SaveFixedTask(ctx, storage.FixedTask{
		ID: id, UserID: "alice", Days: storage.Days{At: "08:00", Mon: true}, Random: true, Enabled: true,
	}))

	// Invalid times never reach the database.
	assert.Error(t, s.SaveFixedTask(ctx, storage.FixedTask{ID: id, Days: storage.Days{At: "8am"}}))
}

func TestStore_ListActiveUsers(t *testing.T) {
	s, mock := newMockStore(t)

	tagID := uuid.New()
	fixedID := uuid.New()
	feedID := uuid.New()
	older := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	wm := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE active")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("alice"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM messages WHERE user_id = $1")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow(uuid.New().String(), "alice", tagID.String(), "newer", nil, 0, newer, newer).
			AddRow(uuid.New().String(), "alice", tagID.String(), "older", nil, 1, older, older))
	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks_fixed_time WHERE user_id = $1 AND enabled")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(fixedCols).
			AddRow(fixedID.String(), "alice", tagID.String(), "08:30:00", false, true, false, true, false, false, false, false, true))
	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks_rss WHERE user_id = $1 AND enabled")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(feedCols).
			AddRow(feedID.String(), "alice", "https://go.dev/blog/feed.atom", "{title}", wm, "18:00:00", true, false, false, false, false, false, false, false, true))

	users, err := s.ListActiveUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)

	au := users[0]
	assert.Equal(t, "alice", au.UserID)
	require.Len(t, au.FixedTasks, 1)
	assert.Equal(t, fixedID, au.FixedTasks[0].ID)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, au.FixedTasks[0].Schedule.Weekdays())
	require.Len(t, au.FixedTasks[0].Messages, 2)

	require.Len(t, au.FeedTasks, 1)
	ft := au.FeedTasks[0]
	assert.Equal(t, feedID, ft.ID)
	require.NotNil(t, ft.Watermark)
	assert.True(t, wm.Equal(*ft.Watermark))
	require.NotNil(t, ft.Template)
	assert.Equal(t, "{title}", *ft.Template)
}

func TestStore_ActiveUser_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, active FROM users WHERE id = $1")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	_, err := s.ActiveUser(ctx, "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, active FROM users WHERE id = $1")).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "active"}).AddRow("bob", "", false))
	_, err = s.ActiveUser(ctx, "bob")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_UpdateFeedWatermark(t *testing.T) {
	id := uuid.New()
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "advances",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks_rss SET last_pub_date = $2")).
					WithArgs(id, at).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "older value is a no-op",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks_rss SET last_pub_date = $2")).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
					WithArgs(id).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
		},
		{
			name: "unknown task",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks_rss SET last_pub_date = $2")).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			},
			wantErr: model.ErrNotFound,
		},
		{
			name: "database failure",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks_rss")).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: sql.ErrConnDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.setup(mock)
			err := s.UpdateFeedWatermark(ctx, id, at)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStore_Sessions(t *testing.T) {
	s, mock := newMockStore(t)
	issued := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = $1")).
		WithArgs("alice").
		WillReturnError(sql.ErrNoRows)
	_, err := s.LoadSession(ctx, "alice")
	assert.ErrorIs(t, err, model.ErrNotFound)

	validity := 2 * time.Hour
	rt := "r1"
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sessions")).
		WithArgs("alice", "a1", "r1", int64(7200), issued).
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow("alice", "a1", "r1", int64(7200), issued))

	stored, err := s.StoreSession(ctx, model.Token{UserID: "alice", AccessToken: "a1", RefreshToken: &rt, IssuedAt: issued, Validity: &validity})
	require.NoError(t, err)
	assert.Equal(t, "a1", stored.AccessToken)
	require.NotNil(t, stored.Validity)
	assert.Equal(t, validity, *stored.Validity)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = $1")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow("alice", "a1", nil, nil, issued))
	loaded, err := s.LoadSession(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, loaded.RefreshToken)
	assert.Nil(t, loaded.Validity)
}

func TestStore_ImplementsWriter(t *testing.T) {
	var _ storage.Writer = (*Store)(nil)
}
