package social

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/fwrdpost/internal/config"
	"github.com/pders01/fwrdpost/internal/model"
)

func newTestClient(url string) *Client {
	return NewClient(config.SocialConfig{APIURL: url + "/2/tweets", UploadURL: url + "/upload", Timeout: 5 * time.Second})
}

func TestClient_Post(t *testing.T) {
	tests := []struct {
		name      string
		post      model.Post
		handler   func(t *testing.T, w http.ResponseWriter, r *http.Request)
		wantID    string
		wantErrIs error
	}{
		{
			name: "text only",
			post: model.Post{Text: "hello"},
			handler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "hello", body["text"])
				_, hasMedia := body["media"]
				assert.False(t, hasMedia)
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"data":{"id":"1700","text":"hello"}}`))
			},
			wantID: "1700",
		},
		{
			name: "with media",
			post: model.Post{Text: "pic", MediaIDs: []string{"m1"}},
			handler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				raw, _ := io.ReadAll(r.Body)
				assert.JSONEq(t, `{"text":"pic","media":{"media_ids":["m1"]}}`, string(raw))
				_, _ = w.Write([]byte(`{"data":{"id":"1701","text":"pic"}}`))
			},
			wantID: "1701",
		},
		{
			name: "problem document",
			post: model.Post{Text: "dup"},
			handler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"title":"Forbidden","detail":"duplicate content","type":"about:blank","status":403}`))
			},
			wantErrIs: model.ErrUpstreamRejected,
		},
		{
			name: "opaque error body",
			post: model.Post{Text: "x"},
			handler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(`<html>bad gateway</html>`))
			},
			wantErrIs: model.ErrUpstreamRejected,
		},
		{
			name: "success without id",
			post: model.Post{Text: "x"},
			handler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data":{}}`))
			},
			wantErrIs: model.ErrUpstreamData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.handler(t, w, r)
			}))
			defer server.Close()

			id, err := newTestClient(server.URL).Post(context.Background(), model.Token{AccessToken: "tok"}, tt.post)
			if tt.wantErrIs != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestClient_Post_APIErrorDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"title":"Too Many Requests","detail":"slow down","type":"about:blank"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Post(context.Background(), model.Token{}, model.Post{Text: "x"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "slow down", apiErr.Detail)
}

func TestClient_Post_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(server.URL).Post(ctx, model.Token{}, model.Post{Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNetwork)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"1","text":"x"}}`))
	}))
	defer server.Close()

	c := NewClient(config.SocialConfig{APIURL: server.URL, RateLimit: 0.001, Burst: 1})
	_, err := c.Post(context.Background(), model.Token{}, model.Post{Text: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Post(ctx, model.Token{}, model.Post{Text: "second"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNetwork)
}

func TestClient_Upload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "user-1", r.FormValue("additional_owners"))

		f, hdr, err := r.FormFile("media")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "PNGDATA", string(data))
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "abc", hdr.Filename)

		_, _ = w.Write([]byte(`{"media_id":42,"media_id_string":"42","size":7,"expires_after_secs":86400}`))
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).Upload(context.Background(), model.Token{AccessToken: "t"}, "user-1", "abc", "image/png", []byte("PNGDATA"))
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestClient_UploadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"media type unrecognized","code":43}]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Upload(context.Background(), model.Token{}, "u", "f", "image/png", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUpstreamRejected)
	assert.Contains(t, err.Error(), "media type unrecognized")
}
