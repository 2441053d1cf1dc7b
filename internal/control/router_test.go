package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/fwrdpost/internal/metrics"
	"github.com/pders01/fwrdpost/internal/supervisor"
)

type fakeController struct {
	mu        sync.Mutex
	reloads   int
	restarted []string
	hosts     []supervisor.HostStatus
	err       error
}

func (f *fakeController) StartAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reloads++
	return nil
}

func (f *fakeController) RestartUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.restarted = append(f.restarted, userID)
	return nil
}

func (f *fakeController) Status(context.Context) ([]supervisor.HostStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hosts, f.err
}

func TestRouter_Healthz(t *testing.T) {
	srv := httptest.NewServer(NewRouter(&fakeController{}, Options{AdminToken: "secret"}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_RequiresToken(t *testing.T) {
	srv := httptest.NewServer(NewRouter(&fakeController{}, Options{AdminToken: "secret"}))
	defer srv.Close()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer secret", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/schedules", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestClient_RoundTrip(t *testing.T) {
	started := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	ctl := &fakeController{hosts: []supervisor.HostStatus{
		{UserID: "alice", Running: true, Jobs: 2, StartedAt: started},
		{UserID: "bob"},
	}}
	srv := httptest.NewServer(NewRouter(ctl, Options{AdminToken: "secret"}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	ctx := context.Background()

	require.NoError(t, c.Reload(ctx))
	require.NoError(t, c.Restart(ctx, "alice"))
	hosts, err := c.Status(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, ctl.reloads)
	assert.Equal(t, []string{"alice"}, ctl.restarted)
	require.Len(t, hosts, 2)
	assert.Equal(t, "alice", hosts[0].UserID)
	assert.True(t, hosts[0].Running)
	assert.Equal(t, 2, hosts[0].Jobs)
	assert.True(t, started.Equal(hosts[0].StartedAt))
	assert.False(t, hosts[1].Running)
}

func TestClient_ErrorStatus(t *testing.T) {
	ctl := &fakeController{err: supervisor.ErrStopped}
	srv := httptest.NewServer(NewRouter(ctl, Options{}))
	defer srv.Close()

	err := NewClient(strings.TrimPrefix(srv.URL, "http://"), "").Reload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), supervisor.ErrStopped.Error())
}

func TestRouter_RestartResponse(t *testing.T) {
	ctl := &fakeController{}
	srv := httptest.NewServer(NewRouter(ctl, Options{}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/users/alice/schedule/restart", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "alice", body["user_id"])
}

func TestRouter_InternalError(t *testing.T) {
	ctl := &fakeController{err: errors.New("boom")}
	srv := httptest.NewServer(NewRouter(ctl, Options{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/schedules")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.HostStarted()

	srv := httptest.NewServer(NewRouter(&fakeController{}, Options{Gatherer: reg}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sb strings.Builder
	_, err = io.Copy(&sb, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "fwrdpost_supervisor_hosts_running 1")
}
