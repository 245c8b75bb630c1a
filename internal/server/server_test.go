package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fitgram/internal/config"
	"fitgram/internal/guard"
	"fitgram/internal/observability"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			_, _ = w.Write([]byte(`{"ok":true,"data":{"token":"tok-1","user":{"id":"u1","email":"u1@fitgram.test","name":"U1"}}}`))
		case "/auth/logout":
			_, _ = w.Write([]byte(`{"ok":true}`))
		case "/auth/checklogin":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"data":{"id":"u1","email":"u1@fitgram.test","name":"U1"}}`))
		case "/watertrack/getusergoalwater":
			_, _ = w.Write([]byte(`{"ok":true,"data":2000}`))
		case "/watertrack/getwaterbydate":
			_, _ = w.Write([]byte(`{"ok":true,"data":[{"date":"2026-10-18","amountInMilliliters":500}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, rdb *redis.Client) *Server {
	t.Helper()
	cfg := config.Config{
		ServerPort:     ":0",
		APIBaseURL:     fakeAPI(t).URL,
		SessionTTL:     time.Hour,
		ViewTTL:        time.Minute,
		RequestTimeout: 2 * time.Second,
	}
	s := NewServer(cfg, nil, rdb, observability.Discard())
	t.Cleanup(s.Close)
	return s
}

func TestHealthRoute(t *testing.T) {
	s := newTestServer(t, nil)

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t, nil)
	s.Metrics.ObserveUpstream("user", "GET", "ok", time.Millisecond)

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fitgram_upstream_calls_total")
}

func TestAnonymousAppRouteRedirects(t *testing.T) {
	s := newTestServer(t, nil)

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/app/feed", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, userLoginRoute, resp.Header.Get("Location"))
}

func TestAdminRouteAnswersJSON(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := s.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, adminLoginRoute, body["redirect"])
}

func TestProfileDisabledWithoutDatabase(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := login(t, s)

	req := httptest.NewRequest(http.MethodGet, "/app/me/profile", nil)
	req.Header.Set("Cookie", cookie)
	resp, err := s.App.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// The token lives in Redis, so a second gateway instance sharing it
// recognises the same browser.
func TestSessionSurvivesAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	first := newTestServer(t, rdb)
	cookie := login(t, first)

	second := newTestServer(t, rdb)
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Cookie", cookie)

	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = second.App.Test(req, -1)
		return err == nil && resp.StatusCode != http.StatusAccepted
	}, time.Second, 20*time.Millisecond)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignOutReachesOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	first := newTestServer(t, rdb)
	second := newTestServer(t, rdb)
	cookie := login(t, first)

	me := func(s *Server) int {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Cookie", cookie)
		req.Header.Set("Accept", "application/json")
		resp, err := s.App.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}
	require.Equal(t, http.StatusOK, me(second))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Cookie", cookie)
	resp, err := first.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, http.StatusUnauthorized, me(first))
	assert.Equal(t, http.StatusUnauthorized, me(second))
}

func TestTrackingRouteWired(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := login(t, s)

	req := httptest.NewRequest(http.MethodGet, "/app/track/water?date=2026-10-18", nil)
	req.Header.Set("Cookie", cookie)
	resp, err := s.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Total float64 `json:"total"`
			Goal  float64 `json:"goal"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 500.0, body.Data.Total)
	assert.Equal(t, 2000.0, body.Data.Goal)
}

func login(t *testing.T, s *Server) string {
	t.Helper()
	raw, _ := json.Marshal(map[string]string{"email": "u1@fitgram.test", "password": "secret1"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, c := range resp.Cookies() {
		if c.Name == guard.CookieName {
			return c.Name + "=" + c.Value
		}
	}
	t.Fatalf("no %s cookie in %v", guard.CookieName, strings.Join(resp.Header.Values("Set-Cookie"), "; "))
	return ""
}
