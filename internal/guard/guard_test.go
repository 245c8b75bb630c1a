package guard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fitgram/internal/apiclient"
	"fitgram/internal/observability"
	"fitgram/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type upstream struct {
	token  string
	gate   chan struct{}
	checks atomic.Int32
}

func (u *upstream) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/login", "/admin/login":
		_, _ = w.Write([]byte(`{"ok":true,"data":{"token":"` + u.token + `","user":{"id":"u1","email":"asha@fitgram.test","name":"Asha"}}}`))
	case "/auth/checklogin", "/admin/checklogin":
		u.checks.Add(1)
		if u.gate != nil {
			<-u.gate
		}
		_, _ = w.Write([]byte(`{"ok":true,"data":{"id":"u1","email":"asha@fitgram.test","name":"Asha"}}`))
	default:
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"message":"Unauthorized"}`))
	}
}

func newRegistry(t *testing.T, up *upstream, tokens session.TokenStore) *session.Registry {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(up.serve))
	t.Cleanup(srv.Close)
	return session.NewRegistry(session.RegistryConfig{
		Tokens: tokens,
		Clients: map[session.Role]*apiclient.Client{
			session.RoleUser:  apiclient.New(apiclient.Config{BaseURL: srv.URL, Realm: apiclient.RealmUser, LoginRoute: "/auth/login"}),
			session.RoleAdmin: apiclient.New(apiclient.Config{BaseURL: srv.URL, Realm: apiclient.RealmAdmin, LoginRoute: "/admin/login"}),
		},
		Logger: observability.Discard(),
	})
}

func newApp(reg *session.Registry, role session.Role) *fiber.App {
	app := fiber.New()
	app.Get("/private", Require(Config{Registry: reg, Role: role}), func(c *fiber.Ctx) error {
		sess := CurrentSession(c)
		if sess == nil || CurrentHolder(c) == nil {
			return fiber.NewError(fiber.StatusInternalServerError, "missing locals")
		}
		return c.SendString(sess.DisplayName)
	})
	return app
}

func get(t *testing.T, app *fiber.App, sid string, jsonClient bool) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if sid != "" {
		req.Header.Set("Cookie", CookieName+"="+sid)
	}
	if jsonClient {
		req.Header.Set("Accept", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return resp
}

func TestAnonymousRedirectsAndIssuesCookie(t *testing.T) {
	app := newApp(newRegistry(t, &upstream{}, session.NewMemoryTokenStore()), session.RoleUser)

	resp := get(t, app, "", false)
	if resp.StatusCode != fiber.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/auth/login" {
		t.Fatalf("expected login redirect, got %q", loc)
	}
	if !strings.Contains(resp.Header.Get("Set-Cookie"), CookieName+"=") {
		t.Fatalf("expected session cookie to be issued")
	}
}

func TestAnonymousJSONClientGets401(t *testing.T) {
	app := newApp(newRegistry(t, &upstream{}, session.NewMemoryTokenStore()), session.RoleAdmin)

	resp := get(t, app, uuid.NewString(), true)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["redirect"] != "/admin/login" {
		t.Fatalf("unexpected redirect %q", body["redirect"])
	}
}

func TestAuthenticatedPassesThrough(t *testing.T) {
	reg := newRegistry(t, &upstream{token: "opaque-token"}, session.NewMemoryTokenStore())
	sid := uuid.NewString()
	if out := reg.Holder(sid, session.RoleUser).SignIn(context.Background(), "asha@fitgram.test", "secret1"); !out.OK {
		t.Fatalf("sign in: %s", out.Message)
	}

	resp := get(t, newApp(reg, session.RoleUser), sid, false)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Asha" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestUserSessionDoesNotOpenAdminRoutes(t *testing.T) {
	reg := newRegistry(t, &upstream{token: "opaque-token"}, session.NewMemoryTokenStore())
	sid := uuid.NewString()
	reg.Holder(sid, session.RoleUser).SignIn(context.Background(), "asha@fitgram.test", "secret1")

	resp := get(t, newApp(reg, session.RoleAdmin), sid, false)
	if resp.StatusCode != fiber.StatusSeeOther || resp.Header.Get("Location") != "/admin/login" {
		t.Fatalf("expected admin login redirect, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestRedirectsAfterUnauthorizedCall(t *testing.T) {
	reg := newRegistry(t, &upstream{token: "opaque-token"}, session.NewMemoryTokenStore())
	sid := uuid.NewString()
	h := reg.Holder(sid, session.RoleUser)
	h.SignIn(context.Background(), "asha@fitgram.test", "secret1")
	app := newApp(reg, session.RoleUser)

	if resp := get(t, app, sid, false); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 before 401, got %d", resp.StatusCode)
	}

	if err := h.API().Get(context.Background(), "/social/feed", nil); apiclient.KindOf(err) != apiclient.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if h.State() != session.StateAnonymous {
		t.Fatalf("expected anonymous holder, got %s", h.State())
	}

	resp := get(t, app, sid, false)
	if resp.StatusCode != fiber.StatusSeeOther {
		t.Fatalf("expected redirect after 401, got %d", resp.StatusCode)
	}
}

func TestExpiredJWTIsTreatedAsAnonymous(t *testing.T) {
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("upstream-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	reg := newRegistry(t, &upstream{token: stale}, session.NewMemoryTokenStore())
	sid := uuid.NewString()
	h := reg.Holder(sid, session.RoleUser)
	h.SignIn(context.Background(), "asha@fitgram.test", "secret1")

	resp := get(t, newApp(reg, session.RoleUser), sid, false)
	if resp.StatusCode != fiber.StatusSeeOther {
		t.Fatalf("expected redirect for expired token, got %d", resp.StatusCode)
	}
	if h.Token() != "" {
		t.Fatalf("expected token cleared")
	}
}

func TestResolvingRendersPlaceholder(t *testing.T) {
	tokens := session.NewMemoryTokenStore()
	up := &upstream{token: "opaque-token"}
	sid := uuid.NewString()
	newRegistry(t, up, tokens).Holder(sid, session.RoleUser).SignIn(context.Background(), "asha@fitgram.test", "secret1")

	up.gate = make(chan struct{})
	app := newApp(newRegistry(t, up, tokens), session.RoleUser)

	first := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Cookie", CookieName+"="+sid)
		resp, err := app.Test(req, -1)
		if err != nil {
			first <- 0
			return
		}
		first <- resp.StatusCode
	}()

	deadline := time.Now().Add(time.Second)
	for up.checks.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	resp := get(t, app, sid, false)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("expected 202 while resolving, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After header")
	}

	close(up.gate)
	if code := <-first; code != fiber.StatusOK {
		t.Fatalf("expected resolving request to finish with 200, got %d", code)
	}
}

type unreachableTokens struct{ cleared atomic.Int32 }

func (u *unreachableTokens) Load(context.Context, string) (string, error) {
	return "", errors.New("dial tcp: connection refused")
}

func (u *unreachableTokens) Save(context.Context, string, string, time.Duration) error { return nil }

func (u *unreachableTokens) Clear(context.Context, string) error {
	u.cleared.Add(1)
	return nil
}

func TestUnfinishedResolveAsksToRetry(t *testing.T) {
	tokens := &unreachableTokens{}
	app := newApp(newRegistry(t, &upstream{token: "opaque-token"}, tokens), session.RoleUser)

	resp := get(t, app, uuid.NewString(), false)
	if resp.StatusCode != fiber.StatusAccepted || resp.Header.Get("Retry-After") != "1" {
		t.Fatalf("expected 202 with Retry-After, got %d", resp.StatusCode)
	}
	if tokens.cleared.Load() != 0 {
		t.Fatalf("token store must not be cleared when it could not be read")
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	fresh, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}).SignedString([]byte("k"))
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("k"))

	cases := map[string]bool{
		"opaque-token": false,
		fresh:          false,
		noExp:          false,
		"a.b.c":        true,
	}
	for token, want := range cases {
		if got := tokenExpired(token, now); got != want {
			t.Fatalf("tokenExpired(%q) = %v, want %v", token, got, want)
		}
	}
}
