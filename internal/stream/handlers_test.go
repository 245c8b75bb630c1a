package stream

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fitgram/internal/apiclient"
	"fitgram/internal/guard"
	"fitgram/internal/observability"
	"fitgram/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func signedInApp(t *testing.T, hub *Hub) (*fiber.App, string) {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"data":{"token":"tok","user":{"id":"u1","email":"asha@fitgram.test","name":"Asha"}}}`))
	}))
	t.Cleanup(upstream.Close)

	reg := session.NewRegistry(session.RegistryConfig{
		Clients: map[session.Role]*apiclient.Client{
			session.RoleUser: apiclient.New(apiclient.Config{BaseURL: upstream.URL, Realm: apiclient.RealmUser, LoginRoute: "/auth/login"}),
		},
		Logger: observability.Discard(),
	})
	sid := uuid.NewString()
	if out := reg.Holder(sid, session.RoleUser).SignIn(context.Background(), "asha@fitgram.test", "secret1"); !out.OK {
		t.Fatalf("sign in: %s", out.Message)
	}

	app := fiber.New()
	RegisterRoutes(app.Group("/app"), hub, guard.Require(guard.Config{Registry: reg, Role: session.RoleUser}))
	return app, sid
}

func TestStreamRequiresUpgrade(t *testing.T) {
	hub := NewHub(nil, observability.Discard())
	app, sid := signedInApp(t, hub)

	req := httptest.NewRequest(http.MethodGet, "/app/stream", nil)
	req.Header.Set("Cookie", guard.CookieName+"="+sid)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", resp.StatusCode)
	}
}

func TestStreamRejectsAnonymous(t *testing.T) {
	hub := NewHub(nil, observability.Discard())
	app, _ := signedInApp(t, hub)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/app/stream", nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
}

func TestStreamDeliversViewerEvents(t *testing.T) {
	hub := NewHub(nil, observability.Discard())
	app, sid := signedInApp(t, hub)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	defer ln.Close()

	go func() {
		_ = app.Listener(ln)
	}()
	defer func() { _ = app.Shutdown() }()

	header := http.Header{}
	header.Set("Cookie", guard.CookieName+"="+sid)
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/app/stream", header)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.clients["u1"])
		hub.mu.RUnlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := hub.Publish(context.Background(), "u1", Event{Type: EventPostUpdated, PostID: "p1", Likes: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if ev.PostID != "p1" || ev.Likes != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
}
