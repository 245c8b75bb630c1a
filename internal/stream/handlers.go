package stream

import (
	"fitgram/internal/guard"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const localsViewer = "stream_viewer"

// RegisterRoutes mounts the viewer's event socket on r at /stream. The
// requireUser handler must run first so the viewer is known.
func RegisterRoutes(r fiber.Router, hub *Hub, requireUser fiber.Handler) {
	r.Get("/stream", requireUser, func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		sess := guard.CurrentSession(c)
		if sess == nil {
			return fiber.ErrUnauthorized
		}
		c.Locals(localsViewer, sess.SubjectID)
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		viewerID, _ := c.Locals(localsViewer).(string)
		client := hub.Register(viewerID)
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}
