// Package guard gates routes on the session state of the requesting browser.
package guard

import (
	"strings"
	"time"

	"fitgram/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const CookieName = "fitgram_sid"

const (
	localsSID     = "sid"
	localsSession = "session"
	localsHolder  = "holder"
)

type Config struct {
	Registry     *session.Registry
	Role         session.Role
	CookieSecure bool
}

// Require lets the request through only when the holder for the browser
// session and role is authenticated with a token that has not expired.
func Require(cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := cfg.Registry.Holder(SessionID(c, cfg.CookieSecure), cfg.Role)

		state := h.Resolve(c.UserContext())
		if state == session.StateAuthenticated && tokenExpired(h.Token(), nowFn()) {
			h.Invalidate(c.UserContext())
			state = session.StateAnonymous
		}

		switch state {
		case session.StateResolving, session.StateUninitialized:
			// Uninitialized means the check was cut short; the token is kept.
			c.Set(fiber.HeaderRetryAfter, "1")
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "resolving"})
		case session.StateAuthenticated:
			sess := h.Session()
			if sess == nil {
				return Deny(c, h.LoginRoute())
			}
			c.Locals(localsSession, sess)
			c.Locals(localsHolder, h)
			return c.Next()
		default:
			return Deny(c, h.LoginRoute())
		}
	}
}

// Deny sends the viewer to the login route: a 303 for browsers, a 401 with
// the target for JSON clients.
func Deny(c *fiber.Ctx, loginRoute string) error {
	if wantsJSON(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"redirect": loginRoute})
	}
	return c.Redirect(loginRoute, fiber.StatusSeeOther)
}

// SessionID returns the browser session id, issuing a new cookie when the
// request has none.
func SessionID(c *fiber.Ctx, secure bool) string {
	if sid, ok := c.Locals(localsSID).(string); ok && sid != "" {
		return sid
	}
	sid := c.Cookies(CookieName)
	if _, err := uuid.Parse(sid); err != nil {
		sid = uuid.NewString()
		c.Cookie(&fiber.Cookie{
			Name:     CookieName,
			Value:    sid,
			Path:     "/",
			HTTPOnly: true,
			Secure:   secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
	c.Locals(localsSID, sid)
	return sid
}

// CurrentSession is the identity stored by Require.
func CurrentSession(c *fiber.Ctx) *session.Session {
	sess, _ := c.Locals(localsSession).(*session.Session)
	return sess
}

// CurrentHolder is the holder stored by Require.
func CurrentHolder(c *fiber.Ctx) *session.Holder {
	h, _ := c.Locals(localsHolder).(*session.Holder)
	return h
}

var nowFn = time.Now

// tokenExpired inspects the exp claim without verifying the signature; the
// API owns the key. Opaque tokens are never considered expired here.
func tokenExpired(token string, now time.Time) bool {
	if strings.Count(token, ".") != 2 {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return true
	}
	if exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

func wantsJSON(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON)
}
