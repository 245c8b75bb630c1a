// Package auth exposes sign-in, sign-up and sign-out for one realm.
package auth

import (
	"time"

	"fitgram/internal/guard"
	"fitgram/internal/respond"
	"fitgram/internal/session"

	"github.com/gofiber/fiber/v2"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	session.ProfileFields
}

type Routes struct {
	Registry     *session.Registry
	Role         session.Role
	CookieSecure bool
	Timeout      time.Duration
}

// RegisterRoutes mounts /login (GET and POST), /logout and the guarded /me on r. /signup is
// only offered to the user realm.
func RegisterRoutes(r fiber.Router, rt Routes) {
	requireRole := guard.Require(guard.Config{Registry: rt.Registry, Role: rt.Role, CookieSecure: rt.CookieSecure})

	// Guarded routes redirect browsers here with a GET.
	r.Get("/login", func(c *fiber.Ctx) error {
		h := rt.holder(c)
		if h.Resolve(c.UserContext()) == session.StateAuthenticated {
			return respond.OK(c, h.Session())
		}
		return respond.Message(c, fiber.StatusOK, false, "Sign in required.")
	})

	r.Post("/login", func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return respond.Message(c, fiber.StatusBadRequest, false, "invalid payload")
		}
		ctx, cancel := respond.Context(c, rt.Timeout)
		defer cancel()

		out := rt.holder(c).SignIn(ctx, req.Email, req.Password)
		if !out.OK {
			return respond.Message(c, fiber.StatusBadRequest, false, out.Message)
		}
		return c.JSON(out)
	})

	if rt.Role == session.RoleUser {
		r.Post("/signup", func(c *fiber.Ctx) error {
			var req SignupRequest
			if err := c.BodyParser(&req); err != nil {
				return respond.Message(c, fiber.StatusBadRequest, false, "invalid payload")
			}
			ctx, cancel := respond.Context(c, rt.Timeout)
			defer cancel()

			out := rt.holder(c).SignUp(ctx, req.Email, req.Password, req.ProfileFields)
			if !out.OK {
				return respond.Message(c, fiber.StatusBadRequest, false, out.Message)
			}
			return c.Status(fiber.StatusCreated).JSON(out)
		})
	}

	r.Post("/logout", func(c *fiber.Ctx) error {
		ctx, cancel := respond.Context(c, rt.Timeout)
		defer cancel()
		return c.JSON(rt.holder(c).SignOut(ctx))
	})

	r.Get("/me", requireRole, func(c *fiber.Ctx) error {
		return respond.OK(c, guard.CurrentSession(c))
	})
}

func (rt Routes) holder(c *fiber.Ctx) *session.Holder {
	return rt.Registry.Holder(guard.SessionID(c, rt.CookieSecure), rt.Role)
}
