package social

import (
	"context"
	"time"

	"fitgram/internal/guard"
	"fitgram/internal/respond"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler, timeout time.Duration) {
	r.Get("/feed", authMiddleware, func(c *fiber.Ctx) error {
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			return svc.LoadFeed(ctx, v, c.QueryInt("limit", DefaultPageSize))
		})
	})

	r.Post("/feed/more", authMiddleware, func(c *fiber.Ctx) error {
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			return svc.LoadMore(ctx, v, c.QueryInt("limit", DefaultPageSize))
		})
	})

	r.Get("/posts/:id", authMiddleware, func(c *fiber.Ctx) error {
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			post, err := svc.GetPost(ctx, v, c.Params("id"))
			return card(post, v.ID), err
		})
	})

	r.Post("/posts", authMiddleware, func(c *fiber.Ctx) error {
		var req NewPost
		if err := c.BodyParser(&req); err != nil {
			return respond.Message(c, fiber.StatusBadRequest, false, "invalid payload")
		}
		c.Status(fiber.StatusCreated)
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			return svc.CreatePost(ctx, v, req)
		})
	})

	r.Post("/stories", authMiddleware, func(c *fiber.Ctx) error {
		var req NewStory
		if err := c.BodyParser(&req); err != nil {
			return respond.Message(c, fiber.StatusBadRequest, false, "invalid payload")
		}
		c.Status(fiber.StatusCreated)
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			return svc.CreateStory(ctx, v, req)
		})
	})

	r.Post("/posts/:id/like", authMiddleware, func(c *fiber.Ctx) error {
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			post, err := svc.ToggleLike(ctx, v, c.Params("id"))
			return card(post, v.ID), err
		})
	})

	r.Post("/posts/:id/save", authMiddleware, func(c *fiber.Ctx) error {
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			post, err := svc.ToggleSave(ctx, v, c.Params("id"))
			return card(post, v.ID), err
		})
	})

	r.Post("/posts/:id/comments", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Text string `json:"text"`
		}
		if err := c.BodyParser(&body); err != nil {
			return respond.Message(c, fiber.StatusBadRequest, false, "invalid payload")
		}
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			post, err := svc.AddComment(ctx, v, c.Params("id"), body.Text)
			return card(post, v.ID), err
		})
	})

	r.Get("/profiles/:id", authMiddleware, func(c *fiber.Ctx) error {
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			return svc.Profile(ctx, v, c.Params("id"))
		})
	})

	r.Post("/profiles/:id/follow", authMiddleware, func(c *fiber.Ctx) error {
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			status, err := svc.Follow(ctx, v, c.Params("id"))
			return fiber.Map{"status": status}, err
		})
	})

	r.Post("/profiles/:id/unfollow", authMiddleware, func(c *fiber.Ctx) error {
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			status, err := svc.Unfollow(ctx, v, c.Params("id"))
			return fiber.Map{"status": status}, err
		})
	})

	r.Get("/follow-requests", authMiddleware, func(c *fiber.Ctx) error {
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			return svc.FollowRequests(ctx, v)
		})
	})

	r.Post("/follow-requests/:id/accept", authMiddleware, func(c *fiber.Ctx) error {
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			return svc.AcceptRequest(ctx, v, c.Params("id"))
		})
	})

	r.Post("/follow-requests/:id/reject", authMiddleware, func(c *fiber.Ctx) error {
		return run(c, timeout, func(ctx context.Context, v Viewer) (any, error) {
			return svc.RejectRequest(ctx, v, c.Params("id"))
		})
	})
}

// PostCard is a post plus the viewer-specific button state.
type PostCard struct {
	Post  Post `json:"post"`
	Likes int  `json:"likes"`
	Liked bool `json:"liked"`
	Saved bool `json:"saved"`
}

func card(p Post, viewerID string) PostCard {
	return PostCard{Post: p, Likes: p.LikeCount(), Liked: p.LikedBy(viewerID), Saved: p.SavedBy(viewerID)}
}

func run(c *fiber.Ctx, timeout time.Duration, action func(ctx context.Context, v Viewer) (any, error)) error {
	sess := guard.CurrentSession(c)
	holder := guard.CurrentHolder(c)
	if sess == nil || holder == nil {
		return fiber.ErrUnauthorized
	}
	ctx, cancel := respond.Context(c, timeout)
	defer cancel()

	data, err := action(ctx, Viewer{ID: sess.SubjectID, API: holder.API()})
	if err != nil {
		return respond.Fail(c, err)
	}
	return respond.OK(c, data)
}
