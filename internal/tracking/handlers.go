package tracking

import (
	"time"

	"fitgram/internal/apiclient"
	"fitgram/internal/guard"
	"fitgram/internal/respond"

	"github.com/gofiber/fiber/v2"
)

type entryRequest struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type bmiRequest struct {
	HeightCm float64 `json:"heightCm"`
	WeightKg float64 `json:"weightKg"`
}

func RegisterRoutes(r fiber.Router, authMiddleware fiber.Handler, timeout time.Duration) {
	r.Get("/track/:metric", authMiddleware, func(c *fiber.Ctx) error {
		tracker, err := trackerFor(c)
		if err != nil {
			return respond.Fail(c, err)
		}
		ctx, cancel := respond.Context(c, timeout)
		defer cancel()

		day, err := tracker.Day(ctx, c.Query("date", Today(time.Now())))
		if err != nil {
			return respond.Fail(c, err)
		}
		return respond.OK(c, day)
	})

	r.Post("/track/:metric", authMiddleware, func(c *fiber.Ctx) error {
		tracker, err := trackerFor(c)
		if err != nil {
			return respond.Fail(c, err)
		}
		var req entryRequest
		if err := c.BodyParser(&req); err != nil {
			return respond.Message(c, fiber.StatusBadRequest, false, "invalid payload")
		}
		if req.Date == "" {
			req.Date = Today(time.Now())
		}
		ctx, cancel := respond.Context(c, timeout)
		defer cancel()

		if err := tracker.AddEntry(ctx, req.Date, req.Value); err != nil {
			return respond.Fail(c, err)
		}
		// The entry is stored; a failed refresh must not read as a failed add.
		notice := respond.Notice{OK: true, Message: "Entry added."}
		if day, err := tracker.Day(ctx, req.Date); err == nil {
			notice.Data = day
		}
		return c.Status(fiber.StatusCreated).JSON(notice)
	})

	r.Delete("/track/:metric", authMiddleware, func(c *fiber.Ctx) error {
		tracker, err := trackerFor(c)
		if err != nil {
			return respond.Fail(c, err)
		}
		date := c.Query("date")
		ctx, cancel := respond.Context(c, timeout)
		defer cancel()

		if err := tracker.DeleteEntry(ctx, date); err != nil {
			return respond.Fail(c, err)
		}
		notice := respond.Notice{OK: true, Message: "Entries removed."}
		if day, err := tracker.Day(ctx, date); err == nil {
			notice.Data = day
		}
		return c.JSON(notice)
	})

	r.Post("/bmi", authMiddleware, func(c *fiber.Ctx) error {
		var req bmiRequest
		if err := c.BodyParser(&req); err != nil {
			return respond.Message(c, fiber.StatusBadRequest, false, "invalid payload")
		}
		res, err := BMI(req.HeightCm, req.WeightKg)
		if err != nil {
			return respond.Fail(c, err)
		}
		return respond.OK(c, res)
	})
}

func trackerFor(c *fiber.Ctx) (*Tracker, error) {
	metric, ok := Lookup(c.Params("metric"))
	if !ok {
		return nil, &apiclient.Error{Kind: apiclient.KindValidation, Status: fiber.StatusNotFound, Message: "Unknown metric."}
	}
	holder := guard.CurrentHolder(c)
	if holder == nil {
		return nil, &apiclient.Error{Kind: apiclient.KindUnauthorized, Message: "Please sign in."}
	}
	return NewTracker(metric, holder.API()), nil
}
