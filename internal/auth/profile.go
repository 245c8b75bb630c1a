package auth

import (
	"context"
	"errors"

	"fitgram/internal/apiclient"
	"fitgram/internal/guard"
	"fitgram/internal/profile"
	"fitgram/internal/respond"
	"fitgram/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// ProfileStore is the slice of the profile store the account pages use.
type ProfileStore interface {
	Enabled() bool
	Get(ctx context.Context, userID string) (profile.Profile, error)
	Update(ctx context.Context, userID string, patch profile.Patch) (profile.Profile, error)
}

type profilePage struct {
	Profile profile.Profile     `json:"profile"`
	BMI     *tracking.BMIResult `json:"bmi,omitempty"`
}

// RegisterProfileRoutes mounts GET and PATCH /me/profile on r.
func RegisterProfileRoutes(r fiber.Router, store ProfileStore, authMiddleware fiber.Handler, log *logrus.Logger) {
	r.Get("/me/profile", authMiddleware, func(c *fiber.Ctx) error {
		p, err := store.Get(c.UserContext(), guard.CurrentSession(c).SubjectID)
		if err != nil {
			return profileError(c, err, log)
		}
		return respond.OK(c, page(p))
	})

	r.Patch("/me/profile", authMiddleware, func(c *fiber.Ctx) error {
		var patch profile.Patch
		if err := c.BodyParser(&patch); err != nil {
			return respond.Message(c, fiber.StatusBadRequest, false, "invalid payload")
		}
		if patch.Empty() {
			return respond.Message(c, fiber.StatusBadRequest, false, "Nothing to update.")
		}
		if patch.HeightCm != nil && !(*patch.HeightCm > 0 && *patch.HeightCm <= 300) {
			return respond.Message(c, fiber.StatusBadRequest, false, "Height must be between 1 and 300 cm.")
		}
		if patch.WeightKg != nil && !(*patch.WeightKg > 0 && *patch.WeightKg <= 700) {
			return respond.Message(c, fiber.StatusBadRequest, false, "Weight must be between 1 and 700 kg.")
		}

		p, err := store.Update(c.UserContext(), guard.CurrentSession(c).SubjectID, patch)
		if err != nil {
			return profileError(c, err, log)
		}
		return c.JSON(respond.Notice{OK: true, Data: page(p), Message: "Profile updated."})
	})
}

func page(p profile.Profile) profilePage {
	out := profilePage{Profile: p}
	if bmi, err := tracking.BMI(p.HeightCm, p.WeightKg); err == nil {
		out.BMI = &bmi
	}
	return out
}

func profileError(c *fiber.Ctx, err error, log *logrus.Logger) error {
	switch {
	case errors.Is(err, profile.ErrDisabled):
		return respond.Message(c, fiber.StatusNotFound, false, "Profile details are not available.")
	case errors.Is(err, profile.ErrNotFound):
		return respond.Message(c, fiber.StatusNotFound, false, "No profile details saved yet.")
	default:
		log.WithError(err).Error("profile store")
		return respond.Message(c, fiber.StatusInternalServerError, false, apiclient.FallbackMessage)
	}
}
