package storage

import (
	"context"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"fitgram/internal/apiclient"
	"fitgram/internal/guard"
	"fitgram/internal/respond"

	"github.com/gofiber/fiber/v2"
)

// MaxImageBytes caps one upload.
const MaxImageBytes = 5 << 20

// Uploader hands an image to the remote API and returns its hosted URL.
type Uploader interface {
	UploadImage(ctx context.Context, filename string, file io.Reader) (string, error)
}

// RegisterRoutes mounts POST /uploads. The form field is "image"; "myimage"
// is accepted as well since that is what the API itself expects.
func RegisterRoutes(r fiber.Router, authMiddleware fiber.Handler, timeout time.Duration) {
	r.Post("/uploads", authMiddleware, func(c *fiber.Ctx) error {
		holder := guard.CurrentHolder(c)
		if holder == nil {
			return respond.Fail(c, &apiclient.Error{Kind: apiclient.KindUnauthorized, Message: apiclient.FallbackMessage})
		}
		header, err := formImage(c)
		if err != nil {
			return respond.Fail(c, err)
		}
		ctx, cancel := respond.Context(c, timeout)
		defer cancel()

		url, err := Upload(ctx, holder.API(), header)
		if err != nil {
			return respond.Fail(c, err)
		}
		c.Status(fiber.StatusCreated)
		return respond.OK(c, fiber.Map{"url": url})
	})
}

func formImage(c *fiber.Ctx) (*multipart.FileHeader, error) {
	for _, field := range []string{"image", "myimage"} {
		if h, err := c.FormFile(field); err == nil {
			return h, nil
		}
	}
	return nil, invalid("Select an image to upload.")
}

// Upload checks the file and forwards it.
func Upload(ctx context.Context, up Uploader, header *multipart.FileHeader) (string, error) {
	if header.Size <= 0 {
		return "", invalid("The selected image is empty.")
	}
	if header.Size > MaxImageBytes {
		return "", invalid("Image must be 5 MB or smaller.")
	}
	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		return "", invalid("Only image files can be uploaded.")
	}
	f, err := header.Open()
	if err != nil {
		return "", &apiclient.Error{Kind: apiclient.KindValidation, Message: "Could not read the selected image.", Err: err}
	}
	defer f.Close()
	return up.UploadImage(ctx, header.Filename, f)
}

func invalid(msg string) error {
	return &apiclient.Error{Kind: apiclient.KindValidation, Message: msg}
}
