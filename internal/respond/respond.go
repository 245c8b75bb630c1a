// Package respond writes the {ok, data, message} notices every gateway
// action answers with.
package respond

import (
	"context"
	"errors"
	"time"

	"fitgram/internal/apiclient"
	"fitgram/internal/guard"

	"github.com/gofiber/fiber/v2"
)

type Notice struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func OK(c *fiber.Ctx, data any) error {
	return c.JSON(Notice{OK: true, Data: data})
}

func Message(c *fiber.Ctx, status int, ok bool, msg string) error {
	return c.Status(status).JSON(Notice{OK: ok, Message: msg})
}

// Fail maps an action error to its notice. Unauthorized errors send the
// viewer to the login route instead.
func Fail(c *fiber.Ctx, err error) error {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Kind == apiclient.KindUnauthorized && apiErr.Redirect != "" {
		return guard.Deny(c, apiErr.Redirect)
	}
	return Message(c, Status(err), false, apiclient.MessageOf(err))
}

// Status is the gateway status for an action error.
func Status(err error) int {
	var apiErr *apiclient.Error
	clientStatus := errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
	switch apiclient.KindOf(err) {
	case apiclient.KindValidation:
		if clientStatus {
			return apiErr.Status
		}
		return fiber.StatusBadRequest
	case apiclient.KindUnauthorized:
		return fiber.StatusUnauthorized
	case apiclient.KindServer:
		if clientStatus {
			return apiErr.Status
		}
		return fiber.StatusBadGateway
	default:
		if apiclient.IsCanceled(err) {
			return fiber.StatusGatewayTimeout
		}
		return fiber.StatusBadGateway
	}
}

// Context derives the context for the upstream calls of one request. It is
// cancelled when the handler returns.
func Context(c *fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), timeout)
}
