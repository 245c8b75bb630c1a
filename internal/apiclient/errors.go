package apiclient

import (
	"errors"
	"strings"
)

// Kind classifies a failed call so views can react without inspecting
// status codes.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindServer       Kind = "server"
	KindNetwork      Kind = "network"
)

// FallbackMessage is shown when neither the server nor the transport gives
// anything better.
const FallbackMessage = "Something went wrong. Please try again."

const sessionExpiredMessage = "Your session has expired. Please sign in again."

// Error is the failure half of every call result.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// Redirect is the login route to send the browser to. Only set for
	// KindUnauthorized.
	Redirect string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds an error for input rejected before any request is sent.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// KindOf reports the kind of err, or KindNetwork for foreign errors.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindNetwork
}

// MessageOf returns the user-visible message for err.
func MessageOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return FallbackMessage
}

// RedirectOf returns the login route carried by an unauthorized error.
func RedirectOf(err error) (string, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Kind == KindUnauthorized && apiErr.Redirect != "" {
		return apiErr.Redirect, true
	}
	return "", false
}

func pickMessage(message, errText string) string {
	if m := strings.TrimSpace(message); m != "" {
		return m
	}
	if m := strings.TrimSpace(errText); m != "" {
		return m
	}
	return FallbackMessage
}
