// Package apiclient is the request pipeline to the FitGram REST API. Each
// realm (user, admin) gets its own Client; they share nothing.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"fitgram/internal/observability"

	"github.com/sirupsen/logrus"
)

type Realm string

const (
	RealmUser  Realm = "user"
	RealmAdmin Realm = "admin"
)

const maxBodyBytes = 8 << 20

// Credentials supplies the bearer token for a call and is told when the API
// rejects it.
type Credentials interface {
	Token() string
	Invalidate(ctx context.Context)
}

type Config struct {
	BaseURL    string
	Realm      Realm
	LoginRoute string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logrus.Logger
	Metrics    *observability.Metrics
}

type Client struct {
	baseURL    string
	realm      Realm
	loginRoute string
	timeout    time.Duration
	http       *http.Client
	log        *logrus.Entry
	metrics    *observability.Metrics
}

func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.Discard()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		realm:      cfg.Realm,
		loginRoute: cfg.LoginRoute,
		timeout:    cfg.Timeout,
		http:       httpClient,
		log:        logger.WithField("realm", string(cfg.Realm)),
		metrics:    cfg.Metrics,
	}
}

func (c *Client) Realm() Realm { return c.realm }

func (c *Client) LoginRoute() string { return c.loginRoute }

// For binds the client to one viewer's credentials. A nil creds makes
// anonymous calls (sign-in, sign-up).
func (c *Client) For(creds Credentials) *Caller {
	return &Caller{client: c, creds: creds}
}

// Caller issues calls on behalf of one viewer.
type Caller struct {
	client *Client
	creds  Credentials
}

type envelope struct {
	OK       bool            `json:"ok"`
	Data     json.RawMessage `json:"data"`
	Message  string          `json:"message"`
	Error    string          `json:"error"`
	ImageURL string          `json:"imageUrl"`
}

func (c *Caller) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Caller) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Caller) Delete(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodDelete, path, body, out)
}

// Do sends body as JSON and decodes the envelope's data into out.
func (c *Caller) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Message: FallbackMessage, Err: fmt.Errorf("marshal request body: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}
	env, err := c.send(ctx, method, path, reader, "application/json", body != nil)
	if err != nil {
		return err
	}
	return decodeData(env, out)
}

// UploadImage posts one file as the multipart field "myimage" and returns
// the hosted URL.
func (c *Caller) UploadImage(ctx context.Context, filename string, file io.Reader) (string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("myimage", filename)
	if err != nil {
		return "", &Error{Kind: KindValidation, Message: FallbackMessage, Err: err}
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", &Error{Kind: KindValidation, Message: "Could not read the selected image.", Err: err}
	}
	if err := form.Close(); err != nil {
		return "", &Error{Kind: KindValidation, Message: FallbackMessage, Err: err}
	}

	env, err := c.send(ctx, http.MethodPost, "/image-upload/uploadimage", &buf, form.FormDataContentType(), true)
	if err != nil {
		return "", err
	}
	if env.ImageURL == "" {
		return "", &Error{Kind: KindServer, Status: http.StatusOK, Message: pickMessage(env.Message, env.Error)}
	}
	return env.ImageURL, nil
}

func (c *Caller) send(ctx context.Context, method, path string, body io.Reader, contentType string, hasBody bool) (envelope, error) {
	cl := c.client
	if cl.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cl.timeout)
		defer cancel()
	}

	started := time.Now()
	env, err := c.roundTrip(ctx, method, path, body, contentType, hasBody)
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		cl.log.WithFields(logrus.Fields{"method": method, "path": path, "kind": outcome}).
			WithError(err).Warn("upstream call failed")
	} else {
		cl.log.WithFields(logrus.Fields{"method": method, "path": path}).Debug("upstream call")
	}
	cl.metrics.ObserveUpstream(string(cl.realm), method, outcome, time.Since(started))
	return env, err
}

func (c *Caller) roundTrip(ctx context.Context, method, path string, body io.Reader, contentType string, hasBody bool) (envelope, error) {
	cl := c.client
	req, err := http.NewRequestWithContext(ctx, method, cl.baseURL+path, body)
	if err != nil {
		return envelope{}, &Error{Kind: KindNetwork, Message: FallbackMessage, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", contentType)
	}
	if c.creds != nil {
		if token := c.creds.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := cl.http.Do(req)
	if err != nil {
		return envelope{}, &Error{Kind: KindNetwork, Message: FallbackMessage, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return envelope{}, &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: FallbackMessage, Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode == http.StatusUnauthorized {
		if c.creds != nil {
			c.creds.Invalidate(ctx)
		}
		msg := sessionExpiredMessage
		if decodeErr == nil && (env.Message != "" || env.Error != "") {
			msg = pickMessage(env.Message, env.Error)
		}
		return envelope{}, &Error{Kind: KindUnauthorized, Status: resp.StatusCode, Message: msg, Redirect: cl.loginRoute}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr != nil {
			return envelope{}, &Error{Kind: KindServer, Status: resp.StatusCode, Message: FallbackMessage}
		}
		return envelope{}, &Error{Kind: KindServer, Status: resp.StatusCode, Message: pickMessage(env.Message, env.Error)}
	}
	if decodeErr != nil {
		return envelope{}, &Error{Kind: KindServer, Status: resp.StatusCode, Message: FallbackMessage, Err: fmt.Errorf("decode envelope: %w", decodeErr)}
	}
	if !env.OK {
		return envelope{}, &Error{Kind: KindServer, Status: resp.StatusCode, Message: pickMessage(env.Message, env.Error)}
	}
	return env, nil
}

func decodeData(env envelope, out any) error {
	if out == nil || len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: KindServer, Status: http.StatusOK, Message: FallbackMessage, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

// Call is Do with a typed result.
func Call[T any](ctx context.Context, c *Caller, method, path string, body any) (T, error) {
	var out T
	if err := c.Do(ctx, method, path, body, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// IsCanceled reports whether err came from the caller giving up on the
// request.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
