// Package session holds the authenticated identity of each browser session,
// one Holder per role.
package session

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"fitgram/internal/apiclient"
	"fitgram/internal/profile"

	"github.com/sirupsen/logrus"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type State int

const (
	StateUninitialized State = iota
	StateResolving
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "uninitialized"
	}
}

type Session struct {
	SubjectID   string `json:"subjectId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// Outcome is what sign-in, sign-up and sign-out report to views.
type Outcome struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// ProfileFields are the extra sign-up inputs.
type ProfileFields struct {
	Name          string  `json:"name"`
	HeightCm      float64 `json:"heightCm"`
	WeightKg      float64 `json:"weightKg"`
	Gender        string  `json:"gender"`
	DateOfBirth   string  `json:"dob"`
	Goal          string  `json:"goal"`
	ActivityLevel string  `json:"activityLevel"`
}

// ProfileSink receives the profile fields of a fresh account.
type ProfileSink interface {
	Enabled() bool
	Upsert(ctx context.Context, p profile.Profile) (profile.Profile, error)
}

type endpoints struct {
	login    string
	register string
	check    string
	logout   string
}

var roleEndpoints = map[Role]endpoints{
	RoleUser:  {login: "/auth/login", register: "/auth/register", check: "/auth/checklogin", logout: "/auth/logout"},
	RoleAdmin: {login: "/admin/login", check: "/admin/checklogin", logout: "/admin/logout"},
}

type identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type loginResult struct {
	Token string    `json:"token"`
	User  *identity `json:"user"`
}

// Holder is the session state for one (browser session, role) pair. It
// satisfies apiclient.Credentials so API calls made through it carry its
// token and tear it down on 401.
type Holder struct {
	mu       sync.Mutex
	sid      string
	role     Role
	state    State
	session  *Session
	token    string
	lastUsed time.Time

	tokens   TokenStore
	tokenTTL time.Duration
	api      *apiclient.Client
	profiles ProfileSink
	log      *logrus.Entry
}

func (h *Holder) Role() Role { return h.role }

func (h *Holder) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Session returns a copy of the current identity, or nil when anonymous.
func (h *Holder) Session() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return nil
	}
	s := *h.session
	return &s
}

func (h *Holder) Token() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token
}

// LoginRoute is where an anonymous viewer of this role is sent.
func (h *Holder) LoginRoute() string { return h.api.LoginRoute() }

// API returns a caller bound to this holder's credentials.
func (h *Holder) API() *apiclient.Caller {
	return h.api.For(h)
}

// Resolve runs the startup check: load the persisted token and validate it
// against the identity endpoint. Callers arriving while another resolve is in
// flight get StateResolving back immediately. A settled holder re-reads the
// persisted token and resolves again when another instance changed it.
// StateUninitialized comes back when the check could not finish (cancelled
// request, token store unreachable); nothing is cleared in that case.
func (h *Holder) Resolve(ctx context.Context) State {
	key := tokenKey(h.role, h.sid)

	h.mu.Lock()
	switch h.state {
	case StateResolving:
		h.mu.Unlock()
		return StateResolving
	case StateAuthenticated, StateAnonymous:
		state, known := h.state, h.token
		h.mu.Unlock()
		if !h.persistedChanged(ctx, key, known) {
			return state
		}
		h.mu.Lock()
		if h.state != state || h.token != known {
			// Someone else moved the holder meanwhile.
			state = h.state
			h.mu.Unlock()
			return state
		}
	}
	h.state = StateResolving
	h.mu.Unlock()

	token, err := h.tokens.Load(ctx, key)
	if err != nil {
		h.log.WithError(err).Warn("load persisted token")
		return h.reset()
	}
	if token == "" {
		h.becomeAnonymous(ctx)
		return StateAnonymous
	}

	who, err := apiclient.Call[identity](ctx, h.api.For(staticToken(token)), http.MethodGet, roleEndpoints[h.role].check, nil)
	if apiclient.IsCanceled(err) {
		return h.reset()
	}
	if err != nil || who.ID == "" {
		h.log.WithField("kind", apiclient.KindOf(err)).Info("persisted token rejected")
		h.becomeAnonymous(ctx)
		return StateAnonymous
	}

	h.mu.Lock()
	h.token = token
	h.session = h.toSession(who)
	h.state = StateAuthenticated
	h.mu.Unlock()
	return StateAuthenticated
}

// persistedChanged reports whether the stored token no longer matches the
// one this holder settled on. A store error keeps the current state.
func (h *Holder) persistedChanged(ctx context.Context, key, known string) bool {
	stored, err := h.tokens.Load(ctx, key)
	if err != nil {
		h.log.WithError(err).Debug("recheck persisted token")
		return false
	}
	return stored != known
}

func (h *Holder) reset() State {
	h.mu.Lock()
	h.token = ""
	h.session = nil
	h.state = StateUninitialized
	h.mu.Unlock()
	return StateUninitialized
}

// SignIn exchanges credentials for a token and persists it.
func (h *Holder) SignIn(ctx context.Context, email, password string) Outcome {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Outcome{Message: "Email and password are required."}
	}

	ep := roleEndpoints[h.role]
	res, err := apiclient.Call[loginResult](ctx, h.api.For(nil), http.MethodPost, ep.login, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return Outcome{Message: apiclient.MessageOf(err)}
	}
	if res.Token == "" {
		return Outcome{Message: apiclient.FallbackMessage}
	}

	who := res.User
	if who == nil || who.ID == "" {
		checked, err := apiclient.Call[identity](ctx, h.api.For(staticToken(res.Token)), http.MethodGet, ep.check, nil)
		if err != nil {
			return Outcome{Message: apiclient.MessageOf(err)}
		}
		who = &checked
	}

	if err := h.tokens.Save(ctx, tokenKey(h.role, h.sid), res.Token, h.tokenTTL); err != nil {
		h.log.WithError(err).Error("persist token")
		return Outcome{Message: apiclient.FallbackMessage}
	}

	h.mu.Lock()
	h.token = res.Token
	h.session = h.toSession(*who)
	h.state = StateAuthenticated
	h.mu.Unlock()

	h.log.WithField("subject", who.ID).Info("signed in")
	return Outcome{OK: true, Message: "Signed in."}
}

type registerResult struct {
	ID string `json:"id"`
}

// SignUp creates an account. It does not sign the new account in.
func (h *Holder) SignUp(ctx context.Context, email, password string, fields ProfileFields) Outcome {
	ep := roleEndpoints[h.role]
	if ep.register == "" {
		return Outcome{Message: "Sign-up is not available here."}
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" || strings.TrimSpace(fields.Name) == "" {
		return Outcome{Message: "Name, email and password are required."}
	}
	if len(password) < 6 {
		return Outcome{Message: "Password must be at least 6 characters."}
	}

	body := map[string]any{
		"name":          fields.Name,
		"email":         email,
		"password":      password,
		"weightInKg":    fields.WeightKg,
		"heightInCm":    fields.HeightCm,
		"gender":        fields.Gender,
		"dob":           fields.DateOfBirth,
		"goal":          fields.Goal,
		"activityLevel": fields.ActivityLevel,
	}
	var created registerResult
	if err := h.api.For(nil).Post(ctx, ep.register, body, &created); err != nil {
		return Outcome{Message: apiclient.MessageOf(err)}
	}

	if created.ID != "" && h.profiles != nil && h.profiles.Enabled() {
		_, err := h.profiles.Upsert(ctx, profile.Profile{
			UserID:        created.ID,
			DisplayName:   fields.Name,
			HeightCm:      fields.HeightCm,
			WeightKg:      fields.WeightKg,
			Gender:        fields.Gender,
			DateOfBirth:   fields.DateOfBirth,
			Goal:          fields.Goal,
			ActivityLevel: fields.ActivityLevel,
		})
		if err != nil {
			h.log.WithError(err).WithField("subject", created.ID).Warn("store sign-up profile")
		}
	}
	return Outcome{OK: true, Message: "Account created. Please sign in."}
}

// SignOut tells the API (best effort) and drops the local identity and
// persisted token either way.
func (h *Holder) SignOut(ctx context.Context) Outcome {
	if h.Token() != "" {
		if err := h.api.For(staticToken(h.Token())).Post(ctx, roleEndpoints[h.role].logout, nil, nil); err != nil {
			h.log.WithError(err).Debug("upstream logout")
		}
	}
	h.becomeAnonymous(ctx)
	return Outcome{OK: true, Message: "Signed out."}
}

// Invalidate forces the holder anonymous. The API client calls it on 401.
func (h *Holder) Invalidate(ctx context.Context) {
	h.log.Info("session invalidated")
	h.becomeAnonymous(ctx)
}

func (h *Holder) becomeAnonymous(ctx context.Context) {
	if err := h.tokens.Clear(ctx, tokenKey(h.role, h.sid)); err != nil {
		h.log.WithError(err).Warn("clear persisted token")
	}
	h.mu.Lock()
	h.token = ""
	h.session = nil
	h.state = StateAnonymous
	h.mu.Unlock()
}

func (h *Holder) toSession(who identity) *Session {
	name := who.Name
	if name == "" {
		name = who.Email
	}
	return &Session{SubjectID: who.ID, Email: who.Email, DisplayName: name, Role: h.role}
}

func (h *Holder) touch(now time.Time) {
	h.mu.Lock()
	h.lastUsed = now
	h.mu.Unlock()
}

func (h *Holder) idleSince(now time.Time) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return now.Sub(h.lastUsed)
}

// staticToken carries a token that is not (yet) owned by the holder. A 401
// on it is handled by the caller.
type staticToken string

func (t staticToken) Token() string { return string(t) }

func (staticToken) Invalidate(context.Context) {}
