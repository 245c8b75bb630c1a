package session

import (
	"sync"
	"time"

	"fitgram/internal/apiclient"

	"github.com/sirupsen/logrus"
)

type holderKey struct {
	sid  string
	role Role
}

type RegistryConfig struct {
	Tokens   TokenStore
	Clients  map[Role]*apiclient.Client
	Profiles ProfileSink
	TokenTTL time.Duration
	// IdleTTL drops holders nobody asked for in this long. The persisted
	// token survives, so a returning browser simply resolves again.
	IdleTTL time.Duration
	Logger  *logrus.Logger
}

// Registry hands out the Holder for a browser session and role, creating it
// on first use.
type Registry struct {
	mu      sync.Mutex
	holders map[holderKey]*Holder
	cfg     RegistryConfig
	now     func() time.Time
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = time.Hour
	}
	if cfg.Tokens == nil {
		cfg.Tokens = NewMemoryTokenStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Registry{
		holders: map[holderKey]*Holder{},
		cfg:     cfg,
		now:     time.Now,
	}
}

// Holder returns the holder for (sid, role). It panics on a role without a
// configured client, which is a wiring bug.
func (r *Registry) Holder(sid string, role Role) *Holder {
	now := r.now()
	key := holderKey{sid: sid, role: role}

	r.mu.Lock()
	h, ok := r.holders[key]
	if !ok {
		client, found := r.cfg.Clients[role]
		if !found {
			r.mu.Unlock()
			panic("session: no api client for role " + string(role))
		}
		h = &Holder{
			sid:      sid,
			role:     role,
			tokens:   r.cfg.Tokens,
			tokenTTL: r.cfg.TokenTTL,
			api:      client,
			profiles: r.cfg.Profiles,
			log:      r.cfg.Logger.WithField("role", string(role)),
		}
		r.holders[key] = h
	}
	r.mu.Unlock()

	h.touch(now)
	return h
}

// Sweep drops idle holders and returns how many were removed.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, h := range r.holders {
		if h.State() == StateResolving {
			continue
		}
		if h.idleSince(now) > r.cfg.IdleTTL {
			delete(r.holders, key)
			removed++
		}
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.holders)
}
