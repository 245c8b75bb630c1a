// Package server assembles the gateway: one API client per realm, the session
// registry, the social and tracking layers and their routes.
package server

import (
	"time"

	"fitgram/internal/apiclient"
	"fitgram/internal/auth"
	"fitgram/internal/config"
	"fitgram/internal/db"
	"fitgram/internal/guard"
	"fitgram/internal/observability"
	"fitgram/internal/profile"
	"fitgram/internal/session"
	"fitgram/internal/social"
	"fitgram/internal/storage"
	"fitgram/internal/stream"
	"fitgram/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	userLoginRoute  = "/auth/login"
	adminLoginRoute = "/admin/login"
	sweepInterval   = 5 * time.Minute
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Registry *session.Registry
	Social   *social.Service
	Metrics  *observability.Metrics

	log  *logrus.Logger
	stop chan struct{}
}

func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client, log *logrus.Logger) *Server {
	if log == nil {
		log = observability.NewLogger(cfg.LogLevel)
	}
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	metrics := observability.NewMetrics()
	clients := map[session.Role]*apiclient.Client{
		session.RoleUser:  newClient(cfg, apiclient.RealmUser, userLoginRoute, log, metrics),
		session.RoleAdmin: newClient(cfg, apiclient.RealmAdmin, adminLoginRoute, log, metrics),
	}

	// A nil pool must stay a nil interface or the store reports itself enabled.
	var q db.Querier
	if pg != nil {
		q = pg
	}
	profiles := profile.NewStore(q)

	var tokens session.TokenStore = session.NewMemoryTokenStore()
	var views social.ViewStore = social.NewMemoryViewStore(cfg.ViewTTL)
	if redisClient != nil {
		tokens = session.NewRedisTokenStore(redisClient)
		views = social.NewRedisViewStore(redisClient, cfg.ViewTTL)
	}

	hub := stream.NewHub(redisClient, log)
	s := &Server{
		App:   app,
		Cfg:   cfg,
		DB:    pg,
		Redis: redisClient,
		Registry: session.NewRegistry(session.RegistryConfig{
			Tokens:   tokens,
			Clients:  clients,
			Profiles: profiles,
			TokenTTL: cfg.SessionTTL,
			Logger:   log,
		}),
		Stream:  hub,
		Social:  social.NewService(social.Config{Views: views, Events: hub, Logger: log}),
		Metrics: metrics,
		log:     log,
		stop:    make(chan struct{}),
	}

	registerRoutes(s, profiles)
	go s.sweep(sweepInterval)
	return s
}

func newClient(cfg config.Config, realm apiclient.Realm, loginRoute string, log *logrus.Logger, m *observability.Metrics) *apiclient.Client {
	return apiclient.New(apiclient.Config{
		BaseURL:    cfg.APIBaseURL,
		Realm:      realm,
		LoginRoute: loginRoute,
		Timeout:    cfg.RequestTimeout,
		Logger:     log,
		Metrics:    m,
	})
}

func registerRoutes(s *Server, profiles *profile.Store) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{})))

	timeout := s.Cfg.RequestTimeout
	auth.RegisterRoutes(s.App.Group("/auth"), auth.Routes{Registry: s.Registry, Role: session.RoleUser, CookieSecure: s.Cfg.CookieSecure, Timeout: timeout})
	auth.RegisterRoutes(s.App.Group("/admin"), auth.Routes{Registry: s.Registry, Role: session.RoleAdmin, CookieSecure: s.Cfg.CookieSecure, Timeout: timeout})

	requireUser := guard.Require(guard.Config{Registry: s.Registry, Role: session.RoleUser, CookieSecure: s.Cfg.CookieSecure})
	appGroup := s.App.Group("/app")
	social.RegisterRoutes(appGroup, s.Social, requireUser, timeout)
	tracking.RegisterRoutes(appGroup, requireUser, timeout)
	storage.RegisterRoutes(appGroup, requireUser, timeout)
	auth.RegisterProfileRoutes(appGroup, profiles, requireUser, s.log)
	stream.RegisterRoutes(appGroup, s.Stream, requireUser)
}

func (s *Server) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.Registry.Sweep(); n > 0 {
				s.log.WithField("holders", n).Debug("dropped idle sessions")
			}
		}
	}
}

// Close stops background work. The caller owns the pool and Redis client.
func (s *Server) Close() {
	select {
	case <-s.stop:
		return
	default:
		close(s.stop)
	}
	s.Stream.Close()
}
