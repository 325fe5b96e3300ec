package api

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"

	"apsplan/internal/auth"
	"apsplan/internal/cache"
	"apsplan/internal/catalog"
	"apsplan/internal/config"
	"apsplan/internal/opt"
	"apsplan/internal/store"
	"apsplan/internal/webhooks"
)

type Server struct {
	Store   store.Store
	Pub     *webhooks.Publisher
	Auth    *auth.Verifier
	Broker  EventBroker
	Catalog *catalog.Catalog
	Cache   cache.Cache
	Config  config.Config

	validate *validator.Validate
}

// NewServer wires the service from cfg. Without DATABASE_URL runs are kept in
// memory; without REDIS_URL events and cached results stay in-process.
func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Migrate {
			if err := sp.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		s = sp
	}
	var broker EventBroker = NewBroker()
	var c cache.Cache = cache.NewMemory(cfg.CacheTTL())
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			log.Printf("redis broker disabled: %v", err)
		}
		if rc, err := cache.NewRedis(cfg.RedisURL, cfg.CacheTTL()); err == nil {
			c = rc
		} else {
			log.Printf("redis cache disabled: %v", err)
		}
	}
	return &Server{
		Store:    s,
		Pub:      webhooks.NewPublisher(s),
		Auth:     auth.NewVerifierFromEnv(),
		Broker:   broker,
		Catalog:  cat,
		Cache:    c,
		Config:   cfg,
		validate: newValidator(),
	}, nil
}

// schedulerConfig layers the tenant overlay on the service defaults.
func (s *Server) schedulerConfig(ctx context.Context, tenant string) (opt.Config, error) {
	base := s.Config.SchedulerBase(s.Catalog)
	tc, err := s.Store.GetSchedulerConfig(ctx, tenant)
	if err != nil {
		return base, err
	}
	return tc.Apply(base), nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Config.WebhookMax)
}
