// Package app opens the infrastructure shared by the API server and the
// realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/bilgisen/anitory/internal/auth"
	"github.com/bilgisen/anitory/internal/cache"
	"github.com/bilgisen/anitory/internal/config"
	"github.com/bilgisen/anitory/internal/docstore"
	"github.com/bilgisen/anitory/internal/notify"
	"github.com/bilgisen/anitory/internal/storage"
	"github.com/rs/zerolog"
)

// Core is the infrastructure both binaries run on.
type Core struct {
	Config   *config.Config
	Store    docstore.Store
	Cache    cache.RedisInterface
	Notifier notify.Notifier
	Storage  *storage.Service
	Sessions *auth.Sessions

	closers []func() error
	log     zerolog.Logger
}

// Open connects the document store, Redis and the notifier. Redis is
// optional: without it drafts and notifications stay inside this process.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Core, error) {
	c := &Core{Config: cfg, log: log}

	store, err := c.openStore(ctx)
	if err != nil {
		return nil, err
	}
	c.Store = store

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, using in-process cache")
		c.Cache = cache.NewMockRedisClient()
	} else {
		c.Cache = redisClient
	}
	c.closers = append(c.closers, c.Cache.Close)

	notifier, err := notify.NewRedisNotifier(ctx, c.Cache, cfg.RealtimeChannel, log.With().Str("component", "notify").Logger())
	if err != nil {
		log.Warn().Err(err).Msg("Notification channel unavailable, using in-process hub")
		c.Notifier = notify.NewHub(log)
	} else {
		c.Notifier = notifier
		// Stop the relay before the client it reads from.
		c.closers = append(c.closers, notifier.Close)
	}

	c.Storage = storage.NewService(store, c.Notifier, c.Cache,
		log.With().Str("component", "storage").Logger(),
		storage.WithDraftTTL(cfg.DraftTTL),
	)
	c.Sessions = auth.NewSessions(cfg.JWTSecret, cfg.SessionTTL)
	return c, nil
}

func (c *Core) openStore(ctx context.Context) (docstore.Store, error) {
	switch c.Config.StoreDriver {
	case config.StoreMongo:
		m, err := docstore.NewMongo(ctx, c.Config.MongoURI, c.Config.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := m.EnsureIndexes(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Failed to ensure indexes")
		}
		c.closers = append(c.closers, func() error { return m.Close(context.Background()) })
		c.log.Info().Str("database", c.Config.MongoDatabase).Msg("Connected to MongoDB")
		return m, nil
	case config.StoreFile:
		f, err := docstore.NewFileStore(c.Config.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		c.log.Info().Str("path", c.Config.StoragePath).Msg("Using file store")
		return f, nil
	case config.StoreMemory:
		c.log.Warn().Msg("Using in-memory store, data is lost on restart")
		return docstore.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", c.Config.StoreDriver)
}

// Close releases everything Open acquired, in reverse order.
func (c *Core) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
