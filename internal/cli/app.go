package cli

import (
	"context"
	"fmt"

	"github.com/gogotex/docsync/internal/config"
	"github.com/gogotex/docsync/internal/database"
	"github.com/gogotex/docsync/internal/events"
	"github.com/gogotex/docsync/internal/odm"
	"github.com/gogotex/docsync/internal/people"
	"github.com/gogotex/docsync/internal/store"
	"github.com/gogotex/docsync/internal/store/memstore"
	"github.com/gogotex/docsync/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// app is the runtime shared by the commands.
type app struct {
	cfg      *config.Config
	conn     *odm.ConnectionManager
	registry *odm.Registry
	redis    *redis.Client
	events   *events.Publisher
}

// newApp wires the store, the optional Redis client and the model
// registry. Nothing connects to the store until first use.
func newApp(ctx context.Context, cfg *config.Config) *app {
	a := &app{cfg: cfg, registry: odm.NewRegistry()}

	var dial store.DialFunc
	if cfg.MongoDB.Memory {
		logger.Warnf("using the in-memory store; data is lost on exit")
		dial = memstore.New().Dialer()
	} else {
		dial = database.Dialer(database.MongoOptions{
			URI:     cfg.MongoDB.URI,
			AppName: cfg.MongoDB.AppName,
			Timeout: cfg.MongoDB.Timeout,
		})
	}
	a.conn = odm.NewConnectionManager(dial, cfg.MongoDB.Database)

	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis %s unavailable, continuing without it: %v", cfg.Redis.Addr(), err)
			_ = client.Close()
		} else {
			a.redis = client
		}
	}

	var opts []odm.CollectionOption
	if a.redis != nil && cfg.Redis.EventsChannel != "" {
		a.events = events.NewPublisher(a.redis, cfg.Redis.EventsChannel, events.DefaultKeep)
		opts = append(opts, odm.WithObserver(a.events))
	}
	people.Register(a.registry, opts...)
	return a
}

func (a *app) proxy(name string) (odm.Proxy, error) {
	return a.registry.Proxy(name, a.conn)
}

func (a *app) people() (*people.Collection, error) {
	return odm.Lookup[people.Person](a.registry, people.ModelName, a.conn)
}

func (a *app) ensureIndexes(ctx context.Context) error {
	for _, name := range a.registry.Names() {
		p, err := a.proxy(name)
		if err != nil {
			return err
		}
		if err := p.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("indexes for %s: %w", name, err)
		}
	}
	return nil
}

func (a *app) close(ctx context.Context) {
	if err := a.conn.Close(ctx); err != nil {
		logger.Warnf("closing store: %v", err)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
