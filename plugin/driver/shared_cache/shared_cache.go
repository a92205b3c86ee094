package shared_cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/pmkol/resolver-x/coremain"
	"github.com/pmkol/resolver-x/pkg/cache"
	"github.com/pmkol/resolver-x/pkg/cache/redis_cache"
	"github.com/pmkol/resolver-x/pkg/resolver"
)

const PluginType = "redis_cache"

func init() {
	coremain.RegNewDriverFunc(PluginType, Init, func() any { return new(Args) })
}

type Args struct {
	// URL of the redis server, e.g. redis://127.0.0.1:6379/0.
	URL       string        `yaml:"url"`
	KeyPrefix string        `yaml:"key_prefix"`
	Timeout   time.Duration `yaml:"timeout"` // default 1s

	// Inner answers the queries redis has no valid record for.
	Inner coremain.DriverSpec `yaml:"inner"`
}

func Init(bd *coremain.BD, args any) (resolver.DriverConfig, error) {
	a := args.(*Args)
	if len(a.Inner.Type) == 0 {
		return nil, errors.New("no inner driver is configured")
	}
	if a.Inner.Type == PluginType {
		return nil, errors.New("inner driver cannot be another redis_cache")
	}
	opt, err := redis.ParseURL(a.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url, %w", err)
	}
	inner, err := coremain.NewDriverConfig(bd.Resolver(), &a.Inner, bd.L())
	if err != nil {
		return nil, fmt.Errorf("failed to init inner driver, %w", err)
	}

	logger := bd.L()
	newBackend := func() (cache.Backend, error) {
		client := redis.NewClient(opt)
		return redis_cache.NewRedisCache(redis_cache.RedisCacheOpts{
			Client:        client,
			ClientCloser:  client,
			ClientTimeout: a.Timeout,
			KeyPrefix:     a.KeyPrefix,
			Logger:        logger,
		})
	}
	return NewConfig(inner, newBackend, logger), nil
}

// Config spawns an inner driver and a fresh backend for every driver.
type Config struct {
	inner      resolver.DriverConfig
	newBackend func() (cache.Backend, error)
	logger     *zap.Logger
}

func NewConfig(inner resolver.DriverConfig, newBackend func() (cache.Backend, error), logger *zap.Logger) *Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Config{inner: inner, newBackend: newBackend, logger: logger}
}

func (c *Config) SpawnDriver() (resolver.Driver, error) {
	inner, err := c.inner.SpawnDriver()
	if err != nil {
		return nil, err
	}
	backend, err := c.newBackend()
	if err != nil {
		if closer, ok := inner.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, err
	}
	return &driver{inner: inner, backend: backend, logger: c.logger}, nil
}

type driver struct {
	inner   resolver.Driver
	backend cache.Backend
	logger  *zap.Logger
}

func cacheKey(domain string, family resolver.Family) string {
	return family.String() + ":" + domain
}

func (d *driver) Query(domain string, family resolver.Family, cfg *resolver.RuntimeConfig, rsp *resolver.Responder) {
	go func() {
		key := cacheKey(domain, family)
		if r := d.get(key, domain); r != nil {
			rsp.Send(r)
			return
		}
		d.inner.Query(domain, family, cfg, resolver.NewResponder(family, func(r *resolver.Record) bool {
			ok := rsp.Send(r)
			d.store(key, r)
			return ok
		}))
	}()
}

// get returns a record from redis that has not expired yet.
func (d *driver) get(key, domain string) *resolver.Record {
	v, _, expire := d.backend.Get(context.Background(), key)
	if v == nil || !expire.After(time.Now()) {
		return nil
	}
	r, err := decodeRecord(domain, v, expire)
	if err != nil {
		d.logger.Warn("invalid shared record", zap.String("key", key), zap.Error(err))
		return nil
	}
	return r
}

func (d *driver) store(key string, r *resolver.Record) {
	if !r.IsAcceptable() {
		return
	}
	expire, ok := r.Expire()
	if !ok {
		return
	}
	d.backend.Store(context.Background(), key, encodeRecord(r), r.Created(), expire)
}

func (d *driver) Close() error {
	err := d.backend.Close()
	if closer, ok := d.inner.(io.Closer); ok {
		err = errors.Join(err, closer.Close())
	}
	return err
}
