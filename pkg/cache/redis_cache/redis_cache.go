/*
 * Copyright (C) 2020-2022, IrineSistiana
 *
 * This file is part of mosdns.
 *
 * mosdns is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * mosdns is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package redis_cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang/snappy"
	"go.uber.org/zap"

	"github.com/pmkol/resolver-x/pkg/pool"
)

var nopLogger = zap.NewNop()

type RedisCacheOpts struct {
	// Client cannot be nil.
	Client redis.Cmdable

	// ClientCloser closes Client when RedisCache.Close is called.
	// Optional.
	ClientCloser io.Closer

	// ClientTimeout specifies the timeout for read and write operations.
	// Default is 1s.
	ClientTimeout time.Duration

	// KeyPrefix is prepended to every key.
	KeyPrefix string

	// Logger is the *zap.Logger for this RedisCache.
	// A nil Logger will disable logging.
	Logger *zap.Logger
}

func (opts *RedisCacheOpts) Init() error {
	if opts.Client == nil {
		return errors.New("nil client")
	}
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	return nil
}

// RedisCache is a shared cache of opaque values with an absolute expiration.
// After a client error it stops using redis and pings it with a back-off
// until it answers again or the cache is closed.
type RedisCache struct {
	opts     RedisCacheOpts
	disabled atomic.Bool

	closeOnce   sync.Once
	closeNotify chan struct{}
}

func NewRedisCache(opts RedisCacheOpts) (*RedisCache, error) {
	if err := opts.Init(); err != nil {
		return nil, err
	}
	return &RedisCache{
		opts:        opts,
		closeNotify: make(chan struct{}),
	}, nil
}

const (
	minPingBackoff = 100 * time.Millisecond
	maxPingBackoff = 30 * time.Second
)

func (r *RedisCache) disableClient() {
	if !r.disabled.CompareAndSwap(false, true) {
		return
	}
	r.opts.Logger.Warn("redis temporarily disabled")
	go r.pingUntilUp()
}

func (r *RedisCache) pingUntilUp() {
	backoff := minPingBackoff
	timer := pool.GetTimer(backoff)
	defer pool.ReleaseTimer(timer)
	for {
		select {
		case <-timer.C:
		case <-r.closeNotify:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		err := r.opts.Client.Ping(ctx).Err()
		cancel()
		if err == nil {
			r.disabled.Store(false)
			r.opts.Logger.Info("redis enabled again")
			return
		}

		backoff += time.Duration(rand.Int64N(int64(time.Second))) + time.Second
		backoff = min(backoff, maxPingBackoff)
		r.opts.Logger.Warn("redis ping failed", zap.Error(err), zap.Duration("next_ping", backoff))
		timer.Reset(backoff)
	}
}

func (r *RedisCache) key(k string) string {
	return r.opts.KeyPrefix + k
}

// Get returns the value of key. A miss, an error or a disabled client all
// return a nil v.
func (r *RedisCache) Get(ctx context.Context, key string) (v []byte, storedTime, expirationTime time.Time) {
	if r.disabled.Load() {
		return nil, time.Time{}, time.Time{}
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.ClientTimeout)
	defer cancel()
	b, err := r.opts.Client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.opts.Logger.Warn("redis get", zap.Error(err))
			r.disableClient()
		}
		return nil, time.Time{}, time.Time{}
	}

	st, et, m, err := unpackRedisValue(b)
	if err != nil {
		r.opts.Logger.Warn("redis data unpack error", zap.String("key", key), zap.Error(err))
		return nil, time.Time{}, time.Time{}
	}
	return m, st, et
}

// Store stores v until expirationTime. Already expired values are skipped.
func (r *RedisCache) Store(ctx context.Context, key string, v []byte, storedTime, expirationTime time.Time) {
	if r.disabled.Load() {
		return
	}

	ttl := time.Until(expirationTime)
	if ttl <= 0 {
		return
	}

	data := packRedisData(storedTime, expirationTime, v)
	ctx, cancel := context.WithTimeout(ctx, r.opts.ClientTimeout)
	defer cancel()
	if err := r.opts.Client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		r.opts.Logger.Warn("redis set", zap.Error(err))
		r.disableClient()
	}
}

// Close stops the ping loop and closes the redis client.
func (r *RedisCache) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closeNotify)
		if f := r.opts.ClientCloser; f != nil {
			err = f.Close()
		}
	})
	return err
}

func (r *RedisCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()
	i, err := r.opts.Client.DBSize(ctx).Result()
	if err != nil {
		r.opts.Logger.Warn("redis dbsize", zap.Error(err))
		return 0
	}
	return int(i)
}

// packRedisData packs storedTime, expirationTime and the snappy compressed v.
func packRedisData(storedTime, expirationTime time.Time, v []byte) []byte {
	b := make([]byte, 16, 16+snappy.MaxEncodedLen(len(v)))
	binary.BigEndian.PutUint64(b[:8], uint64(storedTime.Unix()))
	binary.BigEndian.PutUint64(b[8:16], uint64(expirationTime.Unix()))
	enc := snappy.Encode(b[16:cap(b)], v)
	return b[:16+len(enc)]
}

func unpackRedisValue(b []byte) (storedTime, expirationTime time.Time, v []byte, err error) {
	if len(b) < 16 {
		return time.Time{}, time.Time{}, nil, errors.New("b is too short")
	}
	storedTime = time.Unix(int64(binary.BigEndian.Uint64(b[:8])), 0)
	expirationTime = time.Unix(int64(binary.BigEndian.Uint64(b[8:16])), 0)
	v, err = snappy.Decode(nil, b[16:])
	if err != nil {
		return time.Time{}, time.Time{}, nil, fmt.Errorf("invalid snappy block: %w", err)
	}
	return storedTime, expirationTime, v, nil
}
