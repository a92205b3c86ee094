package resolver

import (
	"errors"
	"time"
)

const (
	defaultInitialCacheCapacity   = 10
	defaultBatchRequestCount      = 16
	defaultProtectiveQueryTimeout = 60 * time.Second
	defaultGracefulStopWait       = 30 * time.Second
	defaultRequestQueueSize       = 1024
	defaultResponseQueueSize      = 1024
)

// RuntimeConfig holds the knobs of the runtime loop. It is handed to drivers
// on every query.
type RuntimeConfig struct {
	// InitialCacheCapacity is the size hint of the cache, doing and trash maps.
	InitialCacheCapacity int
	// BatchRequestCount is the max number of client requests handled in one
	// loop iteration.
	BatchRequestCount int
	// ProtectiveQueryTimeout bounds a single driver query.
	ProtectiveQueryTimeout time.Duration
	// GracefulStopWait is how long a replaced driver is kept before it is closed.
	GracefulStopWait time.Duration
	// RequestQueueSize and ResponseQueueSize size the request and response channels.
	RequestQueueSize  int
	ResponseQueueSize int
}

func (c *RuntimeConfig) Init() {
	if c.InitialCacheCapacity <= 0 {
		c.InitialCacheCapacity = defaultInitialCacheCapacity
	}
	if c.BatchRequestCount <= 0 {
		c.BatchRequestCount = defaultBatchRequestCount
	}
	if c.ProtectiveQueryTimeout <= 0 {
		c.ProtectiveQueryTimeout = defaultProtectiveQueryTimeout
	}
	if c.GracefulStopWait <= 0 {
		c.GracefulStopWait = defaultGracefulStopWait
	}
	if c.RequestQueueSize <= 0 {
		c.RequestQueueSize = defaultRequestQueueSize
	}
	if c.ResponseQueueSize <= 0 {
		c.ResponseQueueSize = defaultResponseQueueSize
	}
}

type Config struct {
	Runtime RuntimeConfig
	Driver  DriverConfig
}

var errNilDriverConfig = errors.New("nil driver config")

func (c *Config) validate() error {
	if c.Driver == nil {
		return errNilDriverConfig
	}
	c.Runtime.Init()
	return nil
}
