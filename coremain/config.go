package coremain

import (
	"errors"
	"fmt"
	"time"

	"github.com/pmkol/resolver-x/mlog"
)

type Config struct {
	Log       mlog.LogConfig   `yaml:"log"`
	Include   []string         `yaml:"include"`
	Resolvers []ResolverConfig `yaml:"resolvers"`
	API       APIConfig        `yaml:"api"`
}

// ResolverConfig represents one named resolver.
type ResolverConfig struct {
	// Name, required and unique.
	Name string `yaml:"name"`

	InitialCacheCapacity   int           `yaml:"initial_cache_capacity"`   // default 10
	BatchRequestCount      int           `yaml:"batch_request_count"`      // default 16
	ProtectiveQueryTimeout time.Duration `yaml:"protective_query_timeout"` // default 60s
	GracefulStopWait       time.Duration `yaml:"graceful_stop_wait"`       // default 30s

	Driver DriverSpec `yaml:"driver"`
}

// DriverSpec selects a registered driver type.
type DriverSpec struct {
	// Type, required.
	Type string `yaml:"type"`

	// Args, might be required by some drivers.
	// The type of Args is depended on RegNewDriverFunc.
	// If it's a map[string]any, it will be converted by mapstructure.
	Args any `yaml:"args"`
}

type APIConfig struct {
	HTTP string `yaml:"http"`
}

func (c *Config) validate() error {
	if len(c.Resolvers) == 0 {
		return errors.New("no resolver is configured")
	}
	dup := make(map[string]struct{}, len(c.Resolvers))
	for i, rc := range c.Resolvers {
		if len(rc.Name) == 0 {
			return fmt.Errorf("resolver #%d has no name", i)
		}
		if _, ok := dup[rc.Name]; ok {
			return fmt.Errorf("duplicated resolver name %s", rc.Name)
		}
		dup[rc.Name] = struct{}{}
		if len(rc.Driver.Type) == 0 {
			return fmt.Errorf("resolver %s has no driver type", rc.Name)
		}
	}
	return nil
}
