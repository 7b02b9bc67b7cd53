package main

import (
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/cache"
	"github.com/depotproject/depot/cache/fs"
	"github.com/depotproject/depot/cache/s3"
	"github.com/depotproject/depot/catalog"
	"github.com/depotproject/depot/library"
	"github.com/depotproject/depot/metacache"
	"github.com/depotproject/depot/metacache/memcached"
)

// Config is the yaml file a depot command reads its world from.
type Config struct {
	Catalog struct {
		Driver     string `yaml:"driver"`
		Datasource string `yaml:"datasource"`
	} `yaml:"catalog"`

	Cache struct {
		Dir string `yaml:"dir"`
	} `yaml:"cache"`

	Remotes []RemoteConfig `yaml:"remotes"`

	Memcached *MemcachedConfig `yaml:"memcached"`

	Dependencies map[string]string `yaml:"dependencies"`
}

// RemoteConfig describes one remote tier. Kind is "fs" or "s3".
type RemoteConfig struct {
	Kind     string `yaml:"kind"`
	Priority int    `yaml:"priority"`

	// fs
	Dir string `yaml:"dir"`

	// s3
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`

	// Requests per second; 0 means unthrottled.
	RateLimit float64 `yaml:"rate_limit"`
}

// MemcachedConfig configures the metadata cache. Either a static
// server list or an SRV-discovered host/service.
type MemcachedConfig struct {
	Servers        []string      `yaml:"servers"`
	Host           string        `yaml:"host"`
	Service        string        `yaml:"service"`
	Timeout        time.Duration `yaml:"timeout"`
	UpdateInterval time.Duration `yaml:"update_interval"`
	Expiry         time.Duration `yaml:"expiry"`
}

func loadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return nil, depot.NewError(depot.Configuration, err, "parsing config %s", path)
	}
	if cfg.Catalog.Driver == "" || cfg.Catalog.Datasource == "" {
		return nil, depot.ConfigurationError("config %s needs catalog.driver and catalog.datasource", path)
	}
	if cfg.Cache.Dir == "" {
		return nil, depot.ConfigurationError("config %s needs cache.dir", path)
	}
	return &cfg, nil
}

// build assembles the Library the config describes: catalog by driver,
// local fs tier, remotes wrapped with rate limiting and metrics, and
// the memcached metacache when configured.
func (c *Config) build(logger log.Logger, metrics cache.Metrics) (*library.Library, error) {
	cat, err := catalog.NewSQL(c.Catalog.Driver, c.Catalog.Datasource, logger)
	if err != nil {
		return nil, err
	}

	local, err := fs.New(c.Cache.Dir, 0)
	if err != nil {
		cat.Close()
		return nil, err
	}

	var remotes []cache.Tier
	for _, rc := range c.Remotes {
		tier, err := rc.build()
		if err != nil {
			cat.Close()
			return nil, err
		}
		if rc.RateLimit > 0 {
			tier = cache.RateLimitTier(tier, rc.RateLimit)
		}
		remotes = append(remotes, cache.InstrumentTier(tier, metrics))
	}

	stack, err := cache.NewStack(local, remotes, logger)
	if err != nil {
		cat.Close()
		return nil, err
	}

	var meta metacache.Client
	if mc := c.Memcached; mc != nil {
		mcfg := memcached.Config{
			Host:           mc.Host,
			Service:        mc.Service,
			Timeout:        mc.Timeout,
			UpdateInterval: mc.UpdateInterval,
			Expiry:         mc.Expiry,
			Logger:         logger,
		}
		if mcfg.UpdateInterval == 0 {
			mcfg.UpdateInterval = time.Minute
		}
		if len(mc.Servers) > 0 {
			meta = memcached.NewFixedServers(mcfg, mc.Servers...)
		} else {
			meta = memcached.New(mcfg)
		}
	}

	return library.New(library.Config{
		Catalog:      cat,
		Stack:        stack,
		Meta:         meta,
		Dependencies: c.Dependencies,
		Logger:       logger,
	})
}

func (rc RemoteConfig) build() (cache.Tier, error) {
	switch rc.Kind {
	case "fs":
		if rc.Dir == "" {
			return nil, depot.ConfigurationError("fs remote needs a dir")
		}
		return fs.New(rc.Dir, rc.Priority)
	case "s3":
		return s3.New(s3.Config{
			Bucket:   rc.Bucket,
			Prefix:   rc.Prefix,
			Region:   rc.Region,
			Priority: rc.Priority,
		})
	default:
		return nil, depot.ConfigurationError("unknown remote kind %q", rc.Kind)
	}
}
