package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jonwraymond/graphcache/cache"
	"github.com/jonwraymond/graphcache/fetch"
	"github.com/jonwraymond/graphcache/observe"
)

// Config configures a Client. The runtime-only fields are ignored by
// LoadConfig.
type Config struct {
	// Production suppresses logging of fetch and mutate failures. They
	// still reach OnError.
	Production bool `toml:"production"`

	// Retention bounds inactive query slots.
	Retention cache.Policy `toml:"retention"`

	// Fetch applies retries and a concurrency limit to fetch and mutate
	// functions.
	Fetch fetch.Policy `toml:"fetch"`

	// Observe configures telemetry when Observer is nil.
	Observe observe.Config `toml:"observe"`

	// HealthTimeout bounds a health check run.
	HealthTimeout time.Duration `toml:"health_timeout"`

	// UnhealthyAfter is the number of consecutive failed fetches after which
	// the fetch health check reports unhealthy.
	UnhealthyAfter int `toml:"unhealthy_after"`

	// Scheduler runs fetches, mutations and hooks. If nil, a GoScheduler is
	// used.
	Scheduler fetch.Scheduler `toml:"-"`

	// Keyer derives cache keys. If nil, cache.DefaultKeyer is used.
	Keyer cache.Keyer `toml:"-"`

	// Observer supplies telemetry. If nil, one is built from Observe and
	// shut down by Close.
	Observer observe.Observer `toml:"-"`

	// Logger overrides the Observer's logger.
	Logger observe.Logger `toml:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Retention:      cache.DefaultPolicy(),
		Fetch:          fetch.DefaultPolicy(),
		Observe:        observe.DefaultConfig("graphcache"),
		HealthTimeout:  2 * time.Second,
		UnhealthyAfter: 5,
	}
}

// Validate reports an invalid configuration.
func (c *Config) Validate() error {
	if c.Retention.MaxInactive < 0 {
		return fmt.Errorf("client: retention max_inactive must be >= 0")
	}
	if err := c.Fetch.Validate(); err != nil {
		return err
	}
	if c.HealthTimeout < 0 {
		return fmt.Errorf("client: health_timeout must be >= 0")
	}
	if c.UnhealthyAfter < 0 {
		return fmt.Errorf("client: unhealthy_after must be >= 0")
	}
	if c.Observer == nil {
		return c.Observe.Validate()
	}
	return nil
}

// LoadConfig reads a TOML file over DefaultConfig. Unknown keys are an
// error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("client: load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("client: load config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
