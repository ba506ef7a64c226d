package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/omnii-ai/brainmem/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the BRAINMEM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (BRAINMEM_API_LISTEN, BRAINMEM_CACHE_REDIS_URL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: BRAINMEM_GRAPH_PROVIDER, BRAINMEM_API_LISTEN, etc.
	v.SetEnvPrefix("BRAINMEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Graph
	v.SetDefault("graph.provider", d.Graph.Provider)
	v.SetDefault("graph.sqlite_path", d.Graph.SQLitePath)
	v.SetDefault("graph.postgres_url", d.Graph.PostgresURL)

	// Cache
	v.SetDefault("cache.provider", d.Cache.Provider)
	v.SetDefault("cache.redis_url", d.Cache.RedisURL)
	v.SetDefault("cache.ttl_seconds", d.Cache.TTLSeconds)
	v.SetDefault("cache.reasoning_ttl_seconds", d.Cache.ReasoningTTLSeconds)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Retrieval
	v.SetDefault("retrieval.working_memory_size", d.Retrieval.WorkingMemorySize)

	// Consolidation
	v.SetDefault("consolidation.fresh_hours", d.Consolidation.FreshHours)
	v.SetDefault("consolidation.retention_hours", d.Consolidation.RetentionHours)
	v.SetDefault("consolidation.decay_factor", d.Consolidation.DecayFactor)
	v.SetDefault("consolidation.interval_minutes", d.Consolidation.IntervalMinutes)
	v.SetDefault("consolidation.workers", d.Consolidation.Workers)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.kafka_brokers", d.Events.KafkaBrokers)
	v.SetDefault("events.kafka_topic", d.Events.KafkaTopic)

	// Tools
	v.SetDefault("tools.webhook_url", d.Tools.WebhookURL)
}
