package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent brainmem configuration stored as
// config.toml in the .brainmem/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version       int                 `toml:"version"`
	Graph         GraphConfig         `toml:"graph"`
	Cache         CacheConfig         `toml:"cache"`
	API           APIConfig           `toml:"api"`
	Retrieval     RetrievalConfig     `toml:"retrieval"`
	Consolidation ConsolidationConfig `toml:"consolidation"`
	Events        EventsConfig        `toml:"events"`
	Tools         ToolsConfig         `toml:"tools"`
}

// GraphConfig holds graph store settings shared by the server and the
// consolidation command.
type GraphConfig struct {
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresURL string `toml:"postgres_url,omitempty"`
}

// CacheConfig holds retrieval cache settings.
type CacheConfig struct {
	Provider            string `toml:"provider,omitempty"`
	RedisURL            string `toml:"redis_url,omitempty"`
	TTLSeconds          uint   `toml:"ttl_seconds,omitempty"`
	ReasoningTTLSeconds uint   `toml:"reasoning_ttl_seconds,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// RetrievalConfig holds retrieval engine settings.
type RetrievalConfig struct {
	WorkingMemorySize uint `toml:"working_memory_size,omitempty"`
}

// ConsolidationConfig holds consolidation process settings.
type ConsolidationConfig struct {
	FreshHours      uint    `toml:"fresh_hours,omitempty"`
	RetentionHours  uint    `toml:"retention_hours,omitempty"`
	DecayFactor     float64 `toml:"decay_factor,omitempty"`
	IntervalMinutes uint    `toml:"interval_minutes,omitempty"`
	Workers         uint    `toml:"workers,omitempty"`
}

// EventsConfig holds event stream settings. KafkaBrokers is a comma-separated
// broker list.
type EventsConfig struct {
	Provider     string `toml:"provider,omitempty"`
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// ToolsConfig holds external tool execution settings. An empty webhook URL
// disables the tool endpoint.
type ToolsConfig struct {
	WebhookURL string `toml:"webhook_url,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(get func(c *Config) string, set func(c *Config, v string)) configKeyInfo {
	return configKeyInfo{
		get: get,
		set: func(c *Config, v string) error { set(c, v); return nil },
	}
}

func uintKey(name string, get func(c *Config) uint, set func(c *Config, n uint)) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if get(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(get(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			set(c, uint(n))
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"graph.provider": stringKey(
		func(c *Config) string { return c.Graph.Provider },
		func(c *Config, v string) { c.Graph.Provider = v },
	),
	"graph.sqlite_path": stringKey(
		func(c *Config) string { return c.Graph.SQLitePath },
		func(c *Config, v string) { c.Graph.SQLitePath = v },
	),
	"graph.postgres_url": stringKey(
		func(c *Config) string { return c.Graph.PostgresURL },
		func(c *Config, v string) { c.Graph.PostgresURL = v },
	),
	"cache.provider": stringKey(
		func(c *Config) string { return c.Cache.Provider },
		func(c *Config, v string) { c.Cache.Provider = v },
	),
	"cache.redis_url": stringKey(
		func(c *Config) string { return c.Cache.RedisURL },
		func(c *Config, v string) { c.Cache.RedisURL = v },
	),
	"cache.ttl_seconds": uintKey("cache.ttl_seconds",
		func(c *Config) uint { return c.Cache.TTLSeconds },
		func(c *Config, n uint) { c.Cache.TTLSeconds = n },
	),
	"cache.reasoning_ttl_seconds": uintKey("cache.reasoning_ttl_seconds",
		func(c *Config) uint { return c.Cache.ReasoningTTLSeconds },
		func(c *Config, n uint) { c.Cache.ReasoningTTLSeconds = n },
	),
	"api.listen": stringKey(
		func(c *Config) string { return c.API.Listen },
		func(c *Config, v string) { c.API.Listen = v },
	),
	"retrieval.working_memory_size": uintKey("retrieval.working_memory_size",
		func(c *Config) uint { return c.Retrieval.WorkingMemorySize },
		func(c *Config, n uint) { c.Retrieval.WorkingMemorySize = n },
	),
	"consolidation.fresh_hours": uintKey("consolidation.fresh_hours",
		func(c *Config) uint { return c.Consolidation.FreshHours },
		func(c *Config, n uint) { c.Consolidation.FreshHours = n },
	),
	"consolidation.retention_hours": uintKey("consolidation.retention_hours",
		func(c *Config) uint { return c.Consolidation.RetentionHours },
		func(c *Config, n uint) { c.Consolidation.RetentionHours = n },
	),
	"consolidation.decay_factor": {
		get: func(c *Config) string {
			if c.Consolidation.DecayFactor == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Consolidation.DecayFactor, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for consolidation.decay_factor: %w", err)
			}
			if f <= 0 || f >= 1 {
				return fmt.Errorf("consolidation.decay_factor must be in (0, 1), got %v", f)
			}
			c.Consolidation.DecayFactor = f
			return nil
		},
	},
	"consolidation.interval_minutes": uintKey("consolidation.interval_minutes",
		func(c *Config) uint { return c.Consolidation.IntervalMinutes },
		func(c *Config, n uint) { c.Consolidation.IntervalMinutes = n },
	),
	"consolidation.workers": uintKey("consolidation.workers",
		func(c *Config) uint { return c.Consolidation.Workers },
		func(c *Config, n uint) { c.Consolidation.Workers = n },
	),
	"events.provider": stringKey(
		func(c *Config) string { return c.Events.Provider },
		func(c *Config, v string) { c.Events.Provider = v },
	),
	"events.kafka_brokers": stringKey(
		func(c *Config) string { return c.Events.KafkaBrokers },
		func(c *Config, v string) { c.Events.KafkaBrokers = v },
	),
	"events.kafka_topic": stringKey(
		func(c *Config) string { return c.Events.KafkaTopic },
		func(c *Config, v string) { c.Events.KafkaTopic = v },
	),
	"tools.webhook_url": stringKey(
		func(c *Config) string { return c.Tools.WebhookURL },
		func(c *Config, v string) { c.Tools.WebhookURL = v },
	),
}
