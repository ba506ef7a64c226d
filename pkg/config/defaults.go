package config

const (
	defaultGraphProvider = "sqlite"
	defaultCacheProvider = "inmemory"
	defaultAPIListen     = ":8080"

	defaultCacheTTLSeconds          = 1800
	defaultCacheReasoningTTLSeconds = 900

	defaultWorkingMemorySize = 7

	defaultFreshHours         = 24
	defaultRetentionHours     = 720
	defaultDecayFactor        = 0.95
	defaultIntervalMinutes    = 60
	defaultWorkers            = 3
	defaultEventsProvider     = "nop"
	defaultEventsKafkaTopic   = "brainmem.events"
	defaultEventsKafkaBrokers = ""
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Graph: GraphConfig{
			Provider: defaultGraphProvider,
		},
		Cache: CacheConfig{
			Provider:            defaultCacheProvider,
			TTLSeconds:          defaultCacheTTLSeconds,
			ReasoningTTLSeconds: defaultCacheReasoningTTLSeconds,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Retrieval: RetrievalConfig{
			WorkingMemorySize: defaultWorkingMemorySize,
		},
		Consolidation: ConsolidationConfig{
			FreshHours:      defaultFreshHours,
			RetentionHours:  defaultRetentionHours,
			DecayFactor:     defaultDecayFactor,
			IntervalMinutes: defaultIntervalMinutes,
			Workers:         defaultWorkers,
		},
		Events: EventsConfig{
			Provider:     defaultEventsProvider,
			KafkaBrokers: defaultEventsKafkaBrokers,
			KafkaTopic:   defaultEventsKafkaTopic,
		},
	}
}
