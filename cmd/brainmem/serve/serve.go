// Package servecmder provides the serve command for running the memory API
// server with its background consolidation runner.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/omnii-ai/brainmem/api"
	"github.com/omnii-ai/brainmem/pkg/cache"
	cacheinmemory "github.com/omnii-ai/brainmem/pkg/cache/inmemory"
	cacheredis "github.com/omnii-ai/brainmem/pkg/cache/redis"
	"github.com/omnii-ai/brainmem/pkg/config"
	"github.com/omnii-ai/brainmem/pkg/consolidation"
	"github.com/omnii-ai/brainmem/pkg/dotdir"
	"github.com/omnii-ai/brainmem/pkg/eventstream"
	eventkafka "github.com/omnii-ai/brainmem/pkg/eventstream/kafka"
	eventnop "github.com/omnii-ai/brainmem/pkg/eventstream/nop"
	"github.com/omnii-ai/brainmem/pkg/extractor/heuristic"
	"github.com/omnii-ai/brainmem/pkg/graph"
	graphinmemory "github.com/omnii-ai/brainmem/pkg/graph/inmemory"
	graphpostgres "github.com/omnii-ai/brainmem/pkg/graph/postgres"
	graphsqlite "github.com/omnii-ai/brainmem/pkg/graph/sqlite"
	"github.com/omnii-ai/brainmem/pkg/ingest"
	"github.com/omnii-ai/brainmem/pkg/logger"
	"github.com/omnii-ai/brainmem/pkg/retrieval"
	"github.com/omnii-ai/brainmem/pkg/tools"
	"github.com/omnii-ai/brainmem/pkg/tools/webhook"
)

type ServeCommander struct {
	listen         string
	graphProvider  string
	sqlitePath     string
	postgresURL    string
	cacheProvider  string
	redisURL       string
	eventsProvider string
	kafkaBrokers   string
	kafkaTopic     string
	debug          bool
	logger         *zap.Logger
}

var serveFlags = config.FlagSet{
	config.FlagListen: {
		Name: "listen", Shorthand: "l", ViperKey: "api.listen",
		Description: "Address for the API server to listen on",
	},
	config.FlagGraphProvider: {
		Name: "graph-provider", ViperKey: "graph.provider",
		Description: "Graph store backend (inmemory, sqlite, postgres)",
	},
	config.FlagSQLite: {
		Name: "sqlite", Shorthand: "s", ViperKey: "graph.sqlite_path",
		Description: "Path to the sqlite database (default: .brainmem/brainmem.db)",
	},
	config.FlagPostgres: {
		Name: "postgres", ViperKey: "graph.postgres_url",
		Description: "Postgres connection URL",
	},
	config.FlagCacheProvider: {
		Name: "cache-provider", ViperKey: "cache.provider",
		Description: "Retrieval cache backend (inmemory, redis)",
	},
	config.FlagRedis: {
		Name: "redis", ViperKey: "cache.redis_url",
		Description: "Redis connection URL",
	},
	config.FlagEventsProvider: {
		Name: "events-provider", ViperKey: "events.provider",
		Description: "Event stream backend (nop, kafka)",
	},
	config.FlagKafkaBrokers: {
		Name: "kafka-brokers", ViperKey: "events.kafka_brokers",
		Description: "Comma-separated kafka broker list",
	},
	config.FlagKafkaTopic: {
		Name: "kafka-topic", ViperKey: "events.kafka_topic",
		Description: "Kafka topic for memory events",
	},
}

var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagGraphProvider,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagCacheProvider,
	config.FlagRedis,
	config.FlagEventsProvider,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

const serveLongDesc string = `Run the brainmem memory API server.

The server exposes ingestion, context retrieval, and memory-aware tool
execution over HTTP, and runs the consolidation process on a timer in the
background.`

const serveShortDesc string = "Run the brainmem API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)

			return cmder.run(v, configDir)
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagGraphProvider, &cmder.graphProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgres, &cmder.postgresURL)
	config.AddStringFlag(cmd, serveFlags, config.FlagCacheProvider, &cmder.cacheProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagRedis, &cmder.redisURL)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, serveFlags, config.FlagKafkaTopic, &cmder.kafkaTopic)

	return cmd
}

func (c *ServeCommander) run(v *viper.Viper, configDir string) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	driver, err := newGraphDriver(v, configDir, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	adapter, err := newCacheAdapter(v, c.logger)
	if err != nil {
		return err
	}
	defer adapter.Close()

	events, err := newEventPublisher(v, c.logger)
	if err != nil {
		return err
	}
	defer events.Close()

	analyzer := heuristic.NewAnalyzer()

	ingestor := ingest.NewService(driver, analyzer, adapter, events, c.logger)
	engine := retrieval.NewEngine(driver, adapter, c.logger)

	var enhancer *tools.Enhancer
	if webhookURL := v.GetString("tools.webhook_url"); webhookURL != "" {
		enhancer = tools.NewEnhancer(engine, ingestor, webhook.NewExecutor(webhookURL), c.logger)
		c.logger.Info("tool execution enabled", zap.String("webhook", webhookURL))
	}

	consolidator := consolidation.New(driver, adapter, events, nil, c.logger, consolidation.Config{
		FreshAge:         time.Duration(v.GetUint("consolidation.fresh_hours")) * time.Hour,
		RetentionHorizon: time.Duration(v.GetUint("consolidation.retention_hours")) * time.Hour,
		DecayFactor:      v.GetFloat64("consolidation.decay_factor"),
		NumWorkers:       v.GetUint("consolidation.workers"),
	})
	defer consolidator.Close()

	runner := consolidation.NewRunner(consolidator,
		time.Duration(v.GetUint("consolidation.interval_minutes"))*time.Minute, c.logger)
	runner.Start()
	defer runner.Stop()

	apiConfig := api.Config{
		ListenAddr:        v.GetString("api.listen"),
		WorkingMemorySize: int(v.GetUint("retrieval.working_memory_size")),
		CacheTTL:          time.Duration(v.GetUint("cache.ttl_seconds")) * time.Second,
	}
	server := api.NewServer(apiConfig, ingestor, engine, enhancer, consolidator, driver, c.logger)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}

// newGraphDriver builds the configured graph store backend.
func newGraphDriver(v *viper.Viper, configDir string, log *zap.Logger) (graph.Driver, error) {
	switch v.GetString("graph.provider") {
	case "inmemory":
		log.Info("using in-memory graph store")
		return graphinmemory.NewDriver(), nil

	case "sqlite":
		path := v.GetString("graph.sqlite_path")
		if path == "" {
			target, err := dotdir.NewManager().Target(configDir)
			if err != nil {
				return nil, fmt.Errorf("resolving sqlite path: %w", err)
			}
			path = filepath.Join(target, "brainmem.db")
		}
		log.Info("using sqlite graph store", zap.String("path", path))
		return graphsqlite.NewDriver(path)

	case "postgres":
		url := v.GetString("graph.postgres_url")
		if url == "" {
			return nil, fmt.Errorf("graph.postgres_url is required for the postgres provider")
		}
		log.Info("using postgres graph store")
		return graphpostgres.NewDriver(context.Background(), url)

	default:
		return nil, fmt.Errorf("unknown graph provider: %q", v.GetString("graph.provider"))
	}
}

// newCacheAdapter builds the configured retrieval cache backend.
func newCacheAdapter(v *viper.Viper, log *zap.Logger) (cache.Adapter, error) {
	switch v.GetString("cache.provider") {
	case "inmemory":
		log.Info("using in-memory cache")
		return cacheinmemory.NewAdapter(), nil

	case "redis":
		url := v.GetString("cache.redis_url")
		if url == "" {
			return nil, fmt.Errorf("cache.redis_url is required for the redis provider")
		}
		log.Info("using redis cache")
		return cacheredis.NewAdapter(url)

	default:
		return nil, fmt.Errorf("unknown cache provider: %q", v.GetString("cache.provider"))
	}
}

// newEventPublisher builds the configured event stream backend.
func newEventPublisher(v *viper.Viper, log *zap.Logger) (eventstream.Publisher, error) {
	switch v.GetString("events.provider") {
	case "nop", "":
		return eventnop.NewPublisher(), nil

	case "kafka":
		brokers := strings.Split(v.GetString("events.kafka_brokers"), ",")
		if len(brokers) == 0 || brokers[0] == "" {
			return nil, fmt.Errorf("events.kafka_brokers is required for the kafka provider")
		}
		topic := v.GetString("events.kafka_topic")
		log.Info("publishing events to kafka",
			zap.Strings("brokers", brokers),
			zap.String("topic", topic),
		)
		return eventkafka.NewPublisher(brokers, topic), nil

	default:
		return nil, fmt.Errorf("unknown events provider: %q", v.GetString("events.provider"))
	}
}
