// Package consolidatecmder provides the consolidate command, a one-shot
// consolidation run against the configured graph store.
package consolidatecmder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/omnii-ai/brainmem/pkg/cache"
	cacheinmemory "github.com/omnii-ai/brainmem/pkg/cache/inmemory"
	cacheredis "github.com/omnii-ai/brainmem/pkg/cache/redis"
	"github.com/omnii-ai/brainmem/pkg/cliui"
	"github.com/omnii-ai/brainmem/pkg/config"
	"github.com/omnii-ai/brainmem/pkg/consolidation"
	"github.com/omnii-ai/brainmem/pkg/dotdir"
	"github.com/omnii-ai/brainmem/pkg/eventstream"
	eventkafka "github.com/omnii-ai/brainmem/pkg/eventstream/kafka"
	eventnop "github.com/omnii-ai/brainmem/pkg/eventstream/nop"
	"github.com/omnii-ai/brainmem/pkg/graph"
	graphinmemory "github.com/omnii-ai/brainmem/pkg/graph/inmemory"
	graphpostgres "github.com/omnii-ai/brainmem/pkg/graph/postgres"
	graphsqlite "github.com/omnii-ai/brainmem/pkg/graph/sqlite"
	"github.com/omnii-ai/brainmem/pkg/logger"
)

type ConsolidateCommander struct {
	graphProvider string
	sqlitePath    string
	postgresURL   string
	freshHours    uint
	debug         bool
	logger        *zap.Logger
}

var consolidateFlags = config.FlagSet{
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
	config.FlagFreshHours: {
		Name: "fresh-hours", ViperKey: "consolidation.fresh_hours",
		Description: "Age in hours before a fresh message is consolidated",
	},
}

var consolidateFlagKeys = []string{
	config.FlagGraphProvider,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagFreshHours,
}

const consolidateLongDesc string = `Run one consolidation pass and exit.

Fresh messages older than the fresh-age cutoff are promoted into episodic
memories, concept associations are recomputed from co-occurrence, unmentioned
concepts are decayed, and memories past the retention horizon are archived.

The server runs this same pass on a timer; the command exists for cron-style
scheduling and for catching up after downtime.`

const consolidateShortDesc string = "Run one consolidation pass"

func NewConsolidateCmd() *cobra.Command {
	cmder := &ConsolidateCommander{}

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: consolidateShortDesc,
		Long:  consolidateLongDesc,
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
			config.BindRegisteredFlags(v, cmd, consolidateFlags, consolidateFlagKeys)

			return cmder.run(v, configDir)
		},
	}

	config.AddStringFlag(cmd, consolidateFlags, config.FlagGraphProvider, &cmder.graphProvider)
	config.AddStringFlag(cmd, consolidateFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, consolidateFlags, config.FlagPostgres, &cmder.postgresURL)
	config.AddUintFlag(cmd, consolidateFlags, config.FlagFreshHours, &cmder.freshHours)

	return cmd
}

func (c *ConsolidateCommander) run(v *viper.Viper, configDir string) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	driver, err := openGraphDriver(v, configDir)
	if err != nil {
		return err
	}
	defer driver.Close()

	adapter, err := openCacheAdapter(v)
	if err != nil {
		return err
	}
	defer adapter.Close()

	events, err := openEventPublisher(v)
	if err != nil {
		return err
	}
	defer events.Close()

	consolidator := consolidation.New(driver, adapter, events, nil, c.logger, consolidation.Config{
		FreshAge:         time.Duration(v.GetUint("consolidation.fresh_hours")) * time.Hour,
		RetentionHorizon: time.Duration(v.GetUint("consolidation.retention_hours")) * time.Hour,
		DecayFactor:      v.GetFloat64("consolidation.decay_factor"),
		NumWorkers:       v.GetUint("consolidation.workers"),
	})
	defer consolidator.Close()

	var report *consolidation.Report
	err = cliui.Step(os.Stdout, "consolidating memories", func() error {
		var runErr error
		report, runErr = consolidator.RunOnce(context.Background())
		return runErr
	})
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

func printReport(report *consolidation.Report) {
	rows := []struct {
		label string
		value int
	}{
		{"consolidated", report.Consolidated},
		{"failed", report.Failed},
		{"archived", report.Archived},
		{"associations", report.Associations},
		{"decayed concepts", report.Decayed},
		{"users touched", report.Users},
	}

	for _, row := range rows {
		fmt.Printf("  %s %s\n",
			cliui.KeyStyle.Render(fmt.Sprintf("%-18s", row.label)),
			cliui.ValueStyle.Render(fmt.Sprintf("%d", row.value)),
		)
	}
}

func openGraphDriver(v *viper.Viper, configDir string) (graph.Driver, error) {
	switch v.GetString("graph.provider") {
	case "inmemory":
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
		return graphsqlite.NewDriver(path)

	case "postgres":
		url := v.GetString("graph.postgres_url")
		if url == "" {
			return nil, fmt.Errorf("graph.postgres_url is required for the postgres provider")
		}
		return graphpostgres.NewDriver(context.Background(), url)

	default:
		return nil, fmt.Errorf("unknown graph provider: %q", v.GetString("graph.provider"))
	}
}

func openCacheAdapter(v *viper.Viper) (cache.Adapter, error) {
	switch v.GetString("cache.provider") {
	case "inmemory":
		return cacheinmemory.NewAdapter(), nil

	case "redis":
		url := v.GetString("cache.redis_url")
		if url == "" {
			return nil, fmt.Errorf("cache.redis_url is required for the redis provider")
		}
		return cacheredis.NewAdapter(url)

	default:
		return nil, fmt.Errorf("unknown cache provider: %q", v.GetString("cache.provider"))
	}
}

func openEventPublisher(v *viper.Viper) (eventstream.Publisher, error) {
	switch v.GetString("events.provider") {
	case "nop", "":
		return eventnop.NewPublisher(), nil

	case "kafka":
		brokers := strings.Split(v.GetString("events.kafka_brokers"), ",")
		if len(brokers) == 0 || brokers[0] == "" {
			return nil, fmt.Errorf("events.kafka_brokers is required for the kafka provider")
		}
		return eventkafka.NewPublisher(brokers, v.GetString("events.kafka_topic")), nil

	default:
		return nil, fmt.Errorf("unknown events provider: %q", v.GetString("events.provider"))
	}
}
