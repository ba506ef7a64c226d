// Package configcmder provides the config command for managing persistent
// brainmem configuration stored in the .brainmem/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent brainmem configuration.

Configuration is stored as config.toml in the .brainmem/ directory and
provides default values for command flags. CLI flags always take precedence
over config file values.

Keys use dotted notation matching the TOML section structure:
  graph.provider, graph.sqlite_path, graph.postgres_url,
  cache.provider, cache.redis_url, cache.ttl_seconds,
  api.listen, retrieval.working_memory_size,
  consolidation.fresh_hours, consolidation.retention_hours,
  consolidation.decay_factor, consolidation.interval_minutes,
  events.provider, events.kafka_brokers, events.kafka_topic,
  tools.webhook_url

Use subcommands to get, set, or list configuration values:
  brainmem config set <key> <value>    Set a configuration value
  brainmem config get <key>            Get a configuration value
  brainmem config list                 List all configuration values

Examples:
  brainmem config set graph.provider postgres
  brainmem config set graph.postgres_url postgres://localhost/brainmem
  brainmem config get cache.provider
  brainmem config list`

const configShortDesc string = "Manage persistent brainmem configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
