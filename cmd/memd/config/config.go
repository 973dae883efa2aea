// Package configcmder provides the config command for managing persistent
// memd configuration stored in the .memd/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent memd configuration.

Configuration is stored as config.toml in the .memd/ directory and provides
default values for command flags. CLI flags and MEMD_* environment variables
always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.provider, storage.sqlite_path, storage.postgres_dsn,
  queue.provider, queue.brokers, queue.jobs_topic, queue.results_topic,
  queue.dead_letter_topic, queue.group_id,
  vector_store.provider, vector_store.target, vector_store.collection,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  engine.duplicate_threshold, engine.conflict_floor, engine.top_k,
  engine.max_attempts, engine.lease_ttl, engine.backoff_base, engine.backoff_cap,
  workers.num, api.enabled, api.listen

Use subcommands to get, set, or list configuration values:
  memd config set <key> <value>    Set a configuration value
  memd config get <key>            Get a configuration value
  memd config list                 List all configuration values

Examples:
  memd config set storage.provider postgres
  memd config set queue.brokers broker1:9092,broker2:9092
  memd config get engine.duplicate_threshold
  memd config list`

const configShortDesc string = "Manage persistent memd configuration"

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
