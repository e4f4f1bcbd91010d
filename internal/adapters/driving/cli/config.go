package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// knownConfigKeys are the settings the commands consult, shown by
// "config show" in this order.
var knownConfigKeys = []string{
	"owner.id",
	"embedding.provider",
	"embedding.model",
	"embedding.dimensions",
	"ledger.ingest_cost",
	"ledger.query_cost",
	"ledger.delete_cost",
	"ledger.free_empty_query",
	"ledger.charge_denied_query",
	"watch.dir",
	"watch.settle_ms",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View or change configuration values stored in the config file.`,
	RunE:  runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Sets a configuration value and persists it immediately. Values that
parse as booleans or integers are stored typed; everything else is a
string.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	cmd.Printf("Config file: %s\n\n", configStore.Path())
	for _, key := range knownConfigKeys {
		value, ok := configStore.Get(key)
		if !ok {
			cmd.Printf("  %-28s (not set)\n", key)
			continue
		}
		cmd.Printf("  %-28s %v\n", key, value)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	value, ok := configStore.Get(args[0])
	if !ok {
		return fmt.Errorf("key %q is not set", args[0])
	}
	cmd.Printf("%v\n", value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	key, raw := args[0], args[1]
	var value any = raw
	if b, err := strconv.ParseBool(raw); err == nil {
		value = b
	} else if n, err := strconv.Atoi(raw); err == nil {
		value = n
	}

	if err := configStore.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	cmd.Printf("Set %s = %v\n", key, value)
	return nil
}
