package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/meridiandb/meridian/pkg/commands"
)

// mustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func mustBindEnv(input ...string) {
	if err := viper.BindEnv(input...); err != nil {
		panic("failed to bind env key: " + err.Error())
	}
}

// bindListIndexesFlags binds the cobra cmd flags to the equivalent config value
// being managed by viper. This bridges the config between cobra flags and viper
// flags.
func bindListIndexesFlags(command *cobra.Command) {
	flags := command.Flags()

	flags.String("database", "test", "target database name")
	mustBindPFlag("database", flags.Lookup("database"))
	mustBindEnv("database", "MERIDIAN_DATABASE")

	flags.String("collection", "users", "target collection name")
	mustBindPFlag("collection", flags.Lookup("collection"))
	mustBindEnv("collection", "MERIDIAN_COLLECTION")

	flags.Int("seed-indexes", 8, "number of secondary indexes to seed")
	mustBindPFlag("seed-indexes", flags.Lookup("seed-indexes"))
	mustBindEnv("seed-indexes", "MERIDIAN_SEED_INDEXES")

	flags.Int64("batch-size", 3, "record count budget per batch (0 = unbounded)")
	mustBindPFlag("batch-size", flags.Lookup("batch-size"))
	mustBindEnv("batch-size", "MERIDIAN_BATCH_SIZE")

	flags.Int("max-batch-bytes", commands.DefaultMaxBatchBytes, "byte budget per batch")
	mustBindPFlag("max-batch-bytes", flags.Lookup("max-batch-bytes"))
	mustBindEnv("max-batch-bytes", "MERIDIAN_MAX_BATCH_BYTES")

	flags.String("log-format", "text", "the log format to output logs in")
	mustBindPFlag("log-format", flags.Lookup("log-format"))
	mustBindEnv("log-format", "MERIDIAN_LOG_FORMAT")

	flags.String("log-level", "info", "the log level to use")
	mustBindPFlag("log-level", flags.Lookup("log-level"))
	mustBindEnv("log-level", "MERIDIAN_LOG_LEVEL")
}
