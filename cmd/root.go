// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meridiandb/meridian/internal/build"
)

// NewRootCommand enables all children commands to read flags from CLI flags,
// environment variables prefixed with MERIDIAN, or config.yaml (in that
// order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("MERIDIAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/meridian", "$HOME/.meridian", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}
	_ = viper.ReadInConfig()

	return &cobra.Command{
		Use:     "meridian",
		Short:   "Cursor-backed metadata read machinery for document databases",
		Version: build.Version,
	}
}
