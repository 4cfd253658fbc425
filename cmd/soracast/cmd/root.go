// Package cmd implements the CLI commands for soracast.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/soracast/soracast/internal/config"
	"github.com/soracast/soracast/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "soracast",
	Short:   "Animated avatar broadcast and rendering service",
	Version: version.Short(),
	Long: `soracast drives a continuous RTMP broadcast of an animated avatar and
renders speech and idle clips on demand.

Pre-rendered motion clips are composited with synthesized or supplied
audio via ffmpeg. The live loop splices finished clips into the running
broadcast without restarting the encoder.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/soracast, $HOME/.soracast)")
	flags.String("log-level", "", "log level override (debug, info, warn, error)")
	flags.String("log-format", "", "log format override (text, json)")

	// Underscore and dash spellings resolve to the same flag.
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
}

// applyLogFlags overrides file/env logging settings with explicitly set
// CLI flags. Flags left at their defaults do not override anything.
func applyLogFlags(cfg *config.Config) {
	flags := rootCmd.PersistentFlags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format, _ = flags.GetString("log-format")
	}
}
