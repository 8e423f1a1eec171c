// Command difflog renders log lines with diffed timestamps and abbreviated
// source paths.
package main

import (
	"os"

	"github.com/dianlight/difflog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:           "difflog",
	Short:         "Render log lines with diffed timestamps",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configure(cmd.Flags())
	},
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(demoCmd, catCmd)
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.StringP("level", "l", "info", "Minimum level (trace, debug, info, warn, error)")
	flags.StringP("filter", "f", "", "Target filter directives, e.g. info,app::db=trace")
	flags.Bool("no-color", false, "Write plain text")
	flags.Bool("pad", false, "Pad source paths to the widest one seen")
	flags.Bool("classic", false, "Use the classic tint layout")
}

// configure applies the global flags to the package logger. Flags left at
// their defaults keep what DIFFLOG_LOG set.
func configure(flags *pflag.FlagSet) error {
	level, _ := flags.GetString("level")
	filter, _ := flags.GetString("filter")
	noColor, _ := flags.GetBool("no-color")
	pad, _ := flags.GetBool("pad")
	classic, _ := flags.GetBool("classic")

	if flags.Changed("level") {
		if err := difflog.SetLevelFromString(level); err != nil {
			return err
		}
	}
	if flags.Changed("filter") {
		if err := difflog.SetFilter(filter); err != nil {
			return err
		}
	}

	config := difflog.GetFormatterConfig()
	config.EnableColors = config.EnableColors && !noColor
	config.PadTarget = pad
	if classic {
		config.Layout = difflog.LayoutClassic
	}
	difflog.SetFormatterConfig(config)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		difflog.Error("difflog failed", "error", err)
		difflog.Shutdown()
		os.Exit(1)
	}
	difflog.Shutdown()
}
