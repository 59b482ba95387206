// Command recorder inspects, seeks, and verifies flight recordings
// produced by internal/recorder, without requiring a live simulation
// host. Logging follows the core's zerolog convention: a single base
// logger built here, passed down rather than set as a package default.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	rootCmd := &cobra.Command{
		Use:   "recorder",
		Short: "Inspect and replay flight recordings",
	}
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		levelStr, _ := cmd.Flags().GetString("log-level")
		level, err := zerolog.ParseLevel(levelStr)
		if err != nil {
			return err
		}
		logger = logger.Level(level)
		return nil
	}

	rootCmd.AddCommand(
		newInspectCmd(&logger),
		newSeekCmd(&logger),
		newVerifyCmd(&logger),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
