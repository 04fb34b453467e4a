// Command wordmine runs the WordMine learning core: the HTTP service plus
// the snapshot and survey utilities.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "wordmine"
	version = "v1.3.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "WordMine adaptive vocabulary learning core",
		Version: version,
		Long: `WordMine is the backend learning core of an English-vocabulary platform:
an adaptive vocabulary-size survey, per-card spaced repetition (SM-2+ and
FSRS behind one interface) and the Sparks/Essence/Energy/Blocks economy.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to wordmine.yaml (or WORDMINE_CONFIG)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSnapshotCmd())
	rootCmd.AddCommand(newSurveyCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// setupLogging installs the global logger per config.
func setupLogging(level string, pretty bool) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
