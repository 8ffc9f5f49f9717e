package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/watts/internal/config"
	"github.com/felixgeelhaar/watts/internal/database"
	"github.com/felixgeelhaar/watts/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "watts",
	Short: "Workflow and Template Toolkit for Simulation",
	Long: `watts drives simulation codes through a common lifecycle.

A run renders parameterized templates into a scratch directory, executes the
code, collects its outputs and appends a result record to a local results
database. ALEAF, PyARC and OpenMC are supported.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// cfg is loaded before any subcommand runs.
	cfg = config.Default()
)

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, which subcommands pass to
// the plugins they invoke.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $WATTS_CONFIG or ./watts.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(config.Path(cfgFile), cfgFile != "")
	if err != nil {
		return err
	}
	cfg = loaded

	level, format := cfg.Logging.Level, cfg.Logging.Format
	if cmd.Flags().Changed("log-level") {
		level = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		format = logFormat
	}
	log.Setup(level, format)
	return nil
}

// openDatabase opens the results database at path, or the configured one.
func openDatabase(path string) (*database.Database, error) {
	if path == "" {
		path = cfg.Database.Path
	}
	return database.Open(database.Config{Path: path, Logger: log.DefaultLogger()})
}
