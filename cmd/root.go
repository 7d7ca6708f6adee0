package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/3ltranslate/legtrans/internal/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "legtrans",
		Short: "OCR and French to Arabic translation of legal documents",
		Long: `legtrans extracts text from scanned legal documents with vision models
and translates it from French to Arabic.

It runs the web API used by the front end and offers the same pipeline on the
command line, together with history management and database migrations.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newOCRCmd(opts))
	cmd.AddCommand(newTranslateCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newCredentialsCmd(opts))

	return cmd
}

// load resolves the configuration and installs the default logger
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}

	logLevel := cfg.SlogLevel()
	if o.verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	return cfg, nil
}
