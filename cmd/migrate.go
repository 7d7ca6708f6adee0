package cmd

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/3ltranslate/legtrans/internal/models"
	"github.com/3ltranslate/legtrans/internal/storage"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var (
		code string
		days int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the PostgreSQL tables",
		Long: `Creates the translations, profiles, translators and activation_codes
tables in the database named by DATABASE_URL. Existing tables are left untouched.`,
		Example: `  DATABASE_URL=postgres://localhost/legtrans?sslmode=disable legtrans migrate

  # Also create an activation code worth 30 days
  legtrans migrate --code WELCOME-2025 --days 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			store, err := storage.NewPostgres(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			slog.Info("Database schema is up to date")

			if code != "" {
				created, err := store.CreateCode(cmd.Context(), models.ActivationCode{Code: code, DurationDays: days})
				if err != nil {
					return err
				}
				slog.Info("Activation code created", "code", created.Code, "days", created.DurationDays)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Create an activation code after migrating")
	cmd.Flags().IntVar(&days, "days", 30, "Subscription days granted by --code")

	return cmd
}
