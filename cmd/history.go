package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/3ltranslate/legtrans/internal/export"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage a user's translation history",
	}
	cmd.PersistentFlags().StringVar(&user, "user", "", "User id whose history to use (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(newHistoryListCmd(opts, &user))
	cmd.AddCommand(newHistoryClearCmd(opts, &user))
	cmd.AddCommand(newHistoryExportCmd(opts, &user))
	cmd.AddCommand(newHistoryImportCmd(opts, &user))

	return cmd
}

func newHistoryListCmd(opts *rootOptions, user *string) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List translations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), *user, limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tTRANSLATION")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04"), preview(r.SourceText), preview(r.TranslatedText))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of records (default 20)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func newHistoryClearCmd(opts *rootOptions, user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every translation of the user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(cmd.Context(), *user); err != nil {
				return err
			}
			slog.Info("History cleared", "user", *user)
			return nil
		},
	}
}

func newHistoryExportCmd(opts *rootOptions, user *string) *cobra.Command {
	var (
		output string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export history to a YAML or Parquet file",
		Example: `  legtrans history export --user alice --output alice.yaml
  legtrans history export --user alice --output alice.parquet --limit 1000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), *user, limit)
			if err != nil {
				return err
			}
			return export.WriteFile(output, *user, records)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "history.yaml", "Output file (.yaml, .yml or .parquet)")
	cmd.Flags().IntVar(&limit, "limit", 10000, "Maximum number of records")
	return cmd
}

func newHistoryImportCmd(opts *rootOptions, user *string) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Restore history from a file written by export",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			records, err := export.ReadFile(input)
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, r := range records {
				r.ID = ""
				r.OwnerID = *user
				if _, err := store.Save(cmd.Context(), r); err != nil {
					return err
				}
			}
			slog.Info("History imported", "user", *user, "records", len(records))
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "File written by history export")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) > 40 {
		return string(runes[:40]) + "…"
	}
	return string(runes)
}
