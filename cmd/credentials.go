package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3ltranslate/legtrans/internal/credentials"
)

func newCredentialsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Store or remove the OCR API key",
		Long: `Manages the API key file used by the gemini and openai OCR backends.
A key rejected by the provider is removed from this file automatically.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <api-key>",
		Short: "Store the API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return keyStore(cfg).Set(cmd.Context(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return keyStore(cfg).Invalidate(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether an API key is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			_, err = keyStore(cfg).Get(cmd.Context())
			switch {
			case errors.Is(err, credentials.ErrMissing):
				fmt.Fprintln(cmd.OutOrStdout(), "not configured")
				return nil
			case err != nil:
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configured")
			return nil
		},
	})

	return cmd
}
