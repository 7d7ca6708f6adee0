package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newTranslateCmd(opts *rootOptions) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "translate [text]",
		Short: "Translate French legal text to Arabic",
		Long: `Sends text to the configured translation backend. Without an argument
(or with "-") the text is read from standard input.`,
		Example: `  legtrans translate "Article premier : La présente loi a pour objet..."
  legtrans ocr acte.png | legtrans translate --user alice`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			var text string
			if len(args) == 1 && args[0] != "-" {
				text = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = strings.TrimSpace(string(data))
			}

			svc, err := newServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.translation.Translate(cmd.Context(), user, text)
			if res != nil {
				fmt.Fprintln(cmd.OutOrStdout(), res.Translation)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Save the translation to this user's history")

	return cmd
}
