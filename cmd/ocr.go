package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/3ltranslate/legtrans/internal/config"
	"github.com/3ltranslate/legtrans/internal/images"
	"github.com/3ltranslate/legtrans/internal/ocr"
)

func newOCRCmd(opts *rootOptions) *cobra.Command {
	var (
		contrast  float64
		models    string
		language  string
		translate bool
		user      string
		trace     bool
	)

	cmd := &cobra.Command{
		Use:   "ocr <image-file-or-url>",
		Short: "Extract text from a document image",
		Long: `Runs a document image through the configured OCR backend, trying each
model in order. Rate-limited requests are retried with exponential backoff and
unavailable models are skipped.`,
		Example: `  # Extract text with the default Gemini models
  legtrans ocr jugement.jpg

  # Boost contrast first and try a single model
  legtrans ocr scan.png --contrast 1.4 --models gemini-2.0-flash

  # Extract and translate in one go, saving to alice's history
  legtrans ocr acte.png --translate --user alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			svc, err := newServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			src, err := loadImage(cmd, args[0])
			if err != nil {
				return err
			}
			img := src.Image
			if contrast != images.NeutralContrast {
				adjusted, err := images.AdjustContrast(src, contrast)
				if err != nil {
					return err
				}
				img = adjusted.Image
			}

			result, err := svc.ocr.Extract(cmd.Context(), ocr.Request{
				Image:    img.Data,
				MIMEType: img.MIMEType,
				Models:   config.SplitList(models),
				Language: language,
			})
			if err != nil {
				var ocrErr *ocr.Error
				if errors.As(err, &ocrErr) {
					if trace {
						printTrace(cmd, ocrErr.Attempts)
					}
					return fmt.Errorf("%s", ocrErr.Message())
				}
				return err
			}
			if trace {
				printTrace(cmd, result.Attempts)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Text)

			if translate {
				res, err := svc.translation.Translate(cmd.Context(), user, result.Text)
				if res != nil {
					fmt.Fprintln(cmd.OutOrStdout())
					fmt.Fprintln(cmd.OutOrStdout(), res.Translation)
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&contrast, "contrast", images.NeutralContrast, "Contrast factor between 0.5 and 2.0")
	cmd.Flags().StringVar(&models, "models", "", "Comma separated model priority list (overrides config)")
	cmd.Flags().StringVar(&language, "language", "", "Document language hint for the OCR backend")
	cmd.Flags().BoolVar(&translate, "translate", false, "Translate the extracted text")
	cmd.Flags().StringVar(&user, "user", "", "Save the translation to this user's history")
	cmd.Flags().BoolVar(&trace, "trace", false, "Print every OCR attempt to stderr")

	return cmd
}

func loadImage(cmd *cobra.Command, location string) (*images.Source, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return images.NewFetcher().Fetch(cmd.Context(), location)
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return images.Load(data, "", filepath.Base(location))
}

func printTrace(cmd *cobra.Command, attempts []ocr.Attempt) {
	enc := json.NewEncoder(cmd.ErrOrStderr())
	for _, a := range attempts {
		_ = enc.Encode(a)
	}
}
