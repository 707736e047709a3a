package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/feiskyer/swarm-tools/openapi"
)

var (
	normalizeFile string
	normalizeURL  string
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Print the normalized OpenAPI document",
	Long: "normalize fetches (or reads) the configured OpenAPI document, makes its server URLs absolute, " +
		"filters the security of the configured operations and prints the result as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.logger.Sync() //nolint:errcheck

		normalizer, err := rt.cfg.OpenAPI.Normalizer()
		if err != nil {
			return err
		}

		opts := openapi.LoadOptions{
			SpecURL:    rt.cfg.OpenAPI.SpecURL,
			SpecFile:   rt.cfg.OpenAPI.SpecFile,
			Normalizer: normalizer,
			Fetcher:    openapi.NewFetcher(rt.cfg.OpenAPI.FetchTimeout),
		}
		if normalizeFile != "" {
			opts.SpecFile = normalizeFile
		}
		if normalizeURL != "" {
			opts.SpecFile = ""
			opts.SpecURL = normalizeURL
		}

		doc, report, err := openapi.LoadDocument(cmd.Context(), opts)
		if err != nil {
			return err
		}
		openapi.LogReport(rt.logger, doc, report)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(map[string]any(doc)); err != nil {
			return fmt.Errorf("encoding document: %w", err)
		}
		return nil
	},
}

func init() {
	normalizeCmd.Flags().StringVarP(&normalizeFile, "file", "f", "", "read the document from a file")
	normalizeCmd.Flags().StringVarP(&normalizeURL, "url", "u", "", "fetch the document from a URL")
	rootCmd.AddCommand(normalizeCmd)
}
