// Package cli implements the pdfsearch command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pdfsearch",
	Short: "Full-text search over scanned PDFs on your machine",
	Long: `pdfsearch turns directories of scanned PDFs into a searchable corpus:
pages are rasterized with poppler, recognized with tesseract, cached by
content fingerprint, and indexed for ranked fuzzy search.

Example usage:
  pdfsearch ingest                  # scan and index the configured source root
  pdfsearch search "invoice total"  # ranked search with page snippets
  pdfsearch serve                   # HTTP API plus directory watcher`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

// Execute runs the command tree and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (built-in defaults when omitted)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level (debug, info, warn, error)")
}
