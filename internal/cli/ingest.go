package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/metrics"
)

var ingestQuiet bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Scan the source tree and index every new or changed document",
	Long: `Scan the configured source root, run new and changed documents through
rasterization and OCR, and index the recognized text. Unchanged documents
are skipped; documents whose source file disappeared are removed.

Examples:
  pdfsearch ingest
  pdfsearch ingest --config scans.yaml`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVarP(&ingestQuiet, "quiet", "q", false, "suppress the progress bar")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A batch can grind through OCR for a long time; expose progress to
	// scrapes when a metrics port is configured.
	var m *metrics.Metrics
	if cfg.Metrics.Enabled && cfg.Metrics.Port != 0 {
		m = metrics.New()
		metrics.StartServer(ctx, cfg.Metrics.Port)
	}

	app, err := newApp(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Printf("Scanning %s...\n", app.runner.Root())

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	progress := func(done, total int) {
		if ingestQuiet {
			return
		}
		barMu.Lock()
		defer barMu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Processing"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionOnCompletion(func() { fmt.Println() }),
			)
		}
		bar.Set(done)
	}

	report, err := app.runner.Run(ctx, progress)
	if err != nil {
		return fmt.Errorf("ingest run failed: %w", err)
	}

	fmt.Printf("\nIngest complete in %s:\n", formatDuration(report.Duration))
	fmt.Printf("  Files scanned:   %d\n", report.Scanned)
	fmt.Printf("  Indexed:         %d\n", report.Ready)
	fmt.Printf("  Skipped:         %d (unchanged)\n", report.Skipped)
	fmt.Printf("  Failed:          %d\n", report.Failed)
	fmt.Printf("  Removed:         %d (source gone)\n", report.Removed)

	failed := 0
	for _, o := range report.Outcomes {
		if o.State != document.StateFailed {
			continue
		}
		if failed == 0 {
			fmt.Printf("\nFailures:\n")
		}
		failed++
		fmt.Printf("  - %s: %v\n", o.DocID, o.Err)
	}

	if ctx.Err() != nil {
		fmt.Println("\nInterrupted; partial results were kept.")
	}
	return nil
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "<1s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
