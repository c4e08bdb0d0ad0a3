package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/MeKo-Tech/docsplit/internal/barcode"
	"github.com/MeKo-Tech/docsplit/internal/batch"
	"github.com/MeKo-Tech/docsplit/internal/classify"
	"github.com/MeKo-Tech/docsplit/internal/config"
	"github.com/MeKo-Tech/docsplit/internal/enhance"
	"github.com/MeKo-Tech/docsplit/internal/finish"
	"github.com/spf13/cobra"
)

// processCmd runs one batch from a directory of scanned pages.
var processCmd = &cobra.Command{
	Use:   "process <directory>",
	Short: "Split a directory of scanned pages into documents",
	Long: `Process a directory of scanned page images as one batch: correct and
analyze every page, derive document boundaries from separator signals and
export each document with its search-index sidecar.

Examples:
  docsplit process ./scans
  docsplit process ./scans --output ./documents --format pdf
  docsplit process ./scans --barcode-pattern '^DOC-' --exclude-markers
  docsplit process ./scans --no-blank-pages --similarity 0.3`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	applyProcessFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	source, err := batch.NewDirectorySource(args[0])
	if err != nil {
		return err
	}

	progress := batch.NewLogProgressCallback(slog.Default(), slog.LevelInfo)
	runner := buildRunner(cfg, progress)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job, err := runner.Run(ctx, source)
	if err != nil {
		return err
	}

	status := job.Snapshot()
	switch status.State {
	case batch.StateFailed:
		return fmt.Errorf("batch failed: %s", status.Error)
	case batch.StateCancelled:
		return fmt.Errorf("batch cancelled after %d analyzed pages", status.Analyzed)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Processed %d pages into %d documents\n", status.Captured, status.Finished)
	for _, artifact := range job.Artifacts() {
		fmt.Fprintf(out, "  %s (%d pages)\n", artifact.Name, artifact.PageCount)
	}
	if len(status.Warnings) > 0 {
		fmt.Fprintf(out, "%d warnings:\n", len(status.Warnings))
		for _, w := range status.Warnings {
			fmt.Fprintf(out, "  [%s] %s\n", w.Stage, w.Message)
		}
	}
	return nil
}

// applyProcessFlags overlays explicitly-set flags onto the resolved
// configuration.
func applyProcessFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Finish.Destination, _ = flags.GetString("output")
	}
	if flags.Changed("format") {
		cfg.Finish.Format, _ = flags.GetString("format")
	}
	if flags.Changed("collision") {
		cfg.Finish.Collision, _ = flags.GetString("collision")
	}
	if flags.Changed("naming-template") {
		cfg.Finish.NamingTemplate, _ = flags.GetString("naming-template")
	}
	if flags.Changed("imprint") {
		cfg.Finish.ImprintEnabled, _ = flags.GetBool("imprint")
	}
	if flags.Changed("imprint-text") {
		cfg.Finish.ImprintText, _ = flags.GetString("imprint-text")
	}

	if flags.Changed("no-separation") {
		off, _ := flags.GetBool("no-separation")
		cfg.Separation.Enabled = !off
	}
	if flags.Changed("no-blank-pages") {
		off, _ := flags.GetBool("no-blank-pages")
		cfg.Separation.UseBlankPages = !off
	}
	if flags.Changed("blank-sensitivity") {
		cfg.Separation.BlankSensitivity, _ = flags.GetFloat64("blank-sensitivity")
	}
	if flags.Changed("delete-blanks") {
		cfg.Separation.DeleteBlankPages, _ = flags.GetBool("delete-blanks")
	}
	if flags.Changed("no-barcodes") {
		off, _ := flags.GetBool("no-barcodes")
		cfg.Separation.UseBarcodes = !off
	}
	if flags.Changed("barcode-pattern") {
		cfg.Separation.BarcodePattern, _ = flags.GetString("barcode-pattern")
	}
	if flags.Changed("exclude-markers") {
		cfg.Separation.ExcludeMarkerPages, _ = flags.GetBool("exclude-markers")
	}
	if flags.Changed("content-analysis") {
		cfg.Separation.UseContentAnalysis, _ = flags.GetBool("content-analysis")
	}
	if flags.Changed("similarity") {
		cfg.Separation.SimilarityThreshold, _ = flags.GetFloat64("similarity")
	}
	if flags.Changed("min-pages") {
		cfg.Separation.MinimumPages, _ = flags.GetInt("min-pages")
	}
	if flags.Changed("enforce-min-on-tail") {
		cfg.Separation.EnforceMinimumOnTail, _ = flags.GetBool("enforce-min-on-tail")
	}

	if flags.Changed("workers") {
		cfg.Batch.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("report-dir") {
		cfg.Batch.ReportDir, _ = flags.GetString("report-dir")
	}
}

// buildRunner wires the pipeline collaborators from the configuration.
func buildRunner(cfg *config.Config, progress batch.ProgressCallback) *batch.Runner {
	enhancer := enhance.New(cfg.EnhanceOptions())

	var backend barcode.Backend
	if cfg.Classify.BarcodeEnabled {
		backend = barcode.NewBackend()
	}
	classifier := classify.New(cfg.ClassifyConfig(), backend, nil)
	finisher := finish.New(cfg.FinishConfig(), nil)

	opts := cfg.RunnerOptions()
	opts.Progress = progress
	return batch.NewRunner(opts, enhancer, classifier, finisher, nil)
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringP("output", "o", "", "destination directory for finished documents")
	processCmd.Flags().StringP("format", "f", "", "output format (pdf, tiff, jpeg, png)")
	processCmd.Flags().String("collision", "", "filename collision policy (rename, overwrite, fail)")
	processCmd.Flags().String("naming-template", "", "filename template ({date}, {time}, {seq}, {batch}, {barcode})")
	processCmd.Flags().Bool("imprint", false, "stamp pages with the imprint text")
	processCmd.Flags().String("imprint-text", "", "imprint template ({page}, {pages}, {date}, {batch})")

	processCmd.Flags().Bool("no-separation", false, "treat the whole batch as a single document")
	processCmd.Flags().Bool("no-blank-pages", false, "disable blank-page separators")
	processCmd.Flags().Float64("blank-sensitivity", 0, "blank detection sensitivity in [0,1]")
	processCmd.Flags().Bool("delete-blanks", false, "drop blank separator pages from the output")
	processCmd.Flags().Bool("no-barcodes", false, "disable barcode separators")
	processCmd.Flags().String("barcode-pattern", "", "regular expression a barcode payload must match to separate")
	processCmd.Flags().Bool("exclude-markers", false, "drop barcode marker pages from the output")
	processCmd.Flags().Bool("content-analysis", false, "enable content-drift separators")
	processCmd.Flags().Float64("similarity", 0, "content similarity threshold in [0,1]")
	processCmd.Flags().Int("min-pages", 0, "minimum pages per document")
	processCmd.Flags().Bool("enforce-min-on-tail", false, "merge a too-short trailing document into its predecessor")

	processCmd.Flags().Int("workers", 0, "page analysis workers (default: CPU count)")
	processCmd.Flags().String("report-dir", "", "directory for YAML job reports")
}
