package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Lowy-zhangtian/-audit-tool/internal/analysis"
	"github.com/Lowy-zhangtian/-audit-tool/internal/export"
	"github.com/Lowy-zhangtian/-audit-tool/internal/logging"
	"github.com/Lowy-zhangtian/-audit-tool/internal/metrics"
	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
	"github.com/Lowy-zhangtian/-audit-tool/internal/pipeline"
)

var (
	tablePath     string
	extractedPath string
	attachments   []string
	knowledgePath string
	outCSV        string
	outJSON       string
	reviewTimeout time.Duration
	noLLM         bool
	noCache       bool
	concurrency   int
)

// reviewCmd represents the review command
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review audit reports against the rule set and model",
	Long: `Review loads a structured report table and/or the documents attached to
the reports, integrates them into one record per report, evaluates every rule
and, when a model is configured, asks it for a risk narrative.

Results are written as a CSV table (UTF-8 with BOM by default) and optionally
as JSON, published to NATS, and summarised as Prometheus metrics.

Example:
  auditreview review --table reports.xlsx
  auditreview review --table reports.csv --attach 'vouchers/**/*.pdf' --knowledge policies.txt
  auditreview review --table reports.csv --provider openai --model gpt-4o-mini --json run.json`,
	Args: cobra.NoArgs,
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	// Input flags
	reviewCmd.Flags().StringVar(&tablePath, "table", "", "structured report table (.csv, .xlsx, .json, .yaml)")
	reviewCmd.Flags().StringVar(&extractedPath, "extracted", "", "table of fields already extracted from attachments")
	reviewCmd.Flags().StringArrayVar(&attachments, "attach", nil, "attachment glob, ** supported (repeatable)")
	reviewCmd.Flags().StringVar(&knowledgePath, "knowledge", "", "knowledge snippets file, one per line")

	// Output flags
	reviewCmd.Flags().StringVar(&outCSV, "csv", "audit_review_results.csv", "output CSV path (- for stdout)")
	reviewCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	reviewCmd.Flags().String("nats-url", "", "publish results to this NATS server")
	reviewCmd.Flags().String("metrics-textfile", "", "write run metrics in Prometheus text format")

	// Model flags
	reviewCmd.Flags().DurationVar(&reviewTimeout, "timeout", 30*time.Minute, "overall review timeout")
	reviewCmd.Flags().BoolVar(&noLLM, "no-llm", false, "skip narrative generation")
	reviewCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the model response cache")
	reviewCmd.Flags().String("provider", "", "LLM provider (openai, anthropic, ollama)")
	reviewCmd.Flags().String("model", "", "LLM model name")
	reviewCmd.Flags().IntVar(&concurrency, "concurrency", 0, "concurrent model calls (default from config)")

	// Bind flags to viper
	_ = viper.BindPFlag("llm.provider", reviewCmd.Flags().Lookup("provider"))
	_ = viper.BindPFlag("llm.model", reviewCmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("nats.url", reviewCmd.Flags().Lookup("nats-url"))
	_ = viper.BindPFlag("metrics.textfile", reviewCmd.Flags().Lookup("metrics-textfile"))
}

func runReview(cmd *cobra.Command, args []string) error {
	if tablePath == "" && extractedPath == "" && len(attachments) == 0 {
		return fmt.Errorf("nothing to review: pass --table, --extracted or --attach")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Analysis.Concurrency = concurrency
	}
	if knowledgePath == "" {
		knowledgePath = cfg.Analysis.Knowledge
	}

	logger := logging.New(cfg.Logging.Format, cfg.Logging.Level, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, reviewTimeout)
	defer cancel()

	var m analysis.Model
	if !noLLM {
		client, err := pipeline.NewModel(cfg, logger)
		if err != nil {
			return err
		}
		// Keep m a nil interface when no provider is configured
		if client != nil {
			m = client
			if prov := client.Provider(); !prov.IsAvailable(ctx) {
				fmt.Fprintf(os.Stderr, "⚠️  Model provider %s is not reachable; narratives will be marked failed\n", prov.Name())
			}
		}
	}

	rec := metrics.NewRecorder()
	p, err := pipeline.NewFromConfig(cfg, m, rec, logger)
	if err != nil {
		return err
	}

	printBanner(cfg, p.NarrativesEnabled())

	fmt.Fprintf(os.Stderr, "⚙️  Loading inputs...\n")
	in, err := pipeline.NewIngester(cfg.Extraction, cfg.Concurrency.RuleWorkers, logger).Ingest(ctx, pipeline.Sources{
		Table:       tablePath,
		Extracted:   extractedPath,
		Attachments: attachments,
		Knowledge:   knowledgePath,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Loaded %d structured rows, %d extracted records, %d knowledge snippets\n",
		len(in.Structured), len(in.Extracted), len(in.Knowledge))

	fmt.Fprintf(os.Stderr, "⚙️  Reviewing...\n")
	run, runErr := p.Run(ctx, in)
	if run == nil {
		return fmt.Errorf("review failed: %w", runErr)
	}
	for _, w := range run.Warnings {
		fmt.Fprintf(os.Stderr, "⚠️  %v\n", w)
	}

	if err := writeOutputs(run, cfg); err != nil {
		return err
	}
	if err := publish(ctx, run, cfg, logger); err != nil {
		return err
	}
	if cfg.Metrics.Textfile != "" {
		if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return err
		}
	}

	printSummary(run)

	if runErr != nil {
		return fmt.Errorf("review incomplete (%d of %d reports): %w", len(run.Results), len(run.Records), runErr)
	}
	return nil
}

func printBanner(cfg *model.Config, narratives bool) {
	modelName := "disabled"
	if narratives {
		modelName = cfg.LLM.Provider
		if cfg.LLM.Model != "" {
			modelName += "/" + cfg.LLM.Model
		}
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Audit Review\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	if tablePath != "" {
		fmt.Fprintf(os.Stderr, "  Table:        %s\n", tablePath)
	}
	if extractedPath != "" {
		fmt.Fprintf(os.Stderr, "  Extracted:    %s\n", extractedPath)
	}
	for _, a := range attachments {
		fmt.Fprintf(os.Stderr, "  Attachments:  %s\n", a)
	}
	fmt.Fprintf(os.Stderr, "  Model:        %s\n", modelName)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", reviewTimeout)
	fmt.Fprintf(os.Stderr, "\n")
}

func printSummary(run *pipeline.Run) {
	compliant, nonCompliant := run.Summary()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Review Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Run:            %s\n", run.ID)
	fmt.Fprintf(os.Stderr, "  Reports:        %d\n", len(run.Results))
	fmt.Fprintf(os.Stderr, "  Compliant:      %d\n", compliant)
	fmt.Fprintf(os.Stderr, "  Non-compliant:  %d\n", nonCompliant)
	fmt.Fprintf(os.Stderr, "  Duration:       %v\n", run.Timings.Total.Round(time.Millisecond))
	if outCSV != "" && outCSV != "-" {
		fmt.Fprintf(os.Stderr, "  Output:         %s\n", outCSV)
	}
	fmt.Fprintf(os.Stderr, "\n")
}

func writeOutputs(run *pipeline.Run, cfg *model.Config) error {
	if outCSV != "" {
		opts, err := export.OptionsFromConfig(cfg.Export)
		if err != nil {
			return err
		}
		if err := writeTo(outCSV, func(w io.Writer) error {
			return export.WriteCSV(w, run.Results, opts)
		}); err != nil {
			return fmt.Errorf("write CSV: %w", err)
		}
	}

	if outJSON != "" {
		if err := writeTo(outJSON, func(w io.Writer) error {
			return export.WriteJSON(w, run)
		}); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
	}
	return nil
}

// writeTo creates path (or uses stdout for "-") and hands it to write
func writeTo(path string, write func(io.Writer) error) (err error) {
	if path == "-" {
		return write(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return write(f)
}

func publish(ctx context.Context, run *pipeline.Run, cfg *model.Config, logger *slog.Logger) error {
	if cfg.NATS.URL == "" {
		return nil
	}

	pub, err := export.DialNATS(cfg.NATS.URL, cfg.NATS.Subject, logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	// Publishing is best effort once the review itself was cancelled
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := pub.Publish(ctx, run.ID, run.Results); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Published %d results to %s\n", len(run.Results), pub.Subject())
	return nil
}
