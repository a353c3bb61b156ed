// Command pixelsense is the CLI front-end for the image intelligence
// pipeline: analyze images, inspect cache/store state, and run store
// maintenance. The CLI is thin glue; all behavior lives in internal/.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"pixelsense/internal/config"
	"pixelsense/internal/logging"
	"pixelsense/internal/manifest"
	"pixelsense/internal/pipeline"
	"pixelsense/internal/signal"
	"pixelsense/internal/vision"

	"github.com/spf13/cobra"
)

var (
	flagStateDir string
	flagFast     bool
	flagNoCache  bool
	flagFormat   string
	flagJSON     bool
)

func main() {
	root := &cobra.Command{
		Use:           "pixelsense",
		Short:         "Offline image intelligence pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagStateDir, "state-dir", "", "state directory (default .pixelsense)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Analyze an image and print its signals",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().BoolVar(&flagFast, "fast", false, "fast lane only")
	analyzeCmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "bypass the signature cache")
	analyzeCmd.Flags().StringVar(&flagFormat, "format", "caption", "output format: alt-text|caption|social")
	analyzeCmd.Flags().BoolVar(&flagJSON, "json", false, "print the result as JSON")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print cache and store statistics",
		RunE:  runStats,
	}

	warmupCmd := &cobra.Command{
		Use:   "warmup [count]",
		Short: "Preload recently seen confident signatures",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWarmup,
	}

	decayCmd := &cobra.Command{
		Use:   "decay",
		Short: "Decay stale signatures and prune the unsupported ones",
		RunE:  runDecay,
	}
	decayCmd.Flags().Duration("max-age", 30*24*time.Hour, "decay records unseen for this long")
	decayCmd.Flags().Float64("factor", 0.9, "confidence multiplier for stale records")

	manifestCmd := &cobra.Command{
		Use:   "manifest check <dir>",
		Short: "Validate wave manifests in a directory",
		Args:  cobra.ExactArgs(2),
		RunE:  runManifestCheck,
	}

	feedbackCmd := &cobra.Command{
		Use:   "feedback <score-id> <accept|reject> [comment]",
		Short: "Record feedback on a discriminator score",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  runFeedback,
	}

	root.AddCommand(analyzeCmd, statsCmd, warmupCmd, decayCmd, manifestCmd, feedbackCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pixelsense: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration, initializes logging, and builds the pipeline.
func setup() (*pipeline.Analyzer, *config.Config, error) {
	cfg, err := config.Load(flagStateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := logging.Initialize(cfg.StateDir, logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
		JSONFormat: cfg.Logging.JSONFormat,
	}); err != nil {
		return nil, nil, err
	}

	var opts []pipeline.Option
	if cfg.Vision.APIKey != "" {
		client, err := vision.NewGeminiClient(context.Background(), vision.GeminiConfig{
			APIKey:  cfg.Vision.APIKey,
			Model:   cfg.Vision.Model,
			Timeout: config.MustDuration(cfg.Vision.Timeout),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "pixelsense: vision client unavailable: %v\n", err)
		} else {
			opts = append(opts, pipeline.WithVisionClient(client), pipeline.WithOCRClient(client))
		}
	}

	analyzer, err := pipeline.New(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return analyzer, cfg, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	analyzer, _, err := setup()
	if err != nil {
		return err
	}
	defer analyzer.Close()
	defer logging.CloseAll()

	result, err := analyzer.AnalyzeImage(cmd.Context(), args[0], pipeline.AnalyzeOptions{
		Fast:    flagFast,
		NoCache: flagNoCache,
		Format:  flagFormat,
	})
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(cmd, result)
	}
	printResult(cmd, result)
	return nil
}

func printResult(cmd *cobra.Command, r *signal.ImageAnalysisResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "confidence: %.2f\n", r.Confidence)
	fmt.Fprintf(out, "type: %s\n", r.ContentType())
	if r.Caption != "" {
		fmt.Fprintf(out, "caption: %s\n", r.Caption)
	}
	if r.OCRText != "" {
		fmt.Fprintf(out, "text: %s\n", r.OCRText)
	}
	if r.DominantColor != "" {
		fmt.Fprintf(out, "dominant color: %s\n", r.DominantColor)
	}
	fmt.Fprintf(out, "cache hit: %v (perceptual: %v)\n", r.IsCacheHit, r.PerceptualHit)
	if r.EarlyExit {
		fmt.Fprintf(out, "early exit: %s\n", r.EarlyExitReason)
	}
	fmt.Fprintf(out, "processed in %s\n", r.ProcessingTime)
}

func printJSON(cmd *cobra.Command, r *signal.ImageAnalysisResult) error {
	view := map[string]interface{}{
		"confidence":      r.Confidence,
		"type":            string(r.ContentType()),
		"caption":         r.Caption,
		"ocr_text":        r.OCRText,
		"dominant_color":  r.DominantColor,
		"is_cache_hit":    r.IsCacheHit,
		"perceptual_hit":  r.PerceptualHit,
		"early_exit":      r.EarlyExit,
		"processing_ms":   r.ProcessingTime.Milliseconds(),
		"signals":         signalView(r),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func signalView(r *signal.ImageAnalysisResult) map[string]interface{} {
	out := make(map[string]interface{}, len(r.Signals))
	for key, s := range r.Signals {
		out[key] = map[string]interface{}{
			"value":      s.Value.Interface(),
			"confidence": s.Confidence,
			"source":     s.Source,
		}
	}
	return out
}

func runStats(cmd *cobra.Command, args []string) error {
	analyzer, _, err := setup()
	if err != nil {
		return err
	}
	defer analyzer.Close()
	defer logging.CloseAll()

	stats, err := analyzer.Stats()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cache: %d entries, %d hits, %d misses, %d perceptual, rate %.2f\n",
		stats.Cache.Entries, stats.Cache.Hits, stats.Cache.Misses, stats.Cache.PerceptualHits, stats.Cache.HitRate)
	fmt.Fprintf(out, "store: %d rows, %d pending writes, %d in LRU, avg confidence %.2f\n",
		stats.Store.Rows, stats.Store.PendingWrites, stats.Store.LRUEntries, stats.Store.AvgConfidence)
	return nil
}

func runWarmup(cmd *cobra.Command, args []string) error {
	count := 256
	if len(args) == 1 {
		if _, err := fmt.Sscanf(args[0], "%d", &count); err != nil {
			return fmt.Errorf("invalid count %q", args[0])
		}
	}
	analyzer, _, err := setup()
	if err != nil {
		return err
	}
	defer analyzer.Close()
	defer logging.CloseAll()

	loaded, err := analyzer.Store().WarmupCache(count)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "warmed up %d signatures\n", loaded)
	return nil
}

func runDecay(cmd *cobra.Command, args []string) error {
	maxAge, _ := cmd.Flags().GetDuration("max-age")
	factor, _ := cmd.Flags().GetFloat64("factor")

	analyzer, _, err := setup()
	if err != nil {
		return err
	}
	defer analyzer.Close()
	defer logging.CloseAll()

	decayed, deleted, err := analyzer.Store().DecayOld(maxAge, factor)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "decayed %d, deleted %d\n", decayed, deleted)
	return nil
}

func runManifestCheck(cmd *cobra.Command, args []string) error {
	if args[0] != "check" {
		return fmt.Errorf("unknown manifest subcommand %q", args[0])
	}
	manifests, err := manifest.LoadDirectory(args[1])
	if err != nil {
		return err
	}
	for _, m := range manifests {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: priority %d, lane %s, enabled %v\n",
			m.Name, m.Priority, m.LaneName(), m.Enabled)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d manifests OK\n", len(manifests))
	return nil
}

func runFeedback(cmd *cobra.Command, args []string) error {
	accepted := args[1] == "accept"
	if !accepted && args[1] != "reject" {
		return fmt.Errorf("verdict must be accept or reject, got %q", args[1])
	}
	comment := ""
	if len(args) == 3 {
		comment = args[2]
	}

	analyzer, _, err := setup()
	if err != nil {
		return err
	}
	defer analyzer.Close()
	defer logging.CloseAll()

	if err := analyzer.RecordFeedback(args[0], accepted, comment); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "feedback recorded")
	return nil
}
