package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ocr-enricher/constants"
	"github.com/joseph-ayodele/ocr-enricher/internal/core"
	"github.com/joseph-ayodele/ocr-enricher/internal/progress"
)

var runFlags struct {
	strategy string
	prompt   string
	model    string
	noCache  bool
}

var runCmd = &cobra.Command{
	Use:   "run <file.pdf>",
	Short: "Process one PDF in the foreground and print the result",
	Long:  "Run a single job without the servers. Progress goes to stderr and the final text to stdout.",
	Args:  cobra.ExactArgs(1),
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.strategy, "strategy", "s", "", "extraction strategy (default from ocr.default_strategy)")
	runCmd.Flags().StringVarP(&runFlags.prompt, "prompt", "p", "", "prompt prepended to the extracted text")
	runCmd.Flags().StringVarP(&runFlags.model, "model", "m", "", "LLM model; required for tags and summary")
	runCmd.Flags().BoolVar(&runFlags.noCache, "no-cache", false, "skip the extracted-text cache")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if !constants.IsAllowedExt(filepath.Ext(args[0])) {
		return fmt.Errorf("%s: not a PDF file", args[0])
	}
	document, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	strategy := runFlags.strategy
	if strategy == "" {
		strategy = cfg.OCR.DefaultStrategy
	}
	id, _ := constants.CanonicalStrategy(strategy)

	stderr := cmd.ErrOrStderr()
	sink := progress.SinkFunc(func(_ context.Context, r progress.Report) {
		if r.Phase == constants.PhaseGenerating && r.ChunkIndex > 0 {
			return
		}
		fmt.Fprintf(stderr, "[%3d%%] %-10s %s\n", r.Percent, r.Phase, r.Message)
	})

	result, err := runJob(ctx, a.proc, core.JobRequest{
		Document:     document,
		Strategy:     id,
		CacheEnabled: cfg.Cache.Enabled && !runFlags.noCache,
		Prompt:       runFlags.prompt,
		Model:        runFlags.model,
	}, sink, cfg.LLM.PullTimeout, logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}

// runJob runs one job, then waits up to settle for any model pull it started,
// since the process exits as soon as the command returns.
func runJob(ctx context.Context, proc *core.Processor, req core.JobRequest, sink progress.Sink, settle time.Duration, logger *slog.Logger) (string, error) {
	result, err := proc.Run(ctx, ulid.Make().String(), req, sink)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settle)
	defer cancel()
	if werr := proc.Provisioner().Wait(wctx); werr != nil {
		logger.Warn("model pull still running at exit", "error", werr)
	}
	return result, err
}
