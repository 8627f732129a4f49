package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/storyforge/internal/batch"
	"github.com/danielpatrickdp/storyforge/internal/pipeline"
)

var (
	runJobs        int
	runParallelism int
	runMode        string
	runBrief       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a batch of generation jobs",
	Long: `Run executes batch.jobs jobs with at most batch.parallelism in flight.

Each job is steered away from the themes of recent jobs. Failed jobs are
reported in the summary and do not stop the batch. Interrupting the batch
leaves unstarted jobs canceled and in-flight jobs resumable.`,
	RunE: runBatch,
}

func init() {
	runCmd.Flags().IntVarP(&runJobs, "jobs", "n", 0, "number of jobs (overrides config)")
	runCmd.Flags().IntVarP(&runParallelism, "parallelism", "p", 0, "concurrent jobs (overrides config)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "tournament or collaboration (overrides config)")
	runCmd.Flags().StringVar(&runBrief, "brief", "", "content brief (overrides config)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runJobs > 0 {
		cfg.Batch.Jobs = runJobs
	}
	if runParallelism > 0 {
		cfg.Batch.Parallelism = runParallelism
	}
	if runMode != "" {
		cfg.Mode = pipeline.Mode(runMode)
	}
	if runBrief != "" {
		cfg.Brief = runBrief
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := openStores(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	pipe, client, err := buildPipeline(cfg, st)
	if err != nil {
		return err
	}
	defer client.Close()

	runner, err := batch.NewRunner(cfg.Batch, pipe.JobFunc(cfg.Mode, cfg.Brief), st.themes)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	log.Printf("[BATCH] mode=%s jobs=%d parallelism=%d db=%s", cfg.Mode, cfg.Batch.Jobs, cfg.Batch.Parallelism, cfg.DBPath)
	res, err := runner.Run(ctx, progressTo(cmd.ErrOrStderr()))
	if werr := writeBatchResult(cmd.OutOrStdout(), res, jsonOut); werr != nil {
		return werr
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("batch interrupted: %d jobs canceled", res.Canceled)
	}
	return err
}
