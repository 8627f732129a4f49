package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/storyforge/internal/pipeline"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Continue a job from its latest checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  resumeJob,
}

func resumeJob(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
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

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	out, err := pipe.Resume(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resume %s: %w", args[0], err)
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), out)
	}
	printOutcome(cmd.OutOrStdout(), out)
	return nil
}

func printOutcome(w io.Writer, out pipeline.Outcome) {
	fmt.Fprintln(w, headStyle.Render(fmt.Sprintf("job %s (%s)", out.JobID, out.Mode)))
	if out.Correction != nil && !out.Correction.Success {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("  %d rule violations remain", len(out.Correction.Remaining))))
	}
	if out.Retake != nil {
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  retakes=%d improved=%t score=%.2f",
			out.Retake.RetakeCount, out.Retake.Improved, out.Retake.FinalScore)))
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  theme=%q tokens=%d resumed=%t", out.Theme, out.TokensUsed, out.Resumed)))
	fmt.Fprintln(w, textStyle.Render(out.Text))
}
