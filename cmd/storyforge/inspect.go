package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/storyforge/internal/checkpoint"
	"github.com/danielpatrickdp/storyforge/internal/journal"
	"github.com/danielpatrickdp/storyforge/internal/pipeline"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <job-id>",
	Short: "Show a job's checkpoints, journal and result",
	Args:  cobra.ExactArgs(1),
	RunE:  inspectJob,
}

type inspection struct {
	JobID       string                  `json:"job_id"`
	Resumable   bool                    `json:"resumable"`
	Checkpoints []checkpoint.Checkpoint `json:"checkpoints"`
	Events      []journal.Entry         `json:"events"`
	Result      *pipeline.Outcome       `json:"result,omitempty"`
}

func inspectJob(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStores(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	jobID := args[0]
	in := inspection{JobID: jobID}

	if in.Resumable, err = st.ckpt.CanResume(ctx, jobID); err != nil {
		return err
	}
	if in.Checkpoints, err = st.ckpt.History(ctx, jobID); err != nil {
		return err
	}
	if in.Events, err = st.journal.ForJob(ctx, jobID); err != nil {
		return err
	}
	in.Result, err = st.results.Get(ctx, jobID)
	if err != nil && !errors.Is(err, pipeline.ErrNotFound) {
		return err
	}
	if in.Result == nil && len(in.Checkpoints) == 0 && len(in.Events) == 0 {
		return fmt.Errorf("job %s: %w", jobID, checkpoint.ErrNoSuchJob)
	}

	w := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(w, in)
	}

	fmt.Fprintln(w, headStyle.Render("job " + jobID))
	fmt.Fprintf(w, "  resumable: %t\n", in.Resumable)
	fmt.Fprintln(w, headStyle.Render("checkpoints"))
	for _, cp := range in.Checkpoints {
		fmt.Fprintf(w, "  %s  %-10s %s\n", cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.Phase, dimStyle.Render(string(cp.Progress)))
	}
	fmt.Fprintln(w, headStyle.Render("journal"))
	for _, e := range in.Events {
		fmt.Fprintf(w, "  %s  %-10s %-20s %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Phase, e.Decision, dimStyle.Render(e.Reason))
	}
	if in.Result != nil {
		printOutcome(w, *in.Result)
	}
	return nil
}
