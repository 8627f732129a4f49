package pipeline

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/storyforge/internal/batch"
	"github.com/danielpatrickdp/storyforge/internal/checkpoint"
	"github.com/danielpatrickdp/storyforge/internal/journal"
)

// #region pipeline-struct

// Deps wires the stages and stores. Arena or Session may be nil when the
// corresponding mode is never used; Journal and Results are optional.
type Deps struct {
	Arena       TournamentRunner
	Session     SessionRunner
	Correction  CorrectionRunner
	Retake      RetakeRunner
	Checkpoints *checkpoint.Manager
	Journal     *journal.Journal
	Results     *ResultStore
}

// Config tunes the pipeline.
type Config struct {
	// DiscardOnComplete drops a job's checkpoints once its result is stored.
	DiscardOnComplete bool `yaml:"discard_on_complete"`
}

// Pipeline runs a job through generation, correction and retake, saving a
// checkpoint after each phase.
type Pipeline struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

// New checks that the mandatory stages are present.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Correction == nil || deps.Retake == nil {
		return nil, fmt.Errorf("pipeline: correction and retake stages are required")
	}
	if deps.Checkpoints == nil {
		return nil, fmt.Errorf("pipeline: checkpoint manager is required")
	}
	if deps.Arena == nil && deps.Session == nil {
		return nil, fmt.Errorf("pipeline: need a tournament arena or a collaboration session")
	}
	return &Pipeline{deps: deps, cfg: cfg, now: time.Now}, nil
}

type step struct {
	phase string
	run   func(context.Context, *jobState) error
}

func (p *Pipeline) steps() []step {
	return []step{
		{PhaseGenerated, p.generate},
		{PhaseCorrected, p.correct},
		{PhaseRetaken, p.retake},
	}
}

// #endregion pipeline-struct

// #region run

// Run executes job from the start. A missing ID is assigned.
func (p *Pipeline) Run(ctx context.Context, job Job) (Outcome, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Mode == "" {
		job.Mode = ModeTournament
	}
	log.Printf("[PIPE] job %s start mode=%s", job.ID, job.Mode)
	p.record(ctx, job.ID, "", journal.DecisionStarted, string(job.Mode), map[string]any{"avoid": job.Avoid})
	return p.advance(ctx, &jobState{Job: job}, 0, false)
}

// Resume continues a job from its latest checkpoint. A job with no
// checkpoints returns checkpoint.ErrNoSuchJob.
func (p *Pipeline) Resume(ctx context.Context, jobID string) (Outcome, error) {
	rs, err := p.deps.Checkpoints.GetResumeState(ctx, jobID)
	if err != nil {
		return Outcome{}, err
	}
	var st jobState
	if err := rs.Decode(&st); err != nil {
		return Outcome{}, err
	}

	steps := p.steps()
	done := slices.IndexFunc(steps, func(s step) bool { return s.phase == rs.Phase })
	if done < 0 {
		return Outcome{}, fmt.Errorf("pipeline: job %s checkpointed at unknown phase %q", jobID, rs.Phase)
	}
	log.Printf("[PIPE] job %s resume after phase=%s", jobID, rs.Phase)
	p.record(ctx, jobID, rs.Phase, journal.DecisionResumed, "", nil)
	return p.advance(ctx, &st, done+1, true)
}

func (p *Pipeline) advance(ctx context.Context, st *jobState, from int, resumed bool) (Outcome, error) {
	steps := p.steps()
	for i := from; i < len(steps); i++ {
		s := steps[i]
		if err := s.run(ctx, st); err != nil {
			return Outcome{}, p.fail(ctx, st, s.phase, err)
		}
		prog := progress{Step: i + 1, Of: len(steps), Tokens: st.Tokens}
		if _, err := p.deps.Checkpoints.SaveCheckpoint(ctx, st.Job.ID, s.phase, st, prog); err != nil {
			return Outcome{}, p.fail(ctx, st, s.phase, err)
		}
		p.record(ctx, st.Job.ID, s.phase, journal.DecisionPhaseDone, "", prog)
	}
	return p.finish(ctx, st, resumed)
}

func (p *Pipeline) finish(ctx context.Context, st *jobState, resumed bool) (Outcome, error) {
	out := Outcome{
		JobID:         st.Job.ID,
		Mode:          st.Job.Mode,
		Prompt:        st.Job.Prompt,
		Text:          st.Text,
		Theme:         ThemeOf(st.Text),
		Tournament:    st.Tournament,
		Collaboration: st.Collaboration,
		Correction:    st.Correction,
		Retake:        st.Retake,
		TokensUsed:    st.Tokens,
		Resumed:       resumed,
		CompletedAt:   p.now().UTC(),
	}
	if p.deps.Results != nil {
		if err := p.deps.Results.Save(ctx, out); err != nil {
			return Outcome{}, p.fail(ctx, st, PhaseRetaken, err)
		}
	}
	if p.cfg.DiscardOnComplete {
		if err := p.deps.Checkpoints.Discard(ctx, st.Job.ID); err != nil {
			log.Printf("[PIPE] job %s: %v", st.Job.ID, err)
		}
	}
	p.record(ctx, st.Job.ID, PhaseRetaken, journal.DecisionCompleted, out.Theme, map[string]int{"tokens": out.TokensUsed})
	log.Printf("[PIPE] job %s done theme=%q tokens=%d", out.JobID, out.Theme, out.TokensUsed)
	return out, nil
}

func (p *Pipeline) fail(ctx context.Context, st *jobState, phase string, err error) error {
	log.Printf("[PIPE] job %s failed in %s: %v", st.Job.ID, phase, err)
	p.record(context.WithoutCancel(ctx), st.Job.ID, phase, journal.DecisionFailed, err.Error(), nil)
	return fmt.Errorf("job %s %s: %w", st.Job.ID, phase, err)
}

// #endregion run

// #region phases

func (p *Pipeline) generate(ctx context.Context, st *jobState) error {
	switch st.Job.Mode {
	case ModeTournament:
		if p.deps.Arena == nil {
			return fmt.Errorf("no tournament arena configured")
		}
		res, err := p.deps.Arena.Run(ctx, st.Job.Prompt)
		if err != nil {
			return err
		}
		st.Tournament = &res
		st.Text = res.ChampionText
		st.Tokens += res.TotalTokensUsed

	case ModeCollaboration:
		if p.deps.Session == nil {
			return fmt.Errorf("no collaboration session configured")
		}
		res, err := p.deps.Session.Run(ctx, st.Job.Prompt)
		if err != nil {
			return err
		}
		for _, r := range res.Rounds {
			decision := journal.DecisionRoundDone
			if r.Degraded {
				decision = journal.DecisionModeratorDegraded
			}
			p.record(ctx, st.Job.ID, string(r.Phase), decision, r.ModeratorSummary,
				map[string]int{"round": r.Number, "actions": len(r.Actions)})
		}
		st.Collaboration = &res
		st.Text = res.FinalText
		st.Tokens += res.TotalTokensUsed

	default:
		return fmt.Errorf("unknown mode %q", st.Job.Mode)
	}

	if strings.TrimSpace(st.Text) == "" {
		return fmt.Errorf("generation produced no text")
	}
	return nil
}

func (p *Pipeline) correct(ctx context.Context, st *jobState) error {
	res := p.deps.Correction.Run(ctx, st.Text, nil)
	st.Correction = &res
	st.Text = res.FinalText
	st.Tokens += res.TokensUsed
	if !res.Success {
		p.record(ctx, st.Job.ID, PhaseCorrected, journal.DecisionCorrectionFailed,
			fmt.Sprintf("%d violations remain after %d attempts", len(res.Remaining), res.Attempts), res.Remaining)
	}
	return nil
}

func (p *Pipeline) retake(ctx context.Context, st *jobState) error {
	res := p.deps.Retake.Run(ctx, st.Text)
	st.Retake = &res
	st.Text = res.FinalText
	st.Tokens += res.TokensUsed
	if res.RetakeCount > 0 && !res.Improved {
		p.record(ctx, st.Job.ID, PhaseRetaken, journal.DecisionRetakeReverted,
			fmt.Sprintf("%d retakes, none kept", res.RetakeCount), res.Scores)
	}
	return nil
}

// #endregion phases

// #region batch-adapter

// JobFunc adapts the pipeline to the batch runner. Every job gets brief plus
// the batch's recent themes to avoid.
func (p *Pipeline) JobFunc(mode Mode, brief string) batch.JobFunc {
	return func(ctx context.Context, spec batch.JobSpec) (batch.JobReport, error) {
		out, err := p.Run(ctx, Job{
			ID:     spec.ID,
			Index:  spec.Index,
			Prompt: PromptWithAvoid(brief, spec.Avoid),
			Mode:   mode,
			Avoid:  spec.Avoid,
		})
		if err != nil {
			return batch.JobReport{}, err
		}
		return batch.JobReport{Theme: out.Theme, TokensUsed: out.TokensUsed}, nil
	}
}

// #endregion batch-adapter

// #region journal

// record writes to the journal when one is configured. Journal failures are
// logged and otherwise ignored.
func (p *Pipeline) record(ctx context.Context, jobID, phase, decision, reason string, detail any) {
	if p.deps.Journal == nil {
		return
	}
	if err := p.deps.Journal.Record(ctx, jobID, phase, decision, reason, detail); err != nil {
		log.Printf("[PIPE] journal %s/%s: %v", jobID, decision, err)
	}
}

// #endregion journal
