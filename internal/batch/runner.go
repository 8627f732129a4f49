package batch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// #region runner

// Runner distributes a fixed number of independent jobs across a bounded set
// of worker slots.
type Runner struct {
	cfg    Config
	job    JobFunc
	themes ThemeStore
	sleep  func(context.Context, time.Duration) error
}

// NewRunner validates cfg. themes may be nil, in which case the avoidance
// history starts empty and is not persisted.
func NewRunner(cfg Config, job JobFunc, themes ThemeStore) (*Runner, error) {
	if cfg.Jobs < 1 {
		return nil, fmt.Errorf("batch: jobs must be >= 1, got %d", cfg.Jobs)
	}
	if cfg.Parallelism < 1 {
		return nil, fmt.Errorf("batch: parallelism must be >= 1, got %d", cfg.Parallelism)
	}
	if cfg.Delay < 0 {
		return nil, fmt.Errorf("batch: negative delay %s", cfg.Delay)
	}
	if job == nil {
		return nil, fmt.Errorf("batch: nil job func")
	}
	return &Runner{cfg: cfg, job: job, themes: themes, sleep: sleepCtx}, nil
}

// Run executes every job and returns per-job outcomes. Job failures, panics
// included, are recorded and never stop sibling jobs. If ctx is canceled,
// jobs not yet started are marked canceled and ctx.Err() is returned along
// with the partial result, even when every job had already started.
// onProgress may be nil; it is called once per finished job, never
// concurrently.
func (r *Runner) Run(ctx context.Context, onProgress func(Progress)) (Result, error) {
	started := time.Now()
	res := Result{BatchID: uuid.NewString(), Jobs: make([]JobResult, r.cfg.Jobs)}
	for i := range res.Jobs {
		res.Jobs[i] = JobResult{Index: i, JobID: uuid.NewString(), Status: StatusCanceled}
	}

	var seed []string
	if r.themes != nil {
		var err error
		if seed, err = r.themes.Recent(ctx, r.cfg.HistorySize); err != nil {
			log.Printf("[BATCH] theme history unavailable, starting empty: %v", err)
		}
	}
	hist := newHistory(r.cfg.HistorySize, seed)

	queue := make(chan int, r.cfg.Jobs)
	for i := 0; i < r.cfg.Jobs; i++ {
		queue <- i
	}
	close(queue)

	slots := min(r.cfg.Parallelism, r.cfg.Jobs)
	log.Printf("[BATCH] %s: %d jobs across %d slots", res.BatchID, r.cfg.Jobs, slots)

	var (
		mu      sync.Mutex
		current int
	)
	exec := func(slot, idx int) {
		mu.Lock()
		spec := JobSpec{BatchID: res.BatchID, Index: idx, ID: res.Jobs[idx].JobID}
		mu.Unlock()
		spec.Avoid = hist.snapshot()

		t0 := time.Now()
		rep, err := runJob(ctx, r.job, spec)
		jr := JobResult{Index: idx, JobID: spec.ID, Duration: time.Since(t0)}
		if err != nil {
			jr.Status = StatusFailed
			jr.Error = err.Error()
			log.Printf("[BATCH] slot %d job %d (%s) failed: %v", slot, idx, spec.ID, err)
		} else {
			jr.Status = StatusCompleted
			jr.Theme = rep.Theme
			jr.TokensUsed = rep.TokensUsed
			hist.push(rep.Theme)
		}

		mu.Lock()
		res.Jobs[idx] = jr
		res.TotalTokensUsed += jr.TokensUsed
		if jr.Status == StatusCompleted {
			res.Completed++
		} else {
			res.Failed++
		}
		current++
		if onProgress != nil {
			onProgress(Progress{Current: current, Total: r.cfg.Jobs, Status: jr.Status, JobID: jr.JobID})
		}
		mu.Unlock()

		if jr.Status == StatusCompleted && r.themes != nil && jr.Theme != "" {
			if err := r.themes.Record(ctx, res.BatchID, jr.JobID, jr.Theme); err != nil {
				log.Printf("[BATCH] record theme for %s: %v", jr.JobID, err)
			}
		}
	}

	// Each slot's first index is taken here, before any job runs, so the
	// first min(parallelism, jobs) jobs start on distinct slots undelayed.
	var g errgroup.Group
	for slot := 0; slot < slots; slot++ {
		slot := slot
		first := <-queue
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			exec(slot, first)
			for idx := range queue {
				if ctx.Err() != nil {
					return nil
				}
				if r.cfg.Delay > 0 {
					if err := r.sleep(ctx, r.cfg.Delay); err != nil {
						return nil
					}
				}
				exec(slot, idx)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Canceled = r.cfg.Jobs - res.Completed - res.Failed
	res.Themes = hist.snapshot()
	res.Duration = time.Since(started)
	log.Printf("[BATCH] %s done: completed=%d failed=%d canceled=%d tokens=%d in %s",
		res.BatchID, res.Completed, res.Failed, res.Canceled, res.TotalTokensUsed, res.Duration.Round(time.Millisecond))

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// #endregion runner

// #region helpers

// runJob turns a panicking job into a failed one.
func runJob(ctx context.Context, fn JobFunc, spec JobSpec) (rep JobReport, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return fn(ctx, spec)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// #endregion helpers
