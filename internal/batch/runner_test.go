package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRunner(t *testing.T, cfg Config, job JobFunc, themes ThemeStore) *Runner {
	t.Helper()
	r, err := NewRunner(cfg, job, themes)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func TestRun_OneFailingJob(t *testing.T) {
	job := func(ctx context.Context, spec JobSpec) (JobReport, error) {
		if spec.Index == 3 {
			return JobReport{}, errors.New("generation service unavailable")
		}
		return JobReport{Theme: fmt.Sprintf("theme %d", spec.Index), TokensUsed: 10}, nil
	}
	r := newTestRunner(t, Config{Jobs: 5, Parallelism: 2, HistorySize: 10}, job, nil)

	var calls []Progress
	res, err := r.Run(context.Background(), func(p Progress) { calls = append(calls, p) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Completed != 4 || res.Failed != 1 || res.Canceled != 0 {
		t.Errorf("completed=%d failed=%d canceled=%d", res.Completed, res.Failed, res.Canceled)
	}
	if len(calls) != 5 {
		t.Fatalf("progress calls = %d, want 5", len(calls))
	}
	for i, p := range calls {
		if p.Current != i+1 || p.Total != 5 {
			t.Errorf("progress %d = %+v", i, p)
		}
	}
	failed := res.Jobs[3]
	if failed.Status != StatusFailed || failed.Error != "generation service unavailable" {
		t.Errorf("job 3 = %+v", failed)
	}
	if res.TotalTokensUsed != 40 {
		t.Errorf("tokens = %d, want 40", res.TotalTokensUsed)
	}
	if res.BatchID == "" || res.Jobs[0].JobID == "" || res.Jobs[0].JobID == res.Jobs[1].JobID {
		t.Errorf("ids not assigned: %+v", res.Jobs[:2])
	}
}

func TestRun_BoundedParallelism(t *testing.T) {
	var inFlight, peak atomic.Int32
	job := func(ctx context.Context, spec JobSpec) (JobReport, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return JobReport{}, nil
	}
	r := newTestRunner(t, Config{Jobs: 9, Parallelism: 3}, job, nil)
	if _, err := r.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak.Load())
	}
}

func TestRun_DelaySkippedForFirstJobPerSlot(t *testing.T) {
	job := func(ctx context.Context, spec JobSpec) (JobReport, error) { return JobReport{}, nil }
	r := newTestRunner(t, Config{Jobs: 5, Parallelism: 2, Delay: time.Second}, job, nil)

	var sleeps atomic.Int32
	r.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps.Add(1)
		return nil
	}
	if _, err := r.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if got := sleeps.Load(); got != 3 {
		t.Errorf("sleeps = %d, want 3", got)
	}
}

func TestRun_MoreSlotsThanJobs(t *testing.T) {
	var sleeps atomic.Int32
	job := func(ctx context.Context, spec JobSpec) (JobReport, error) { return JobReport{}, nil }
	r := newTestRunner(t, Config{Jobs: 2, Parallelism: 8, Delay: time.Second}, job, nil)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps.Add(1)
		return nil
	}
	res, _ := r.Run(context.Background(), nil)
	if res.Completed != 2 || sleeps.Load() != 0 {
		t.Errorf("completed=%d sleeps=%d", res.Completed, sleeps.Load())
	}
}

func TestRun_HistoryRollsAndFeedsLaterJobs(t *testing.T) {
	var seen [][]string
	job := func(ctx context.Context, spec JobSpec) (JobReport, error) {
		seen = append(seen, spec.Avoid)
		return JobReport{Theme: fmt.Sprintf("t%d", spec.Index)}, nil
	}
	r := newTestRunner(t, Config{Jobs: 4, Parallelism: 1, HistorySize: 2}, job, nil)

	res, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(seen[0]) != 0 {
		t.Errorf("first job avoid = %v", seen[0])
	}
	if got := seen[3]; len(got) != 2 || got[0] != "t1" || got[1] != "t2" {
		t.Errorf("job 3 avoid = %v, want [t1 t2]", got)
	}
	if len(res.Themes) != 2 || res.Themes[1] != "t3" {
		t.Errorf("themes = %v", res.Themes)
	}
}

func TestRun_SharedHistoryNoLostUpdates(t *testing.T) {
	job := func(ctx context.Context, spec JobSpec) (JobReport, error) {
		return JobReport{Theme: fmt.Sprintf("t%d", spec.Index), TokensUsed: 1}, nil
	}
	r := newTestRunner(t, Config{Jobs: 50, Parallelism: 8, HistorySize: 100}, job, nil)
	res, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Themes) != 50 || res.TotalTokensUsed != 50 || res.Completed != 50 {
		t.Errorf("themes=%d tokens=%d completed=%d", len(res.Themes), res.TotalTokensUsed, res.Completed)
	}
}

func TestRun_ThemeMemoryAcrossBatches(t *testing.T) {
	mem, err := NewThemeMemory(newTestDB(t))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	mem.Record(ctx, "old-batch", "old-job", "lighthouse")

	var mu sync.Mutex
	var firstAvoid []string
	job := func(ctx context.Context, spec JobSpec) (JobReport, error) {
		mu.Lock()
		if spec.Index == 0 {
			firstAvoid = spec.Avoid
		}
		mu.Unlock()
		return JobReport{Theme: "orchard"}, nil
	}
	r := newTestRunner(t, Config{Jobs: 1, Parallelism: 1, HistorySize: 5}, job, mem)
	if _, err := r.Run(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if len(firstAvoid) != 1 || firstAvoid[0] != "lighthouse" {
		t.Errorf("avoid = %v", firstAvoid)
	}
	recent, err := mem.Recent(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0] != "lighthouse" || recent[1] != "orchard" {
		t.Errorf("recent = %v", recent)
	}
}

func TestRun_PanicRecordedAsFailure(t *testing.T) {
	job := func(ctx context.Context, spec JobSpec) (JobReport, error) {
		if spec.Index == 0 {
			panic("nil moderator")
		}
		return JobReport{}, nil
	}
	r := newTestRunner(t, Config{Jobs: 2, Parallelism: 1}, job, nil)
	res, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Completed != 1 {
		t.Errorf("failed=%d completed=%d", res.Failed, res.Completed)
	}
}

func TestRun_CancelMarksRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job := func(ctx context.Context, spec JobSpec) (JobReport, error) {
		cancel()
		return JobReport{}, nil
	}
	r := newTestRunner(t, Config{Jobs: 4, Parallelism: 1}, job, nil)

	res, err := r.Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if res.Completed != 1 || res.Canceled != 3 {
		t.Errorf("completed=%d canceled=%d", res.Completed, res.Canceled)
	}
	if res.Jobs[3].Status != StatusCanceled {
		t.Errorf("job 3 = %s", res.Jobs[3].Status)
	}
}

func TestNewRunner_Validation(t *testing.T) {
	ok := func(ctx context.Context, spec JobSpec) (JobReport, error) { return JobReport{}, nil }
	cases := map[string]Config{
		"no jobs":        {Jobs: 0, Parallelism: 1},
		"no parallelism": {Jobs: 1, Parallelism: 0},
		"negative delay": {Jobs: 1, Parallelism: 1, Delay: -time.Second},
	}
	for name, cfg := range cases {
		if _, err := NewRunner(cfg, ok, nil); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := NewRunner(DefaultConfig(), nil, nil); err == nil {
		t.Error("nil job: expected error")
	}
}

func TestRun_EverySlotStartsWithoutDelay(t *testing.T) {
	var sleeps atomic.Int32
	job := func(ctx context.Context, spec JobSpec) (JobReport, error) {
		return JobReport{}, errors.New("completion service down")
	}
	r := newTestRunner(t, Config{Jobs: 3, Parallelism: 3, Delay: time.Second}, job, nil)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps.Add(1)
		return nil
	}
	for i := 0; i < 20; i++ {
		sleeps.Store(0)
		res, err := r.Run(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Failed != 3 {
			t.Fatalf("run %d: failed = %d, want 3", i, res.Failed)
		}
		if got := sleeps.Load(); got != 0 {
			t.Fatalf("run %d: sleeps = %d, want 0 with one job per slot", i, got)
		}
	}
}

func TestRun_CancelDuringLastJobReportsInterruption(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job := func(ctx context.Context, spec JobSpec) (JobReport, error) {
		cancel()
		return JobReport{}, ctx.Err()
	}
	r := newTestRunner(t, Config{Jobs: 1, Parallelism: 1}, job, nil)

	res, err := r.Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Failed != 1 || res.Canceled != 0 {
		t.Errorf("failed=%d canceled=%d", res.Failed, res.Canceled)
	}
}
