package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/danielpatrickdp/storyforge/internal/batch"
)

func TestBatchJSONOutputIsParseable(t *testing.T) {
	var stdout, stderr bytes.Buffer
	res := batch.Result{
		BatchID:   "b-1",
		Completed: 1,
		Failed:    1,
		Jobs: []batch.JobResult{
			{Index: 0, JobID: "job-a", Status: batch.StatusCompleted, Theme: "salt harbor"},
			{Index: 1, JobID: "job-b", Status: batch.StatusFailed, Error: "unavailable"},
		},
	}

	progress := progressTo(&stderr)
	for i, j := range res.Jobs {
		progress(batch.Progress{Current: i + 1, Total: len(res.Jobs), Status: j.Status, JobID: j.JobID})
	}
	if err := writeBatchResult(&stdout, res, true); err != nil {
		t.Fatalf("writeBatchResult: %v", err)
	}

	var got batch.Result
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout.String())
	}
	if got.BatchID != "b-1" || len(got.Jobs) != 2 || got.Jobs[1].Error != "unavailable" {
		t.Errorf("decoded = %+v", got)
	}
	for _, id := range []string{"job-a", "job-b"} {
		if !strings.Contains(stderr.String(), id) {
			t.Errorf("progress for %s missing from stderr: %q", id, stderr.String())
		}
	}
}

func TestBatchSummaryListsEveryJob(t *testing.T) {
	var out bytes.Buffer
	res := batch.Result{
		BatchID: "b-2",
		Jobs: []batch.JobResult{
			{Index: 0, JobID: "job-a", Status: batch.StatusCompleted, Theme: "salt harbor"},
			{Index: 1, JobID: "job-b", Status: batch.StatusCanceled},
		},
	}
	if err := writeBatchResult(&out, res, false); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"b-2", "job-a", "salt harbor", "job-b"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, out.String())
		}
	}
}
