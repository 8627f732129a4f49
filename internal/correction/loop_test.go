package correction

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// bannedWordChecker flags every occurrence of each word.
type bannedWordChecker struct {
	words []string
}

func (c bannedWordChecker) Check(text string) []Violation {
	var out []Violation
	for _, w := range c.words {
		if strings.Contains(text, w) {
			out = append(out, Violation{Rule: "forbidden", Excerpt: w})
		}
	}
	return out
}

type scriptedCorrector struct {
	calls   int
	fix     func(text string) string
	err     error
	tokens  int
	lastArg []Violation
}

func (s *scriptedCorrector) Correct(_ context.Context, text string, v []Violation) (string, int, error) {
	s.calls++
	s.lastArg = v
	if s.err != nil {
		return "", s.tokens, s.err
	}
	return s.fix(text), s.tokens, nil
}

func TestRun_CompliantIsNoOp(t *testing.T) {
	corr := &scriptedCorrector{fix: func(s string) string { return s }}
	loop := NewLoop(bannedWordChecker{words: []string{"suddenly"}}, corr, 3)

	res := loop.Run(context.Background(), "The door opened.", nil)

	if !res.Success || res.Attempts != 0 || res.TokensUsed != 0 {
		t.Fatalf("expected zero-attempt success, got %+v", res)
	}
	if corr.calls != 0 {
		t.Fatalf("expected no corrector calls, got %d", corr.calls)
	}
	if res.FinalText != "The door opened." {
		t.Fatalf("text changed: %q", res.FinalText)
	}
}

func TestRun_FixesOnSecondAttempt(t *testing.T) {
	corr := &scriptedCorrector{tokens: 7}
	corr.fix = func(s string) string {
		if corr.calls == 1 {
			return strings.Replace(s, "suddenly", "very", 1)
		}
		return strings.ReplaceAll(s, "very", "")
	}
	loop := NewLoop(bannedWordChecker{words: []string{"suddenly", "very"}}, corr, 3)

	res := loop.Run(context.Background(), "It was suddenly dark.", nil)

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Attempts != 2 || res.TokensUsed != 14 {
		t.Fatalf("expected 2 attempts / 14 tokens, got %d / %d", res.Attempts, res.TokensUsed)
	}
	if strings.Contains(res.FinalText, "very") {
		t.Fatalf("final text still non-compliant: %q", res.FinalText)
	}
}

func TestRun_ExhaustsAndKeepsOriginalViolations(t *testing.T) {
	for _, max := range []int{1, 2, 5} {
		corr := &scriptedCorrector{fix: func(string) string { return "still very bad" }, tokens: 3}
		loop := NewLoop(bannedWordChecker{words: []string{"suddenly", "very"}}, corr, max)

		res := loop.Run(context.Background(), "suddenly", nil)

		if res.Success {
			t.Fatalf("max=%d: expected failure", max)
		}
		if res.Attempts != max || corr.calls != max {
			t.Fatalf("max=%d: expected %d attempts, got %d (calls %d)", max, max, res.Attempts, corr.calls)
		}
		want := []Violation{{Rule: "forbidden", Excerpt: "suddenly"}}
		if !reflect.DeepEqual(res.OriginalViolations, want) {
			t.Fatalf("max=%d: original violations = %+v, want %+v", max, res.OriginalViolations, want)
		}
		if len(res.Remaining) != 1 || res.Remaining[0].Excerpt != "very" {
			t.Fatalf("max=%d: remaining = %+v", max, res.Remaining)
		}
		if res.TokensUsed != 3*max {
			t.Fatalf("max=%d: tokens = %d", max, res.TokensUsed)
		}
	}
}

func TestRun_MergesInitialViolationsOnce(t *testing.T) {
	corr := &scriptedCorrector{fix: func(string) string { return "clean" }}
	loop := NewLoop(bannedWordChecker{words: []string{"suddenly"}}, corr, 3)

	initial := []Violation{
		{Rule: "simile", Excerpt: "like a ghost"},
		{Rule: "forbidden", Excerpt: "suddenly"},
	}
	res := loop.Run(context.Background(), "suddenly, like a ghost", initial)

	if !res.Success || res.Attempts != 1 {
		t.Fatalf("expected one-attempt success, got %+v", res)
	}
	if len(res.OriginalViolations) != 2 {
		t.Fatalf("expected merged, de-duplicated violations, got %+v", res.OriginalViolations)
	}
	if len(corr.lastArg) != 2 {
		t.Fatalf("corrector should see merged violations, got %+v", corr.lastArg)
	}
}

func TestRun_InitialViolationsOnCleanText(t *testing.T) {
	corr := &scriptedCorrector{fix: func(s string) string { return s + " revised" }}
	loop := NewLoop(bannedWordChecker{}, corr, 3)

	res := loop.Run(context.Background(), "text", []Violation{{Rule: "external", Excerpt: "x"}})

	if !res.Success || res.Attempts != 1 {
		t.Fatalf("expected caller violations to force one correction, got %+v", res)
	}
}

func TestRun_CorrectorErrorEndsRun(t *testing.T) {
	corr := &scriptedCorrector{err: errors.New("service down"), tokens: 0}
	loop := NewLoop(bannedWordChecker{words: []string{"suddenly"}}, corr, 3)

	res := loop.Run(context.Background(), "suddenly", nil)

	if res.Success || res.Attempts != 1 {
		t.Fatalf("expected single failed attempt, got %+v", res)
	}
	if res.FinalText != "suddenly" {
		t.Fatalf("text must be unchanged, got %q", res.FinalText)
	}
}
