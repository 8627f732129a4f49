package correction

import (
	"context"
	"log"
)

// #region loop

// Loop repairs a text against a Checker with at most maxAttempts corrective
// generations.
type Loop struct {
	checker     Checker
	corrector   Corrector
	maxAttempts int
}

// NewLoop creates a correction loop. maxAttempts <= 0 uses DefaultMaxAttempts.
func NewLoop(checker Checker, corrector Corrector, maxAttempts int) *Loop {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Loop{checker: checker, corrector: corrector, maxAttempts: maxAttempts}
}

// #endregion loop

// #region run

// Run checks text, merging initial into the first check only. Compliant input
// returns immediately without calling the corrector. A corrector error ends
// the run as a failed result; it is not returned as an error.
func (l *Loop) Run(ctx context.Context, text string, initial []Violation) Result {
	violations := merge(initial, l.checker.Check(text))
	if len(violations) == 0 {
		return Result{FinalText: text, Success: true}
	}

	original := append([]Violation(nil), violations...)
	res := Result{FinalText: text, OriginalViolations: original}
	current := text

	for res.Attempts < l.maxAttempts {
		if err := ctx.Err(); err != nil {
			log.Printf("[CORRECT] stopped after %d attempts: %v", res.Attempts, err)
			break
		}

		res.Attempts++
		candidate, tokens, err := l.corrector.Correct(ctx, current, violations)
		res.TokensUsed += tokens
		if err != nil {
			log.Printf("[CORRECT] attempt %d/%d generation failed: %v", res.Attempts, l.maxAttempts, err)
			break
		}

		current = candidate
		violations = l.checker.Check(current)
		log.Printf("[CORRECT] attempt %d/%d: %d violations remain", res.Attempts, l.maxAttempts, len(violations))
		if len(violations) == 0 {
			res.FinalText = current
			res.Success = true
			return res
		}
	}

	res.FinalText = current
	res.Remaining = violations
	return res
}

// #endregion run

// #region merge

// merge unions two violation lists, keeping first-seen order and dropping
// duplicates by rule and excerpt.
func merge(a, b []Violation) []Violation {
	seen := make(map[Violation]bool, len(a)+len(b))
	var out []Violation
	for _, list := range [][]Violation{a, b} {
		for _, v := range list {
			key := Violation{Rule: v.Rule, Excerpt: v.Excerpt}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, v)
		}
	}
	return out
}

// #endregion merge
