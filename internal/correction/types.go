package correction

import "context"

// #region violation

// Violation is one detected rule breach in a text.
type Violation struct {
	Rule    string `json:"rule"`
	Excerpt string `json:"excerpt"`
	Message string `json:"message,omitempty"`
}

// #endregion violation

// #region interfaces

// Checker is the deterministic rule checker. It must be a pure function of text.
type Checker interface {
	Check(text string) []Violation
}

// Corrector produces one candidate revision that addresses violations.
// It returns the revised text and the tokens spent.
type Corrector interface {
	Correct(ctx context.Context, text string, violations []Violation) (string, int, error)
}

// #endregion interfaces

// #region result

// Result is the outcome of a correction run. OriginalViolations always holds
// the pre-loop violation set.
type Result struct {
	FinalText          string      `json:"final_text"`
	Attempts           int         `json:"attempts"`
	Success            bool        `json:"success"`
	TokensUsed         int         `json:"tokens_used"`
	OriginalViolations []Violation `json:"original_violations,omitempty"`
	Remaining          []Violation `json:"remaining,omitempty"`
}

// #endregion result

// #region config

// DefaultMaxAttempts bounds corrective generations per run.
const DefaultMaxAttempts = 3

// #endregion config
