package completion

import (
	"context"
	"errors"
	"time"
)

// #region errors

// ErrMalformedOutput is returned when the service answers with text that does
// not decode into the requested structure.
var ErrMalformedOutput = errors.New("completion: malformed output")

// #endregion errors

// #region options

// Options tunes a single generation call. Zero values defer to the service.
type Options struct {
	System      string
	MaxTokens   int
	Temperature float32
}

// ChoiceMode controls whether the model may answer in plain text instead of
// selecting a capability.
type ChoiceMode string

const (
	ChoiceAuto     ChoiceMode = "auto"
	ChoiceRequired ChoiceMode = "required"
)

// Capability is a named action the model may select in GenerateWithChoice.
// Parameters is a JSON schema for the arguments object.
type Capability struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// #endregion options

// #region results

// Response is the text of one generation plus the tokens it consumed.
type Response struct {
	Text   string
	Tokens int
}

// Choice is the outcome of GenerateWithChoice. Capability is empty when the
// model answered in text.
type Choice struct {
	Capability string
	Arguments  map[string]any
	Text       string
	Tokens     int
}

// #endregion results

// #region service

// Service is the text-generation capability consumed by the orchestration core.
type Service interface {
	Generate(ctx context.Context, prompt string, opts Options) (Response, error)
	GenerateStructured(ctx context.Context, prompt string, schema map[string]any, out any) (Response, error)
	GenerateWithChoice(ctx context.Context, prompt string, caps []Capability, mode ChoiceMode) (Choice, error)
	TokensUsed() int64
}

// #endregion service

// #region retry-config

// RetryConfig bounds the transient-error retry loop wrapped around every call.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns 4 attempts with 500ms..8s exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// #endregion retry-config
