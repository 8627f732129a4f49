package retake

import "context"

// #region interfaces

// Score is a judge's verdict on one text.
type Score struct {
	Value    float64
	Feedback string
	Tokens   int
}

// Judge scores a text in [0,1] with qualitative feedback.
type Judge interface {
	Score(ctx context.Context, text string) (Score, error)
}

// Writer produces a retake of text given every critique gathered so far,
// oldest first.
type Writer interface {
	Retake(ctx context.Context, text string, feedback []string) (string, int, error)
}

// #endregion interfaces

// #region config

// Config bounds the retake loop.
type Config struct {
	MaxRetakes int     // retake generations per run
	Threshold  float64 // score at or above which no retake is requested
}

// DefaultConfig returns 2 retakes against a 0.75 threshold.
func DefaultConfig() Config {
	return Config{MaxRetakes: 2, Threshold: 0.75}
}

// #endregion config

// #region result

// Result is the outcome of a retake run. RetakeCount includes reverted
// retakes; Improved is true only if at least one retake was kept.
type Result struct {
	FinalText   string    `json:"final_text"`
	RetakeCount int       `json:"retake_count"`
	Improved    bool      `json:"improved"`
	TokensUsed  int       `json:"tokens_used"`
	Scores      []float64 `json:"scores"`
	Feedback    []string  `json:"feedback,omitempty"`
	FinalScore  float64   `json:"final_score"`
}

// #endregion result
