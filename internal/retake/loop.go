package retake

import (
	"context"
	"log"
)

// #region loop

// Loop improves a text against a judge-scored threshold.
type Loop struct {
	judge  Judge
	writer Writer
	config Config
}

// NewLoop creates a retake loop. A zero Config gets DefaultConfig, and a zero
// Threshold alone gets the default threshold; an explicit MaxRetakes of 0
// with a threshold set disables retakes.
func NewLoop(judge Judge, writer Writer, config Config) *Loop {
	def := DefaultConfig()
	if config == (Config{}) {
		config = def
	}
	if config.Threshold <= 0 {
		config.Threshold = def.Threshold
	}
	if config.MaxRetakes < 0 {
		config.MaxRetakes = 0
	}
	return &Loop{judge: judge, writer: writer, config: config}
}

// #endregion loop

// #region run

// Run scores text and requests retakes while the score is below threshold.
// A retake that does not strictly beat the score before it is discarded and
// the loop stops, so the returned text never scores lower than the input.
// Judge and writer failures end the run with the best text so far.
func (l *Loop) Run(ctx context.Context, text string) Result {
	res := Result{FinalText: text}

	score, err := l.judge.Score(ctx, text)
	res.TokensUsed += score.Tokens
	if err != nil {
		log.Printf("[RETAKE] initial scoring failed, keeping text: %v", err)
		return res
	}
	res.Scores = append(res.Scores, score.Value)
	res.FinalScore = score.Value

	for i := 0; i < l.config.MaxRetakes; i++ {
		if score.Value >= l.config.Threshold {
			log.Printf("[RETAKE] score %.2f >= %.2f, no retake needed", score.Value, l.config.Threshold)
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}

		if score.Feedback != "" {
			res.Feedback = append(res.Feedback, score.Feedback)
		}
		candidate, tokens, err := l.writer.Retake(ctx, res.FinalText, append([]string(nil), res.Feedback...))
		res.TokensUsed += tokens
		if err != nil {
			log.Printf("[RETAKE] retake %d failed: %v", i+1, err)
			break
		}
		res.RetakeCount++

		next, err := l.judge.Score(ctx, candidate)
		res.TokensUsed += next.Tokens
		if err != nil {
			log.Printf("[RETAKE] scoring retake %d failed, reverting: %v", i+1, err)
			break
		}
		res.Scores = append(res.Scores, next.Value)

		if next.Value <= score.Value {
			log.Printf("[RETAKE] retake %d scored %.2f, not above %.2f: reverted", i+1, next.Value, score.Value)
			break
		}

		log.Printf("[RETAKE] retake %d kept: %.2f -> %.2f", i+1, score.Value, next.Value)
		res.FinalText = candidate
		res.FinalScore = next.Value
		res.Improved = true
		score = next
	}

	return res
}

// #endregion run
