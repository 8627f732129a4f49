package rules

// #region imports
import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/storyforge/internal/correction"
)

// #endregion

// #region rule-names

const (
	RuleForbiddenWord  = "forbidden_word"
	RuleSimile         = "simile"
	RuleAssistantVoice = "assistant_voice"
	RuleRepetition     = "repetition"
)

// #endregion

// #region assistant-patterns

// assistantPatterns are phrases that betray a chat assistant rather than
// a narrator.
var assistantPatterns = []string{
	"as an ai",
	"as a language model",
	"i cannot",
	"i can't help",
	"i'd be happy to help",
	"let me know if",
	"feel free to ask",
	"here is a story",
	"here's a story",
	"i hope you enjoy",
}

// #endregion

// #region ruleset

// RuleSet is the compliance configuration, usually loaded from YAML.
type RuleSet struct {
	ForbiddenWords []string `yaml:"forbidden_words"`
	Similes        bool     `yaml:"similes"`
	AssistantVoice bool     `yaml:"assistant_voice"`
	// MaxRepeats is how many times a sentence may occur before it is flagged.
	// Zero disables the check.
	MaxRepeats int `yaml:"max_repeats"`
}

// DefaultRuleSet flags similes, assistant voice and any sentence used three
// times, with a short list of stock words.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		ForbiddenWords: []string{"suddenly", "tapestry", "testament to", "delve"},
		Similes:        true,
		AssistantVoice: true,
		MaxRepeats:     2,
	}
}

// LoadRuleSet reads a RuleSet from a YAML file. Missing keys keep their zero
// value, not the default.
func LoadRuleSet(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rules: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return rs, nil
}

// #endregion

// #region checker

var (
	simileLike = regexp.MustCompile(`(?i)\b[\w']+\s+like\s+(?:a|an|the)\s+[\w']+`)
	simileAs   = regexp.MustCompile(`(?i)\bas\s+([\w']+)\s+as(?:\s+(?:a|an|the))?\s+[\w']+`)
)

// notSimiles are "as X as" idioms that compare nothing.
var notSimiles = map[string]bool{
	"soon": true, "long": true, "well": true, "far": true, "much": true, "many": true,
}

type forbidden struct {
	word string
	re   *regexp.Regexp
}

// Checker applies a RuleSet to text. It holds only compiled patterns, so
// Check is a pure function of its input and safe for concurrent use.
type Checker struct {
	words      []forbidden
	similes    bool
	assistant  bool
	maxRepeats int
}

// NewChecker compiles rs. Empty forbidden entries are skipped.
func NewChecker(rs RuleSet) *Checker {
	c := &Checker{similes: rs.Similes, assistant: rs.AssistantVoice, maxRepeats: rs.MaxRepeats}
	for _, w := range rs.ForbiddenWords {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`)
		c.words = append(c.words, forbidden{word: w, re: re})
	}
	return c
}

// Check returns every violation in text, grouped by rule in a fixed order
// and by position within a rule. Identical excerpts are reported once.
func (c *Checker) Check(text string) []correction.Violation {
	var out []correction.Violation
	seen := make(map[string]bool)
	add := func(rule, excerpt, msg string) {
		key := rule + "\x00" + strings.ToLower(excerpt)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, correction.Violation{Rule: rule, Excerpt: excerpt, Message: msg})
	}

	for _, f := range c.words {
		for _, m := range f.re.FindAllString(text, -1) {
			add(RuleForbiddenWord, m, fmt.Sprintf("%q is not allowed", f.word))
		}
	}

	if c.similes {
		for _, m := range simileLike.FindAllString(text, -1) {
			add(RuleSimile, m, "rewrite without a simile")
		}
		for _, m := range simileAs.FindAllStringSubmatch(text, -1) {
			if notSimiles[strings.ToLower(m[1])] {
				continue
			}
			add(RuleSimile, m[0], "rewrite without a simile")
		}
	}

	if c.assistant {
		lower := strings.ToLower(text)
		for _, p := range assistantPatterns {
			if strings.Contains(lower, p) {
				add(RuleAssistantVoice, p, "remove assistant phrasing")
			}
		}
	}

	if c.maxRepeats > 0 {
		for _, s := range repeatedSentences(text, c.maxRepeats) {
			add(RuleRepetition, s, fmt.Sprintf("sentence used more than %d times", c.maxRepeats))
		}
	}

	return out
}

// #endregion

// #region repetition-check

// repeatedSentences returns sentences longer than 10 characters that occur
// more than limit times, in order of first appearance.
func repeatedSentences(text string, limit int) []string {
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	counts := make(map[string]int)
	first := make(map[string]string)
	var order []string
	for _, s := range sentences {
		trimmed := strings.TrimSpace(s)
		if len(trimmed) <= 10 {
			continue
		}
		key := strings.ToLower(trimmed)
		if counts[key] == 0 {
			order = append(order, key)
			first[key] = trimmed
		}
		counts[key]++
	}
	var out []string
	for _, k := range order {
		if counts[k] > limit {
			out = append(out, first[k])
		}
	}
	return out
}

// #endregion
