package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/storyforge/internal/agents"
	"github.com/danielpatrickdp/storyforge/internal/batch"
	"github.com/danielpatrickdp/storyforge/internal/collab"
	"github.com/danielpatrickdp/storyforge/internal/completion"
	"github.com/danielpatrickdp/storyforge/internal/correction"
	"github.com/danielpatrickdp/storyforge/internal/pipeline"
	"github.com/danielpatrickdp/storyforge/internal/retake"
	"github.com/danielpatrickdp/storyforge/internal/rules"
	"github.com/danielpatrickdp/storyforge/internal/tournament"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// #region types

// Config is the full run configuration.
type Config struct {
	DBPath        string              `yaml:"db_path"`
	Brief         string              `yaml:"brief"`
	Mode          pipeline.Mode       `yaml:"mode"`
	Completion    CompletionConfig    `yaml:"completion"`
	Batch         batch.Config        `yaml:"batch"`
	Tournament    TournamentConfig    `yaml:"tournament"`
	Collaboration CollaborationConfig `yaml:"collaboration"`
	Correction    CorrectionConfig    `yaml:"correction"`
	Retake        RetakeConfig        `yaml:"retake"`
	Rules         rules.RuleSet       `yaml:"rules"`
	RulesFile     string              `yaml:"rules_file"`
	Pipeline      pipeline.Config     `yaml:"pipeline"`
	API           APIConfig           `yaml:"api"`
}

// CompletionConfig locates the generation service.
type CompletionConfig struct {
	Addr        string        `yaml:"addr"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type TournamentConfig struct {
	Writers     []agents.Persona `yaml:"writers"`
	Temperature float32          `yaml:"temperature"`
}

type CollaborationConfig struct {
	collab.Config `yaml:",inline"`
	Participants  []agents.Persona `yaml:"participants"`
}

type CorrectionConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

type RetakeConfig struct {
	MaxRetakes int     `yaml:"max_retakes"`
	Threshold  float64 `yaml:"threshold"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

// #endregion types

// #region defaults

// Default returns a configuration that validates as-is apart from the
// service address.
func Default() Config {
	retry := completion.DefaultRetryConfig()
	rt := retake.DefaultConfig()
	return Config{
		DBPath: "storyforge.db",
		Brief:  "Write a short story of about 500 words.",
		Mode:   pipeline.ModeTournament,
		Completion: CompletionConfig{
			Addr:        "localhost:50051",
			Timeout:     2 * time.Minute,
			MaxAttempts: retry.MaxAttempts,
			BaseDelay:   retry.BaseDelay,
			MaxDelay:    retry.MaxDelay,
		},
		Batch: batch.DefaultConfig(),
		Tournament: TournamentConfig{
			Writers: []agents.Persona{
				{ID: "minimalist", Description: "You write spare, concrete prose with short sentences and no ornament."},
				{ID: "lyricist", Description: "You write rhythmic prose that leans on sound and image."},
				{ID: "plotter", Description: "You write tightly plotted scenes that turn on a single decision."},
				{ID: "observer", Description: "You write close third person, attentive to small physical detail."},
			},
			Temperature: 0.9,
		},
		Collaboration: CollaborationConfig{
			Config: collab.DefaultConfig(),
			Participants: []agents.Persona{
				{ID: "architect", Description: "You care about structure and pacing."},
				{ID: "stylist", Description: "You care about sentence-level voice."},
				{ID: "skeptic", Description: "You challenge weak ideas and cliché."},
			},
		},
		Correction: CorrectionConfig{MaxAttempts: correction.DefaultMaxAttempts},
		Retake:     RetakeConfig{MaxRetakes: rt.MaxRetakes, Threshold: rt.Threshold},
		Rules:      rules.DefaultRuleSet(),
		Pipeline:   pipeline.Config{DiscardOnComplete: true},
		API:        APIConfig{Addr: ":8080"},
	}
}

// RetryConfig converts the completion section for the client.
func (c CompletionConfig) RetryConfig() completion.RetryConfig {
	return completion.RetryConfig{MaxAttempts: c.MaxAttempts, BaseDelay: c.BaseDelay, MaxDelay: c.MaxDelay}
}

// RetakeLoopConfig converts the retake section for the loop.
func (c RetakeConfig) RetakeLoopConfig() retake.Config {
	return retake.Config{MaxRetakes: c.MaxRetakes, Threshold: c.Threshold}
}

// #endregion defaults

// #region load

// Load builds a Config from defaults, then the YAML file at path (skipped
// when path is empty), then env files (".env" when none are given; missing
// files are ignored), then environment variables. The result is validated.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	applyEnv(&cfg)

	if cfg.RulesFile != "" {
		rs, err := rules.LoadRuleSet(cfg.RulesFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Rules = rs
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv reads STORYFORGE_DB, COMPLETION_ADDR, STORYFORGE_MODE,
// STORYFORGE_JOBS, STORYFORGE_PARALLELISM, STORYFORGE_DELAY and
// STORYFORGE_API_ADDR. Unparsable numbers are ignored.
func applyEnv(cfg *Config) {
	if v := os.Getenv("STORYFORGE_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("COMPLETION_ADDR"); v != "" {
		cfg.Completion.Addr = v
	}
	if v := os.Getenv("STORYFORGE_MODE"); v != "" {
		cfg.Mode = pipeline.Mode(v)
	}
	if v := os.Getenv("STORYFORGE_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Batch.Jobs = n
		}
	}
	if v := os.Getenv("STORYFORGE_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Batch.Parallelism = n
		}
	}
	if v := os.Getenv("STORYFORGE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Batch.Delay = d
		} else if sec, err := strconv.Atoi(v); err == nil {
			cfg.Batch.Delay = time.Duration(sec) * time.Second
		}
	}
	if v := os.Getenv("STORYFORGE_API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
}

// #endregion load

// #region validate

// Validate rejects configurations no run could succeed with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.DBPath != "", "db_path is empty")
	check(c.Completion.Addr != "", "completion.addr is empty")
	check(c.Completion.MaxAttempts >= 1, "completion.max_attempts must be >= 1")
	check(c.Batch.Jobs >= 1, "batch.jobs must be >= 1")
	check(c.Batch.Parallelism >= 1, "batch.parallelism must be >= 1")
	check(c.Batch.Delay >= 0, "batch.delay must not be negative")
	check(c.Batch.HistorySize >= 0, "batch.history_size must not be negative")
	check(c.Correction.MaxAttempts >= 1, "correction.max_attempts must be >= 1")
	check(c.Retake.MaxRetakes >= 0, "retake.max_retakes must not be negative")
	check(inUnit(c.Retake.Threshold), "retake.threshold must be in [0,1]")

	switch c.Mode {
	case pipeline.ModeTournament:
		want := tournament.FourWriterBracket.Seeds()
		check(len(c.Tournament.Writers) == want, "tournament needs %d writers, got %d", want, len(c.Tournament.Writers))
		check(uniqueIDs(c.Tournament.Writers), "tournament writer ids must be unique and non-empty")
	case pipeline.ModeCollaboration:
		check(len(c.Collaboration.Participants) >= 2, "collaboration needs at least 2 participants")
		check(uniqueIDs(c.Collaboration.Participants), "collaboration participant ids must be unique and non-empty")
		check(c.Collaboration.MaxRounds >= 1 && c.Collaboration.MaxRounds <= collab.HardRoundCap,
			"collaboration.max_rounds must be in [1,%d]", collab.HardRoundCap)
		check(inUnit(c.Collaboration.EarlyTerminationThreshold), "collaboration.early_termination_threshold must be in [0,1]")
	default:
		check(false, "unknown mode %q", c.Mode)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func inUnit(f float64) bool { return f >= 0 && f <= 1 }

func uniqueIDs(ps []agents.Persona) bool {
	seen := make(map[string]bool, len(ps))
	for _, p := range ps {
		if p.ID == "" || seen[p.ID] {
			return false
		}
		seen[p.ID] = true
	}
	return true
}

// #endregion validate
