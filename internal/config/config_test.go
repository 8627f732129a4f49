package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/storyforge/internal/pipeline"
)

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"STORYFORGE_DB", "COMPLETION_ADDR", "STORYFORGE_MODE", "STORYFORGE_JOBS",
		"STORYFORGE_PARALLELISM", "STORYFORGE_DELAY", "STORYFORGE_API_ADDR"} {
		unsetEnv(t, k)
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "storyforge.yaml", `
db_path: /tmp/sf.db
mode: collaboration
batch:
  jobs: 12
  parallelism: 3
  delay: 2s
collaboration:
  max_rounds: 4
  early_termination_threshold: 0.7
retake:
  threshold: 0.6
`)
	cfg, err := Load(path, noEnvFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/sf.db" || cfg.Mode != pipeline.ModeCollaboration {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Batch.Jobs != 12 || cfg.Batch.Parallelism != 3 || cfg.Batch.Delay != 2*time.Second {
		t.Errorf("batch = %+v", cfg.Batch)
	}
	if cfg.Batch.HistorySize != 10 {
		t.Errorf("history size default lost: %d", cfg.Batch.HistorySize)
	}
	if cfg.Collaboration.MaxRounds != 4 || cfg.Collaboration.EarlyTerminationThreshold != 0.7 {
		t.Errorf("collaboration = %+v", cfg.Collaboration)
	}
	if len(cfg.Collaboration.Participants) != 3 {
		t.Errorf("participants default lost: %d", len(cfg.Collaboration.Participants))
	}
	if cfg.Retake.Threshold != 0.6 || cfg.Retake.MaxRetakes != 2 {
		t.Errorf("retake = %+v", cfg.Retake)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "storyforge.yaml", "batch:\n  parallelism: 3\n")
	t.Setenv("STORYFORGE_PARALLELISM", "6")
	t.Setenv("STORYFORGE_DELAY", "5")
	t.Setenv("COMPLETION_ADDR", "llm:9000")
	t.Setenv("STORYFORGE_JOBS", "not-a-number")

	cfg, err := Load(path, noEnvFile(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Batch.Parallelism != 6 || cfg.Batch.Delay != 5*time.Second || cfg.Completion.Addr != "llm:9000" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Batch.Jobs != 1 {
		t.Errorf("unparsable jobs applied: %d", cfg.Batch.Jobs)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	env := writeFile(t, ".env", "STORYFORGE_DB=from-dotenv.db\nSTORYFORGE_JOBS=7\n")

	cfg, err := Load("", env)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "from-dotenv.db" || cfg.Batch.Jobs != 7 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_RulesFile(t *testing.T) {
	clearEnv(t)
	rulesPath := writeFile(t, "rules.yaml", "forbidden_words: [murmured]\nsimiles: false\n")
	path := writeFile(t, "storyforge.yaml", "rules_file: "+rulesPath+"\n")

	cfg, err := Load(path, noEnvFile(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Rules.ForbiddenWords) != 1 || cfg.Rules.Similes {
		t.Errorf("rules = %+v", cfg.Rules)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), noEnvFile(t)); err == nil {
		t.Error("expected error for missing config")
	}
	bad := writeFile(t, "bad.yaml", "batch: [unclosed\n")
	if _, err := Load(bad, noEnvFile(t)); err == nil {
		t.Error("expected parse error")
	}
	invalid := writeFile(t, "invalid.yaml", "batch:\n  parallelism: 0\n")
	if _, err := Load(invalid, noEnvFile(t)); !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db", func(c *Config) { c.DBPath = "" }},
		{"no addr", func(c *Config) { c.Completion.Addr = "" }},
		{"zero jobs", func(c *Config) { c.Batch.Jobs = 0 }},
		{"three writers", func(c *Config) { c.Tournament.Writers = c.Tournament.Writers[:3] }},
		{"duplicate writer", func(c *Config) { c.Tournament.Writers[1].ID = c.Tournament.Writers[0].ID }},
		{"threshold above one", func(c *Config) { c.Retake.Threshold = 1.5 }},
		{"unknown mode", func(c *Config) { c.Mode = "duel" }},
		{"rounds over cap", func(c *Config) {
			c.Mode = pipeline.ModeCollaboration
			c.Collaboration.MaxRounds = 50
		}},
		{"lone participant", func(c *Config) {
			c.Mode = pipeline.ModeCollaboration
			c.Collaboration.Participants = c.Collaboration.Participants[:1]
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}
