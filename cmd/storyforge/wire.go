package main

import (
	"fmt"
	"log"

	"github.com/danielpatrickdp/storyforge/internal/agents"
	"github.com/danielpatrickdp/storyforge/internal/batch"
	"github.com/danielpatrickdp/storyforge/internal/checkpoint"
	"github.com/danielpatrickdp/storyforge/internal/collab"
	"github.com/danielpatrickdp/storyforge/internal/completion"
	"github.com/danielpatrickdp/storyforge/internal/config"
	"github.com/danielpatrickdp/storyforge/internal/correction"
	"github.com/danielpatrickdp/storyforge/internal/journal"
	"github.com/danielpatrickdp/storyforge/internal/pipeline"
	"github.com/danielpatrickdp/storyforge/internal/retake"
	"github.com/danielpatrickdp/storyforge/internal/rules"
	"github.com/danielpatrickdp/storyforge/internal/tournament"
)

// #region stores

// stores holds everything backed by the SQLite database.
type stores struct {
	db      *checkpoint.SQLiteStore
	ckpt    *checkpoint.Manager
	journal *journal.Journal
	results *pipeline.ResultStore
	themes  *batch.ThemeMemory
}

func openStores(path string) (*stores, error) {
	db, err := checkpoint.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	j, err := journal.New(db.DB())
	if err != nil {
		db.Close()
		return nil, err
	}
	rs, err := pipeline.NewResultStore(db.DB())
	if err != nil {
		db.Close()
		return nil, err
	}
	tm, err := batch.NewThemeMemory(db.DB())
	if err != nil {
		db.Close()
		return nil, err
	}
	return &stores{db: db, ckpt: checkpoint.NewManager(db), journal: j, results: rs, themes: tm}, nil
}

func (s *stores) Close() error { return s.db.Close() }

// #endregion stores

// #region pipeline

// buildPipeline connects to the completion service and wires every stage.
// The returned client must be closed by the caller.
func buildPipeline(cfg config.Config, st *stores) (*pipeline.Pipeline, *completion.Client, error) {
	client, err := completion.NewClient(completion.ClientConfig{
		Addr:        cfg.Completion.Addr,
		CallTimeout: cfg.Completion.Timeout,
		Retry:       cfg.Completion.RetryConfig(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("completion client %s: %w", cfg.Completion.Addr, err)
	}

	deps := pipeline.Deps{
		Checkpoints: st.ckpt,
		Journal:     st.journal,
		Results:     st.results,
	}
	writeOpts := completion.Options{Temperature: cfg.Tournament.Temperature}

	if len(cfg.Tournament.Writers) == tournament.FourWriterBracket.Seeds() {
		writers := make([]tournament.Writer, len(cfg.Tournament.Writers))
		for i, p := range cfg.Tournament.Writers {
			writers[i] = agents.NewWriter(client, p, writeOpts)
		}
		arena, err := tournament.NewArena(writers, agents.NewAdjudicator(client), tournament.FourWriterBracket)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		deps.Arena = arena
	}

	if len(cfg.Collaboration.Participants) > 0 {
		parts := make([]collab.Participant, len(cfg.Collaboration.Participants))
		for i, p := range cfg.Collaboration.Participants {
			parts[i] = agents.NewParticipant(client, p)
		}
		session, err := collab.NewSession(parts, agents.NewModerator(client), cfg.Collaboration.Config)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		session.OnRound = func(r collab.Round, f collab.Facilitation) {
			log.Printf("[COLLAB] %s", roundLine(r, f))
		}
		deps.Session = session
	}

	deps.Correction = correction.NewLoop(rules.NewChecker(cfg.Rules), agents.NewCorrector(client), cfg.Correction.MaxAttempts)
	deps.Retake = retake.NewLoop(agents.NewCritic(client), agents.NewReviser(client, writeOpts), cfg.Retake.RetakeLoopConfig())

	pipe, err := pipeline.New(deps, cfg.Pipeline)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return pipe, client, nil
}

// #endregion pipeline
