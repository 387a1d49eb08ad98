package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/michaelbrown/pylearn/internal/catalog"
	"github.com/michaelbrown/pylearn/internal/config"
	"github.com/michaelbrown/pylearn/internal/exercise"
	"github.com/michaelbrown/pylearn/internal/llm"
	"github.com/michaelbrown/pylearn/internal/logging"
	"github.com/michaelbrown/pylearn/internal/runner"
	"github.com/michaelbrown/pylearn/internal/sandbox"
	"github.com/michaelbrown/pylearn/internal/storage/sqlite"
)

func newLogger(cfg *config.Config) *zerolog.Logger {
	l := logging.New(cfg.Log.Level, cfg.Log.Pretty)
	return &l
}

func newResolver(cfg *config.Config, logger *zerolog.Logger) (*exercise.Resolver, error) {
	cat, err := catalog.Load(cfg.CatalogPath())
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return exercise.NewResolver(cfg.Content.Root, cat, logger), nil
}

func newRunner(cfg *config.Config, logger *zerolog.Logger) *runner.Runner {
	return runner.New(sandbox.FromConfig(cfg.Runner), runner.Options{
		DefaultTimeout: cfg.Runner.DefaultTimeout,
		MaxTimeout:     cfg.Runner.MaxTimeout,
		Logger:         logger,
	})
}

// newLLMClient returns nil without an API key; grading then degrades.
func newLLMClient(cfg *config.Config) llm.Client {
	if cfg.LLM.APIKey == "" {
		return nil
	}
	return llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
}

func openStore() (*sqlite.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return sqlite.Open(cfg.Storage.DBPath)
}
