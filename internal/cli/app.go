package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/lexicon"
	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/logging"
	"github.com/lazypower/recall/internal/metrics"
	"github.com/lazypower/recall/internal/store"
)

// app is everything a command needs once config is loaded and the
// database is open.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	db      *store.Store
	eng     *engine.Engine
	metrics *metrics.Metrics
	closers []func() error
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

// setup loads config, builds the logger and opens the store and engine.
// Logs go to logw; commands that print results pass stderr.
func setup(ctx context.Context, logw io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, closeLog, err := logging.New(cfg.Logging, logw)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	a := &app{cfg: cfg, log: log, metrics: metrics.New(), closers: []func() error{closeLog}}

	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	dbPath := a.cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}
	timeout, err := a.cfg.Database.Timeout()
	if err != nil {
		return err
	}

	db, err := store.Open(ctx, dbPath, store.Options{
		Size:           a.cfg.Database.PoolSize,
		BurstFactor:    a.cfg.Database.BurstFactor,
		AcquireTimeout: timeout,
		Logger:         a.log,
		Observer:       a.metrics,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db
	a.closers = append([]func() error{db.Close}, a.closers...)
	a.metrics.WatchPool(db.Pool().Stats)

	lex := lexicon.Default()
	if a.cfg.Lexicon.File != "" {
		if lex, err = lexicon.Load(a.cfg.Lexicon.File); err != nil {
			return fmt.Errorf("lexicon: %w", err)
		}
	}

	opts := engine.OptionsFromConfig(a.cfg, lex)
	opts.Logger = a.log
	opts.Metrics = a.metrics
	a.eng, err = engine.New(db, opts)
	return err
}

// extractor is the LLM extractor when a provider is configured and the
// pattern extractor otherwise.
func (a *app) extractor() engine.Extractor {
	maxContent := a.cfg.Retrieval.MaxContentChars
	client, err := llm.NewClient(a.cfg.LLM)
	if err != nil {
		if !errors.Is(err, llm.ErrNoProvider) {
			a.log.Warn("llm not available, using pattern extraction", "err", err)
		}
		return engine.NewPatternExtractor(a.eng.Lexicon(), maxContent)
	}
	a.log.Info("llm extraction enabled", "provider", a.cfg.LLM.Provider)
	return engine.NewLLMExtractor(client, a.eng.Lexicon(), maxContent, a.log)
}

func (a *app) Close() {
	for _, c := range a.closers {
		c() //nolint:errcheck
	}
}
