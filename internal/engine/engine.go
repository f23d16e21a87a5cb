// Package engine ranks stored insights against free text and ingests new
// ones.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/errs"
	"github.com/lazypower/recall/internal/insight"
	"github.com/lazypower/recall/internal/lexicon"
	"github.com/lazypower/recall/internal/metrics"
	"github.com/lazypower/recall/internal/trigger"
)

// Repository is the storage the engine needs. *store.Store implements it.
type Repository interface {
	InsertOrReplace(ctx context.Context, in insight.Insight) error
	LookupByEntity(ctx context.Context, entity string) ([]insight.Insight, error)
	Supersede(ctx context.Context, oldID string, replacement insight.Insight) error
	Get(ctx context.Context, id string) (*insight.Insight, error)
}

// Options configures an Engine. Zero values take defaults.
type Options struct {
	Lexicon           *lexicon.Lexicon
	Scoring           ScoringParams
	Tiers             TierParams
	DefaultMaxResults int
	MaxContentChars   int
	// LookupConcurrency bounds parallel per-topic lookups. Keep it at or
	// below the pool size.
	LookupConcurrency int
	Clock             func() time.Time
	Logger            *slog.Logger
	Metrics           *metrics.Metrics
}

// OptionsFromConfig maps the [scoring], [tiers], [retrieval] and
// [database] sections onto engine options.
func OptionsFromConfig(cfg config.Config, lex *lexicon.Lexicon) Options {
	s, t := cfg.Scoring, cfg.Tiers
	return Options{
		Lexicon: lex,
		Scoring: ScoringParams{
			RecentDays:          s.RecentDays,
			DecayRate:           s.DecayRate,
			Floor:               s.Floor,
			PermanenceBoost:     s.PermanenceBoost,
			EffectivenessWeight: s.EffectivenessWeight,
			TemporalWeight:      s.TemporalWeight,
		},
		Tiers: TierParams{
			SurfaceCap:              t.SurfaceCap,
			MidCap:                  t.MidCap,
			DeepCap:                 t.DeepCap,
			SurfaceMinEffectiveness: t.SurfaceMinEffectiveness,
			SurfaceMaxAgeDays:       t.SurfaceMaxAgeDays,
			MidMinEffectiveness:     t.MidMinEffectiveness,
			MidMaxAgeDays:           t.MidMaxAgeDays,
			FingerprintChars:        t.FingerprintChars,
		},
		DefaultMaxResults: cfg.Retrieval.DefaultMaxResults,
		MaxContentChars:   cfg.Retrieval.MaxContentChars,
		LookupConcurrency: cfg.Database.PoolSize,
	}
}

// Engine is the retrieval façade: detect, look up, score, layer.
type Engine struct {
	repo       Repository
	lex        *lexicon.Lexicon
	canon      *insight.Canon
	detector   *trigger.Detector
	scorer     *Scorer
	layerer    *Layerer
	eff        *Effectiveness
	topicCaps  map[string]int
	maxResults int
	maxContent int
	lookups    int
	now        func() time.Time
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// Result is the outcome of one Retrieve call.
type Result struct {
	Triggers []string `json:"triggers"`
	Tiers
	// Candidates is how many distinct stored insights the triggers found,
	// before dedup and truncation.
	Candidates int `json:"candidates"`
}

// New builds an Engine over repo.
func New(repo Repository, opts Options) (*Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("engine: nil repository")
	}
	lex := opts.Lexicon
	if lex == nil {
		lex = lexicon.Default()
	}
	if opts.Scoring == (ScoringParams{}) {
		opts.Scoring = DefaultScoring()
	}
	if opts.Tiers == (TierParams{}) {
		opts.Tiers = DefaultTiers()
	}
	if opts.DefaultMaxResults <= 0 {
		opts.DefaultMaxResults = 5
	}
	if opts.MaxContentChars <= 0 {
		opts.MaxContentChars = insight.MaxContentChars
	}
	if opts.LookupConcurrency <= 0 {
		opts.LookupConcurrency = 4
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	scorer, err := NewScorer(opts.Scoring, lex.PermanenceMarkers)
	if err != nil {
		return nil, err
	}

	return &Engine{
		repo:       repo,
		lex:        lex,
		canon:      lex.Canon(),
		detector:   trigger.New(lex),
		scorer:     scorer,
		layerer:    NewLayerer(opts.Tiers),
		eff:        NewEffectiveness(lex.Effectiveness),
		topicCaps:  lex.SurfaceCaps(),
		maxResults: opts.DefaultMaxResults,
		maxContent: opts.MaxContentChars,
		lookups:    opts.LookupConcurrency,
		now:        opts.Clock,
		log:        opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

// Lexicon returns the vocabulary the engine was built with.
func (e *Engine) Lexicon() *lexicon.Lexicon { return e.lex }

// Canon returns the entity alias table.
func (e *Engine) Canon() *insight.Canon { return e.canon }

// Detect returns the canonical topics text activates.
func (e *Engine) Detect(text string) []string {
	return e.detector.Detect(text)
}

// Retrieve finds the insights relevant to text, at most maxResults of them
// (maxResults <= 0 means the default), split into tiers. Blank text or text
// that activates no topic yields empty tiers and no error. Superseded
// insights are not returned.
func (e *Engine) Retrieve(ctx context.Context, text string, maxResults int) (*Result, error) {
	start := time.Now()
	res, err := e.retrieve(ctx, text, maxResults)
	if err != nil {
		e.metrics.ObserveRetrieval(time.Since(start), nil, 0, 0, 0, err)
		return nil, err
	}
	e.metrics.ObserveRetrieval(time.Since(start), res.Triggers, len(res.Surface), len(res.Mid), len(res.Deep), nil)
	e.log.Debug("retrieve",
		"query_len", len(text),
		"triggers", res.Triggers,
		"candidates", res.Candidates,
		"surface", len(res.Surface),
		"mid", len(res.Mid),
		"deep", len(res.Deep),
		"elapsed", time.Since(start),
	)
	return res, nil
}

func (e *Engine) retrieve(ctx context.Context, text string, maxResults int) (*Result, error) {
	res := &Result{}
	if strings.TrimSpace(text) == "" {
		return res, nil
	}
	res.Triggers = e.detector.Detect(text)
	if len(res.Triggers) == 0 {
		return res, nil
	}
	if maxResults <= 0 {
		maxResults = e.maxResults
	}

	found := make([][]insight.Insight, len(res.Triggers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.lookups)
	for i, topic := range res.Triggers {
		g.Go(func() error {
			list, err := e.repo.LookupByEntity(gctx, topic)
			if err != nil {
				return fmt.Errorf("lookup %s: %w", topic, err)
			}
			found[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// An insight tagged with several activated topics is scored once.
	seen := make(map[string]bool)
	var candidates []insight.Insight
	for _, list := range found {
		for _, in := range list {
			if seen[in.ID] || !in.Current() {
				continue
			}
			seen[in.ID] = true
			candidates = append(candidates, in)
		}
	}
	res.Candidates = len(candidates)

	ranked := e.layerer.Rank(e.scorer.ScoreAll(candidates, e.now()))
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	res.Tiers = e.layerer.Assign(ranked, res.Triggers, e.topicCaps)
	return res, nil
}

// Build turns a draft into a complete, validated insight without storing
// it: a missing id is generated, entities are canonicalized, themes
// lower-cased, the timestamp defaults to now and a missing effectiveness
// score is computed from the content.
func (e *Engine) Build(d insight.Draft) (insight.Insight, error) {
	in := insight.Insight{
		ID:           strings.TrimSpace(d.ID),
		Content:      strings.TrimSpace(d.Content),
		Entities:     e.canon.NormalizeSet(d.Entities),
		Timestamp:    d.Timestamp.UTC(),
		GrowthStage:  d.GrowthStage,
		Layer:        d.Layer,
		Type:         d.Type,
		Supersedes:   d.Supersedes,
		SupersededBy: strings.TrimSpace(d.SupersededBy),
		Source:       d.Source,
		Context:      d.Context,
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	themes := make([]string, len(d.Themes))
	for i, t := range d.Themes {
		themes[i] = strings.ToLower(t)
	}
	in.Themes = insight.NewSet(themes...)
	if d.Timestamp.IsZero() {
		in.Timestamp = e.now().UTC()
	}
	if d.Effectiveness != nil {
		in.Effectiveness = *d.Effectiveness
	} else {
		in.Effectiveness = e.eff.Score(in.Content)
	}
	if in.GrowthStage == "" {
		in.GrowthStage = insight.StageFoundational
	}
	if in.Type == "" {
		in.Type = insight.TypeObservation
	}
	if len(in.Supersedes) == 0 {
		in.Supersedes = nil
	}
	if in.Layer == "" {
		in.Layer = e.layerer.Classify(e.scorer.Score(&in, e.now()))
	}

	if err := insight.Validate(&in, e.maxContent); err != nil {
		return insight.Insight{}, err
	}
	return in, nil
}

// Ingest validates and stores a draft, returning its id. Validation
// failures are reported before any storage access.
func (e *Engine) Ingest(ctx context.Context, d insight.Draft) (string, error) {
	in, err := e.Build(d)
	if err == nil {
		err = e.repo.InsertOrReplace(ctx, in)
	}
	e.metrics.ObserveIngest(ingestLabel(in, d), err)
	if err != nil {
		return "", err
	}
	e.log.Debug("ingest", "id", in.ID, "type", in.Type, "entities", []string(in.Entities))
	return in.ID, nil
}

// Supersede stores d as the replacement for oldID and marks oldID as
// superseded by it. The replacement is an evolved insight that lists
// oldID among the records it supersedes.
func (e *Engine) Supersede(ctx context.Context, oldID string, d insight.Draft) (string, error) {
	oldID = strings.TrimSpace(oldID)
	if oldID == "" {
		return "", errs.Validation("supersede", "old id is required")
	}
	if !contains(d.Supersedes, oldID) {
		d.Supersedes = append(append([]string(nil), d.Supersedes...), oldID)
	}
	d.GrowthStage = insight.StageEvolved

	in, err := e.Build(d)
	if err == nil {
		err = e.repo.Supersede(ctx, oldID, in)
	}
	e.metrics.ObserveIngest(ingestLabel(in, d), err)
	if err != nil {
		return "", err
	}
	e.log.Info("supersede", "old", oldID, "new", in.ID)
	return in.ID, nil
}

// Get returns one stored insight. A missing id is a NotFound error.
func (e *Engine) Get(ctx context.Context, id string) (*insight.Insight, error) {
	in, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, errs.NotFound("get", id)
	}
	return in, nil
}

// ingestLabel is the metric label for an ingest attempt. A draft that
// failed to build reports its own type when known, else "unknown".
func ingestLabel(in insight.Insight, d insight.Draft) string {
	if in.Type.Valid() {
		return string(in.Type)
	}
	if d.Type == "" {
		return string(insight.TypeObservation)
	}
	if d.Type.Valid() {
		return string(d.Type)
	}
	return "unknown"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
