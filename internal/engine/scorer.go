package engine

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/lazypower/recall/internal/insight"
)

// ScoringParams controls the relevance blend.
type ScoringParams struct {
	RecentDays          int     // ages up to this keep full temporal weight
	DecayRate           float64 // per day past RecentDays
	Floor               float64
	PermanenceBoost     float64
	EffectivenessWeight float64
	TemporalWeight      float64
}

// DefaultScoring returns the reference parameters.
func DefaultScoring() ScoringParams {
	return ScoringParams{
		RecentDays:          30,
		DecayRate:           0.02,
		Floor:               0.1,
		PermanenceBoost:     1.5,
		EffectivenessWeight: 0.5,
		TemporalWeight:      0.5,
	}
}

// Scored is an insight with its relevance for one query.
type Scored struct {
	insight.Insight
	Score   float64 `json:"final_score"`
	AgeDays int     `json:"age_days"`
}

// Scorer computes final scores. It is safe for concurrent use.
type Scorer struct {
	p       ScoringParams
	markers []*regexp.Regexp
}

// NewScorer compiles the permanence markers, matched case-insensitively.
func NewScorer(p ScoringParams, permanenceMarkers []string) (*Scorer, error) {
	s := &Scorer{p: p}
	for _, m := range permanenceMarkers {
		re, err := regexp.Compile("(?i)" + m)
		if err != nil {
			return nil, fmt.Errorf("permanence marker %q: %w", m, err)
		}
		s.markers = append(s.markers, re)
	}
	return s, nil
}

// Decay is the temporal weight for an age in whole days, before any
// permanence override.
func (s *Scorer) Decay(ageDays int) float64 {
	if ageDays <= s.p.RecentDays {
		return 1.0
	}
	w := math.Exp(-s.p.DecayRate * float64(ageDays-s.p.RecentDays))
	return math.Max(s.p.Floor, w)
}

// Permanent reports whether content carries a permanence marker.
func (s *Scorer) Permanent(content string) bool {
	for _, re := range s.markers {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// Temporal is the decay weight with the permanence override applied.
func (s *Scorer) Temporal(content string, ageDays int) float64 {
	t := s.Decay(ageDays)
	if s.Permanent(content) {
		t = math.Min(1.0, t*s.p.PermanenceBoost)
	}
	return t
}

// Score is the blended relevance of in at time now.
func (s *Scorer) Score(in *insight.Insight, now time.Time) Scored {
	age := in.AgeDays(now)
	t := s.Temporal(in.Content, age)
	return Scored{
		Insight: *in,
		Score:   s.p.EffectivenessWeight*in.Effectiveness + s.p.TemporalWeight*t,
		AgeDays: age,
	}
}

// ScoreAll scores every candidate and returns them best first.
func (s *Scorer) ScoreAll(list []insight.Insight, now time.Time) []Scored {
	out := make([]Scored, len(list))
	for i := range list {
		out[i] = s.Score(&list[i], now)
	}
	sortScored(out)
	return out
}

// sortScored orders by score, then newer timestamp, then id so equal
// inputs always produce the same order.
func sortScored(list []Scored) {
	sort.SliceStable(list, func(i, j int) bool { return better(list[i], list[j]) })
}

func better(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID < b.ID
}
