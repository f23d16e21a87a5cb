package engine

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/recall/internal/insight"
)

func scored(id string, score, eff float64, age int, typ insight.Type, entities ...string) Scored {
	return Scored{
		Insight: insight.Insight{
			ID:            id,
			Content:       "content " + id,
			Entities:      insight.NewSet(entities...),
			Effectiveness: eff,
			Type:          typ,
			Timestamp:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -age),
		},
		Score:   score,
		AgeDays: age,
	}
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "trust the process", Fingerprint("  Trust   the\n\tPROCESS ", 100))
	assert.Equal(t, "trust", Fingerprint("Trust the process", 5))
	assert.Equal(t, "ünï", Fingerprint("ÜNÏCODE", 3), "cuts on characters, not bytes")
}

func TestRankDedupKeepsHigherScore(t *testing.T) {
	l := NewLayerer(DefaultTiers())
	low := scored("low", 0.4, 0.5, 0, insight.TypeObservation)
	high := scored("high", 0.9, 0.5, 0, insight.TypeObservation)
	low.Content = "His word is enough."
	high.Content = "his  WORD is enough."
	other := scored("other", 0.6, 0.5, 0, insight.TypeObservation)

	got := l.Rank([]Scored{low, other, high})
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].ID)
	assert.Equal(t, "other", got[1].ID)
}

func TestRankDedupUsesPrefix(t *testing.T) {
	l := NewLayerer(DefaultTiers())
	prefix := strings.Repeat("same opening words ", 10)
	a := scored("a", 0.5, 0.5, 0, insight.TypeObservation)
	b := scored("b", 0.7, 0.5, 0, insight.TypeObservation)
	a.Content = prefix + "ending one"
	b.Content = prefix + "ending two"

	got := l.Rank([]Scored{a, b})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestClassify(t *testing.T) {
	l := NewLayerer(DefaultTiers())
	tests := []struct {
		name string
		in   Scored
		want insight.Layer
	}{
		{"anchor is always surface", scored("1", 0, 0.1, 900, insight.TypeAnchor), insight.LayerSurface},
		{"breakthrough is always surface", scored("2", 0, 0.1, 900, insight.TypeBreakthrough), insight.LayerSurface},
		{"effective", scored("3", 0, 0.8, 400, insight.TypeStrategy), insight.LayerSurface},
		{"recent", scored("4", 0, 0.1, 29, insight.TypeObservation), insight.LayerSurface},
		{"0.7 is not above 0.7", scored("5", 0, 0.7, 40, insight.TypeObservation), insight.LayerMid},
		{"age 30 is not recent", scored("6", 0, 0.1, 30, insight.TypeObservation), insight.LayerMid},
		{"somewhat effective", scored("7", 0, 0.5, 400, insight.TypeObservation), insight.LayerMid},
		{"0.4 is not above 0.4", scored("8", 0, 0.4, 90, insight.TypeObservation), insight.LayerDeep},
		{"old and weak", scored("9", 0, 0.2, 365, insight.TypeStrategy), insight.LayerDeep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Classify(tt.in))
		})
	}
}

func TestAssignRespectsCaps(t *testing.T) {
	l := NewLayerer(DefaultTiers())
	var list []Scored
	for i := 0; i < 10; i++ {
		list = append(list, scored(fmt.Sprintf("s%d", i), 0.9-float64(i)*0.01, 0.9, 0, insight.TypeAnchor))
		list = append(list, scored(fmt.Sprintf("m%d", i), 0.5-float64(i)*0.01, 0.5, 100, insight.TypeObservation))
		list = append(list, scored(fmt.Sprintf("d%d", i), 0.2-float64(i)*0.01, 0.1, 200, insight.TypeObservation))
	}

	got := l.Layer(list, nil, nil)
	assert.Len(t, got.Surface, 3)
	assert.Len(t, got.Mid, 8)
	assert.Len(t, got.Deep, 10, "deep is unbounded by default")
	assert.Equal(t, "s0", got.Surface[0].ID)
	assert.Equal(t, insight.LayerSurface, got.Surface[0].Layer)
	assert.Equal(t, insight.LayerMid, got.Mid[0].Layer)
	assert.Equal(t, insight.LayerDeep, got.Deep[0].Layer)
}

func TestAssignPutsEachInsightInOneTier(t *testing.T) {
	l := NewLayerer(TierParams{FingerprintChars: 100, SurfaceMinEffectiveness: 0.7, SurfaceMaxAgeDays: 30, MidMinEffectiveness: 0.4, MidMaxAgeDays: 90})
	var list []Scored
	for i := 0; i < 40; i++ {
		list = append(list, scored(fmt.Sprintf("i%02d", i), float64(i)/40, float64(i%10)/10, i*7, insight.TypeObservation))
	}
	got := l.Layer(list, nil, nil)

	seen := map[string]int{}
	for _, tier := range [][]Scored{got.Surface, got.Mid, got.Deep} {
		for _, s := range tier {
			seen[s.ID]++
		}
	}
	assert.Len(t, seen, 40)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestAssignPerTopicSurfaceCaps(t *testing.T) {
	l := NewLayerer(DefaultTiers())
	ranked := []Scored{
		scored("x1", 0.99, 0.9, 0, insight.TypeAnchor, "X"),
		scored("x2", 0.98, 0.9, 0, insight.TypeAnchor, "X"),
		scored("x3", 0.97, 0.9, 0, insight.TypeAnchor, "X"),
		scored("x4", 0.96, 0.9, 0, insight.TypeAnchor, "X"),
		scored("a1", 0.95, 0.9, 0, insight.TypeAnchor, "A"),
	}
	caps := map[string]int{"A": 3, "X": 2}

	got := l.Assign(ranked, []string{"A", "X"}, caps)
	var ids []string
	for _, s := range got.Surface {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"x1", "x2", "a1"}, ids, "X contributes at most two")
	assert.Empty(t, got.Mid, "over-cap surface candidates are dropped, not demoted")
}

func TestAssignChargesFirstTopicWithRoom(t *testing.T) {
	l := NewLayerer(TierParams{SurfaceCap: 10, FingerprintChars: 100, SurfaceMinEffectiveness: 0.7, SurfaceMaxAgeDays: 30})
	ranked := []Scored{
		scored("both1", 0.9, 0.9, 0, insight.TypeAnchor, "A", "X"),
		scored("both2", 0.8, 0.9, 0, insight.TypeAnchor, "A", "X"),
		scored("x1", 0.7, 0.9, 0, insight.TypeAnchor, "X"),
		scored("x2", 0.6, 0.9, 0, insight.TypeAnchor, "X"),
	}
	caps := map[string]int{"A": 1, "X": 2}

	got := l.Assign(ranked, []string{"A", "X"}, caps)
	var ids []string
	for _, s := range got.Surface {
		ids = append(ids, s.ID)
	}
	// both1 charges A, both2 falls through to X, x1 takes X's last slot.
	assert.Equal(t, []string{"both1", "both2", "x1"}, ids)
}
