package engine

import (
	"strings"

	"github.com/lazypower/recall/internal/insight"
)

// TierParams controls tier assignment. A cap of zero means unbounded.
type TierParams struct {
	SurfaceCap              int
	MidCap                  int
	DeepCap                 int
	SurfaceMinEffectiveness float64
	SurfaceMaxAgeDays       int
	MidMinEffectiveness     float64
	MidMaxAgeDays           int
	FingerprintChars        int
}

// DefaultTiers returns the reference tier settings.
func DefaultTiers() TierParams {
	return TierParams{
		SurfaceCap:              3,
		MidCap:                  8,
		DeepCap:                 0,
		SurfaceMinEffectiveness: 0.7,
		SurfaceMaxAgeDays:       30,
		MidMinEffectiveness:     0.4,
		MidMaxAgeDays:           90,
		FingerprintChars:        100,
	}
}

// Tiers is a layered result. Each tier is ordered best first.
type Tiers struct {
	Surface []Scored `json:"surface"`
	Mid     []Scored `json:"mid"`
	Deep    []Scored `json:"deep"`
}

// Total is the number of insights across all tiers.
func (t Tiers) Total() int {
	return len(t.Surface) + len(t.Mid) + len(t.Deep)
}

// Layerer buckets scored insights into tiers.
type Layerer struct {
	p TierParams
}

func NewLayerer(p TierParams) *Layerer {
	if p.FingerprintChars <= 0 {
		p.FingerprintChars = DefaultTiers().FingerprintChars
	}
	return &Layerer{p: p}
}

// Fingerprint is the dedup key: lower-cased content with whitespace runs
// collapsed, cut to n characters.
func Fingerprint(content string, n int) string {
	norm := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	r := []rune(norm)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// Rank removes duplicate content, keeping the higher-scoring copy, and
// returns the survivors best first.
func (l *Layerer) Rank(list []Scored) []Scored {
	best := make(map[string]int, len(list))
	out := make([]Scored, 0, len(list))
	for _, s := range list {
		fp := Fingerprint(s.Content, l.p.FingerprintChars)
		i, seen := best[fp]
		if !seen {
			best[fp] = len(out)
			out = append(out, s)
			continue
		}
		if better(s, out[i]) {
			out[i] = s
		}
	}
	sortScored(out)
	return out
}

// Classify returns the tier a scored insight belongs in, by the first
// matching rule: surface, then mid, then deep.
func (l *Layerer) Classify(s Scored) insight.Layer {
	switch {
	case s.Type.Pinned(),
		s.Effectiveness > l.p.SurfaceMinEffectiveness,
		s.AgeDays < l.p.SurfaceMaxAgeDays:
		return insight.LayerSurface
	case s.Effectiveness > l.p.MidMinEffectiveness,
		s.AgeDays < l.p.MidMaxAgeDays:
		return insight.LayerMid
	default:
		return insight.LayerDeep
	}
}

// Assign buckets an already ranked list. topics are the activated entities
// in detection order; topicCaps limits how many surface slots each may
// fill. A surface candidate is admitted while the global cap and at least
// one of its activated topics have room, and is charged to the first such
// topic. Candidates past a cap are dropped.
func (l *Layerer) Assign(ranked []Scored, topics []string, topicCaps map[string]int) Tiers {
	var t Tiers
	used := make(map[string]int, len(topics))
	for _, s := range ranked {
		layer := l.Classify(s)
		s.Layer = layer
		switch layer {
		case insight.LayerSurface:
			if full(len(t.Surface), l.p.SurfaceCap) {
				continue
			}
			topic, ok := l.surfaceSlot(s, topics, topicCaps, used)
			if !ok {
				continue
			}
			if topic != "" {
				used[topic]++
			}
			t.Surface = append(t.Surface, s)
		case insight.LayerMid:
			if !full(len(t.Mid), l.p.MidCap) {
				t.Mid = append(t.Mid, s)
			}
		default:
			if !full(len(t.Deep), l.p.DeepCap) {
				t.Deep = append(t.Deep, s)
			}
		}
	}
	return t
}

// surfaceSlot finds the topic to charge. An empty topic with ok means no
// activated topic applies, so only the global cap counts.
func (l *Layerer) surfaceSlot(s Scored, topics []string, caps map[string]int, used map[string]int) (string, bool) {
	tagged := false
	for _, topic := range topics {
		if !s.Entities.Contains(topic) {
			continue
		}
		tagged = true
		if !full(used[topic], caps[topic]) {
			return topic, true
		}
	}
	return "", !tagged
}

// Layer runs Rank then Assign.
func (l *Layerer) Layer(list []Scored, topics []string, topicCaps map[string]int) Tiers {
	return l.Assign(l.Rank(list), topics, topicCaps)
}

func full(n, limit int) bool {
	return limit > 0 && n >= limit
}
