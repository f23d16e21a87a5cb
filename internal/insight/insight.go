// Package insight defines the stored unit of retrievable text and the
// canonical forms it is persisted in.
package insight

import (
	"time"
)

// Type classifies how an insight was arrived at.
type Type string

const (
	TypeAnchor       Type = "anchor"
	TypeBreakthrough Type = "breakthrough"
	TypeStrategy     Type = "strategy"
	TypeObservation  Type = "observation"
)

// Valid reports whether t is a known insight type.
func (t Type) Valid() bool {
	switch t {
	case TypeAnchor, TypeBreakthrough, TypeStrategy, TypeObservation:
		return true
	}
	return false
}

// Pinned reports whether insights of this type always surface.
func (t Type) Pinned() bool {
	return t == TypeAnchor || t == TypeBreakthrough
}

// GrowthStage tracks whether an insight is still current.
type GrowthStage string

const (
	StageFoundational GrowthStage = "foundational"
	StageEvolved      GrowthStage = "evolved"
	StageSuperseded   GrowthStage = "superseded"
)

func (g GrowthStage) Valid() bool {
	switch g {
	case StageFoundational, StageEvolved, StageSuperseded:
		return true
	}
	return false
}

// Layer is a disclosure tier. On a stored record it is only a hint;
// retrieval recomputes it.
type Layer string

const (
	LayerSurface Layer = "surface"
	LayerMid     Layer = "mid"
	LayerDeep    Layer = "deep"
)

func (l Layer) Valid() bool {
	switch l {
	case LayerSurface, LayerMid, LayerDeep:
		return true
	}
	return false
}

// DefaultEffectiveness is the score given when nothing says otherwise.
const DefaultEffectiveness = 0.5

// Insight is one stored unit of retrievable text.
type Insight struct {
	ID            string      `json:"id"`
	Content       string      `json:"content"`
	Entities      Set         `json:"entities"`
	Themes        Set         `json:"themes"`
	Timestamp     time.Time   `json:"timestamp"`
	Effectiveness float64     `json:"effectiveness_score"`
	GrowthStage   GrowthStage `json:"growth_stage"`
	Layer         Layer       `json:"layer"`
	Type          Type        `json:"insight_type"`
	Supersedes    []string    `json:"supersedes,omitempty"`
	SupersededBy  string      `json:"superseded_by,omitempty"`
	Source        string      `json:"source,omitempty"`
	Context       string      `json:"context,omitempty"`
}

// AgeDays returns the whole days elapsed between the insight's timestamp
// and now. Timestamps in the future count as age zero.
func (in *Insight) AgeDays(now time.Time) int {
	return AgeDays(in.Timestamp, now)
}

// AgeDays returns floor((now - ts) / 24h), never negative.
func AgeDays(ts, now time.Time) int {
	d := now.Sub(ts)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// Current reports whether the insight has not been replaced.
func (in *Insight) Current() bool {
	return in.SupersededBy == "" && in.GrowthStage != StageSuperseded
}
