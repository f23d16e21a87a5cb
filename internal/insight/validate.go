package insight

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lazypower/recall/internal/errs"
)

const (
	// MaxContentChars is the default content ceiling for ingestion.
	MaxContentChars = 2000
	maxIDLen        = 128
)

// Draft is an insight as submitted for ingestion. Zero fields are filled in
// by the ingestion path; a nil Effectiveness asks for it to be computed.
type Draft struct {
	ID            string      `json:"id,omitempty"`
	Content       string      `json:"content"`
	Entities      []string    `json:"entities,omitempty"`
	Themes        []string    `json:"themes,omitempty"`
	Timestamp     time.Time   `json:"timestamp,omitempty"`
	Effectiveness *float64    `json:"effectiveness_score,omitempty"`
	GrowthStage   GrowthStage `json:"growth_stage,omitempty"`
	Layer         Layer       `json:"layer,omitempty"`
	Type          Type        `json:"insight_type,omitempty"`
	Supersedes    []string    `json:"supersedes,omitempty"`
	SupersededBy  string      `json:"superseded_by,omitempty"`
	Source        string      `json:"source,omitempty"`
	Context       string      `json:"context,omitempty"`
}

// Score returns a pointer to v, for filling Draft.Effectiveness.
func Score(v float64) *float64 { return &v }

// Validate checks every invariant a stored insight must hold.
// maxContent <= 0 means MaxContentChars.
func Validate(in *Insight, maxContent int) error {
	const op = "validate insight"
	if maxContent <= 0 {
		maxContent = MaxContentChars
	}

	if strings.TrimSpace(in.ID) == "" {
		return errs.Validation(op, "id is required")
	}
	if len(in.ID) > maxIDLen {
		return errs.Validation(op, "id exceeds %d bytes", maxIDLen)
	}

	if strings.TrimSpace(in.Content) == "" {
		return errs.Validation(op, "content is empty")
	}
	if n := utf8.RuneCountInString(in.Content); n > maxContent {
		return errs.Validation(op, "content is %d characters, limit %d", n, maxContent)
	}

	if err := validateSet("entities", in.Entities); err != nil {
		return err
	}
	if err := validateSet("themes", in.Themes); err != nil {
		return err
	}

	if in.Timestamp.IsZero() {
		return errs.Validation(op, "timestamp is required")
	}
	if math.IsNaN(in.Effectiveness) || in.Effectiveness < 0 || in.Effectiveness > 1 {
		return errs.Validation(op, "effectiveness_score %v outside [0,1]", in.Effectiveness)
	}

	if !in.GrowthStage.Valid() {
		return errs.Validation(op, "unknown growth_stage %q", in.GrowthStage)
	}
	if !in.Layer.Valid() {
		return errs.Validation(op, "unknown layer %q", in.Layer)
	}
	if !in.Type.Valid() {
		return errs.Validation(op, "unknown insight_type %q", in.Type)
	}

	for _, id := range in.Supersedes {
		if strings.TrimSpace(id) == "" {
			return errs.Validation(op, "supersedes contains an empty id")
		}
		if id == in.ID {
			return errs.Validation(op, "insight cannot supersede itself")
		}
	}
	if in.SupersededBy == in.ID {
		return errs.Validation(op, "insight cannot be superseded by itself")
	}
	return nil
}

func validateSet(field string, s Set) error {
	if len(s) > MaxSetSize {
		return errs.Validation("validate insight", "%s has %d members, limit %d", field, len(s), MaxSetSize)
	}
	for _, tok := range s {
		if err := ValidateToken(tok); err != nil {
			return errs.Validation("validate insight", "%s: %v", field, err)
		}
	}
	return nil
}
