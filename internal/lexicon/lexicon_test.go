package lexicon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/recall/internal/insight"
)

func TestDefault(t *testing.T) {
	l := Default()

	assert.Equal(t, []string{"A", "N", "X", "trauma_responses"}, l.Entities())

	x, ok := l.Trigger("X")
	require.True(t, ok)
	assert.Equal(t, 2, x.MaxSurface)
	assert.Contains(t, x.Keywords, "inadequacy")

	assert.Contains(t, l.PermanenceMarkers, "core truth")
	assert.Contains(t, l.Effectiveness.Positive, "worked")
	assert.Contains(t, l.Effectiveness.Negative, "backfired")
	assert.Contains(t, l.ThemeNames(), "trust")
	require.NotEmpty(t, l.InsightTypes)
	assert.Equal(t, insight.TypeAnchor, l.InsightTypes[0].Type)
	assert.Len(t, l.CapturePatterns, 8)

	assert.Equal(t, map[string]int{"A": 3, "N": 3, "X": 2, "trauma_responses": 3}, l.SurfaceCaps())
}

func TestDefaultReturnsFreshCopy(t *testing.T) {
	a := Default()
	a.Triggers[0].Entity = "mutated"
	assert.Equal(t, "A", Default().Triggers[0].Entity)
}

func TestCanonFromAliases(t *testing.T) {
	c := Default().Canon()
	assert.Equal(t, "trauma_responses", c.Normalize("trauma"))
	assert.Equal(t, "trauma", c.Denormalize("trauma_responses"))
	assert.Equal(t, "A", c.Normalize("A"))
}

func TestParsePartialFillsDefaults(t *testing.T) {
	l, err := Parse([]byte(`
triggers:
  - entity: project_x
    aliases: [px]
    keywords: [deadline, launch]
    max_surface: 1
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"project_x"}, l.Entities())
	assert.NotEmpty(t, l.PermanenceMarkers, "missing sections keep the built-in values")
	assert.NotEmpty(t, l.Effectiveness.Positive)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate entity", "triggers:\n  - {entity: A, keywords: [x]}\n  - {entity: A, keywords: [y]}\n"},
		{"delimiter in entity", "triggers:\n  - {entity: 'A|B', keywords: [x]}\n"},
		{"negative cap", "triggers:\n  - {entity: A, keywords: [x], max_surface: -1}\n"},
		{"empty keyword", "triggers:\n  - {entity: A, keywords: ['  ']}\n"},
		{"bad marker regex", "permanence_markers: ['(unclosed']\n"},
		{"capture without group", "capture_patterns: ['I realized']\n"},
		{"unknown type", "insight_types:\n  - {type: rumor, patterns: [heard]}\n"},
		{"not yaml", "triggers: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	l, err := Load("")
	require.NoError(t, err)
	assert.Len(t, l.Triggers, 4)

	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("permanence_markers: ['never forget']\n"), 0o644))
	l, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"never forget"}, l.PermanenceMarkers)
	assert.Len(t, l.Triggers, 4)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
