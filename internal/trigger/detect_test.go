package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lazypower/recall/internal/lexicon"
)

func TestDetect(t *testing.T) {
	d := New(lexicon.Default())

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"keyword inflection and name", "I'm worried about trusting A", []string{"A"}},
		{"no topic", "The weather is nice today", nil},
		{"empty", "", nil},
		{"whitespace", "   \n\t", nil},
		{"article a is not entity A", "I had a long day at work", nil},
		{"lowercase name", "talked with n about it", nil},
		{"uppercase name", "N had a rough morning", []string{"N"}},
		{"name inside word", "Nice to see you", nil},
		{"case-insensitive keyword", "SCHOOL pickup was chaos", []string{"N"}},
		{"multi-word keyword", "my nervous   system was on fire", []string{"trauma_responses"}},
		{"possessive", "X's voice showed up again", []string{"X"}},
		{"alias", "that trauma thing again", []string{"X", "trauma_responses"}},
		{"shared keyword", "I caught myself scanning the room", []string{"X", "trauma_responses"}},
		{"several", "A and N both need structure", []string{"A", "N"}},
		{"keyword must start a word", "the distrust was palpable", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(tt.text))
		})
	}
}

func TestDetectCustomTable(t *testing.T) {
	l, err := lexicon.Parse([]byte(`
triggers:
  - entity: B
    keywords: [budget]
  - entity: launch_plan
    aliases: [launch]
    keywords: [go-live, "ship date"]
`))
	assert.NoError(t, err)
	d := New(l)

	assert.Equal(t, []string{"B", "launch_plan"}, d.Entities())
	assert.Equal(t, []string{"B"}, d.Detect("B wants the numbers"))
	assert.Nil(t, d.Detect("b wants the numbers"))
	assert.Equal(t, []string{"B"}, d.Detect("Budgets are tight"))
	assert.Equal(t, []string{"launch_plan"}, d.Detect("The go-live moved"))
	assert.Equal(t, []string{"launch_plan"}, d.Detect("what's the Ship  Date?"))
	assert.Equal(t, []string{"launch_plan"}, d.Detect("LAUNCH is friday"))
	assert.Nil(t, d.Detect("relaunched nothing"))
}

func TestCaseSensitive(t *testing.T) {
	assert.True(t, caseSensitive("A"))
	assert.True(t, caseSensitive("AN"))
	assert.False(t, caseSensitive("ANN"))
	assert.False(t, caseSensitive("a"))
	assert.False(t, caseSensitive("Ab"))
	assert.False(t, caseSensitive("42"))
}
