package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/lazypower/recall/internal/insight"
	"github.com/lazypower/recall/internal/lexicon"
	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/trigger"
)

// maxLLMCandidates caps what one extraction call may return.
const maxLLMCandidates = 5

// Extractor finds candidate insights in free text. Candidates are not
// stored; callers ingest the ones they keep.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]insight.Draft, error)
}

// PatternExtractor pulls insights out of text with the lexicon's capture
// patterns ("I realized that ...").
type PatternExtractor struct {
	captures   []*regexp.Regexp
	detector   *trigger.Detector
	classifier *Classifier
	maxContent int
}

func NewPatternExtractor(l *lexicon.Lexicon, maxContent int) *PatternExtractor {
	p := &PatternExtractor{
		detector:   trigger.New(l),
		classifier: NewClassifier(l),
		maxContent: maxContent,
	}
	for _, c := range l.CapturePatterns {
		p.captures = append(p.captures, regexp.MustCompile("(?i)"+c))
	}
	return p
}

// Extract returns one draft per distinct captured fragment, in the order
// they appear. Fragments of ten characters or fewer are ignored.
func (p *PatternExtractor) Extract(_ context.Context, text string) ([]insight.Draft, error) {
	type hit struct {
		at       int
		fragment string
	}
	var hits []hit
	for _, re := range p.captures {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if m[2] < 0 {
				continue
			}
			hits = append(hits, hit{at: m[0], fragment: firstSentence(text[m[2]:m[3]])})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })

	seen := make(map[string]bool)
	var drafts []insight.Draft
	for _, h := range hits {
		if len([]rune(h.fragment)) <= minFragmentChars {
			continue
		}
		key := strings.ToLower(h.fragment)
		if seen[key] {
			continue
		}
		seen[key] = true
		drafts = append(drafts, p.Annotate(insight.Draft{Content: truncateClean(h.fragment, p.maxContent)}))
	}
	return drafts, nil
}

// Annotate fills in entities, themes and type from the content when the
// draft does not carry them.
func (p *PatternExtractor) Annotate(d insight.Draft) insight.Draft {
	if len(d.Entities) == 0 {
		d.Entities = p.detector.Detect(d.Content)
	}
	if len(d.Themes) == 0 {
		d.Themes = p.classifier.Themes(d.Content)
	}
	if d.Type == "" {
		d.Type = p.classifier.Type(d.Content)
	}
	return d
}

// LLMExtractor asks a model for insights and falls back to patterns when
// the model fails or returns nothing usable.
type LLMExtractor struct {
	client   llm.Client
	fallback *PatternExtractor
	entities []string
	themes   []string
	log      *slog.Logger
}

func NewLLMExtractor(client llm.Client, l *lexicon.Lexicon, maxContent int, log *slog.Logger) *LLMExtractor {
	if log == nil {
		log = slog.Default()
	}
	return &LLMExtractor{
		client:   client,
		fallback: NewPatternExtractor(l, maxContent),
		entities: l.Entities(),
		themes:   l.ThemeNames(),
		log:      log,
	}
}

func (x *LLMExtractor) Extract(ctx context.Context, text string) ([]insight.Draft, error) {
	drafts, err := x.extract(ctx, text)
	if err != nil {
		x.log.Warn("extract: model failed, using patterns", "err", err)
		return x.fallback.Extract(ctx, text)
	}
	if len(drafts) == 0 {
		return x.fallback.Extract(ctx, text)
	}
	return drafts, nil
}

func (x *LLMExtractor) extract(ctx context.Context, text string) ([]insight.Draft, error) {
	resp, err := x.client.Complete(ctx, llm.InsightExtractionPrompt(text, x.entities, x.themes))
	if err != nil {
		return nil, fmt.Errorf("llm extraction: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("llm extraction: empty response")
	}

	candidates, err := parseExtractionResponse(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	if len(candidates) > maxLLMCandidates {
		x.log.Debug("extract: capping candidates", "got", len(candidates), "max", maxLLMCandidates)
		candidates = candidates[:maxLLMCandidates]
	}

	var drafts []insight.Draft
	for _, c := range candidates {
		d, err := validateCandidate(c, x.fallback.maxContent)
		if err != nil {
			x.log.Debug("extract: rejecting candidate", "err", err)
			continue
		}
		drafts = append(drafts, x.fallback.Annotate(d))
	}
	return drafts, nil
}

// parseExtractionResponse extracts a JSON array from the LLM response.
// The response might contain markdown code fences or other wrapper text.
func parseExtractionResponse(content string) ([]insightCandidate, error) {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) > 2 {
			content = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var candidates []insightCandidate
	if err := json.Unmarshal([]byte(content[start:end+1]), &candidates); err != nil {
		return nil, fmt.Errorf("unmarshal candidates: %w", err)
	}
	return candidates, nil
}
