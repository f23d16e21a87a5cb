// Package transcript turns conversation files into speaker segments.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	longSegmentChars  = 1000
	minParagraphChars = 50
	minSegmentChars   = 30
)

// Segment is one stretch of a conversation, usually a single turn.
type Segment struct {
	Index   int    `json:"index"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

// Conversation is a parsed conversation file.
type Conversation struct {
	Path     string
	Name     string
	Date     time.Time
	Segments []Segment
}

// Ref names a segment within the conversation, e.g. "8-19-25.md#3".
func (c *Conversation) Ref(s Segment) string {
	return fmt.Sprintf("%s#%d", c.Name, s.Index)
}

var (
	speakerRe  = regexp.MustCompile(`\*\*(Human|Claude|Assistant):\*\*`)
	fileDateRe = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})(?:\.\d+)?-(\d{2}|\d{4})$`)
)

// Supported reports whether ParseFile can read path.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt", ".html", ".htm", ".jsonl":
		return true
	}
	return false
}

// ParseFile reads a markdown, plain text, HTML or Claude Code JSONL
// conversation. The date comes from the file name when it has one
// (8-19-25.md, 7-28.2-25.md), otherwise from the modification time.
func ParseFile(path string) (*Conversation, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	c := &Conversation{Path: path, Name: filepath.Base(path)}
	if d, ok := DateFromName(c.Name); ok {
		c.Date = d
	} else {
		c.Date = info.ModTime().UTC()
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".jsonl":
		entries, err := ParseJSONL(path)
		if err != nil {
			return nil, err
		}
		for i, e := range Condense(entries) {
			c.Segments = append(c.Segments, Segment{Index: i, Speaker: e.Type, Text: e.Text})
		}
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		text, err := HTMLText(f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		c.Segments = SplitSegments(text)
	case ".md", ".markdown", ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		c.Segments = SplitSegments(toValidUTF8(data))
	default:
		return nil, fmt.Errorf("unsupported conversation file %q", ext)
	}
	return c, nil
}

// SplitSegments splits a conversation on **Human:**, **Claude:** and
// **Assistant:** markers. Segments over 1000 characters are split again on
// blank lines, keeping paragraphs over 50 characters. Segments of 30
// characters or fewer are dropped.
func SplitSegments(content string) []Segment {
	type turn struct{ speaker, text string }
	var turns []turn

	locs := speakerRe.FindAllStringSubmatchIndex(content, -1)
	prev, speaker := 0, ""
	for _, loc := range locs {
		turns = append(turns, turn{speaker, content[prev:loc[0]]})
		speaker = strings.ToLower(content[loc[2]:loc[3]])
		prev = loc[1]
	}
	turns = append(turns, turn{speaker, content[prev:]})

	var out []Segment
	add := func(speaker, text string) {
		text = strings.TrimSpace(text)
		if utf8.RuneCountInString(text) <= minSegmentChars {
			return
		}
		out = append(out, Segment{Index: len(out), Speaker: speaker, Text: text})
	}
	for _, t := range turns {
		text := strings.TrimSpace(t.text)
		if utf8.RuneCountInString(text) <= longSegmentChars {
			add(t.speaker, text)
			continue
		}
		for _, p := range strings.Split(text, "\n\n") {
			if utf8.RuneCountInString(strings.TrimSpace(p)) > minParagraphChars {
				add(t.speaker, p)
			}
		}
	}
	return out
}

// DateFromName parses month-day-year file names. Two-digit years below 50
// are 20xx, the rest 19xx. A ".N" part suffix on the day is ignored.
func DateFromName(name string) (time.Time, bool) {
	m := fileDateRe.FindStringSubmatch(name)
	if m == nil {
		m = fileDateRe.FindStringSubmatch(strings.TrimSuffix(name, filepath.Ext(name)))
	}
	if m == nil {
		return time.Time{}, false
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Month() != time.Month(month) || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

func toValidUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "")
}
