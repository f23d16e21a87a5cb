package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// ParsedEntry is one message of a Claude Code JSONL transcript, reduced to
// its visible text.
type ParsedEntry struct {
	Type string // "user", "assistant", "system"
	Role string
	Text string
}

// record is the subset of a transcript line recall reads. Content is a
// plain string or a list of typed blocks.
type record struct {
	Type    string `json:"type"`
	Message *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type block struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// minEntryChars drops acknowledgements like "ok".
const minEntryChars = 5

var systemReminderRe = regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`)

// ParseJSONL reads the transcript at path.
func ParseJSONL(path string) ([]ParsedEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	return readEntries(f)
}

// ParseLines parses transcript content held in memory.
func ParseLines(content string) ([]ParsedEntry, error) {
	return readEntries(strings.NewReader(content))
}

// readEntries decodes one record per line. Lines that are not records, or
// whose text is empty, too short or itself JSON, are skipped.
func readEntries(r io.Reader) ([]ParsedEntry, error) {
	var entries []ParsedEntry
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if e, ok := decodeEntry(bytes.TrimSpace(line)); ok {
			entries = append(entries, e)
		}
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read transcript: %w", err)
		}
	}
}

func decodeEntry(line []byte) (ParsedEntry, bool) {
	if len(line) == 0 {
		return ParsedEntry{}, false
	}
	var rec record
	if json.Unmarshal(line, &rec) != nil || rec.Type == "" || rec.Message == nil {
		return ParsedEntry{}, false
	}

	text := strings.TrimSpace(systemReminderRe.ReplaceAllString(contentText(rec.Message.Content), ""))
	if len(text) < minEntryChars || strings.HasPrefix(text, "{") {
		return ParsedEntry{}, false
	}
	return ParsedEntry{Type: rec.Type, Role: rec.Message.Role, Text: text}, true
}

// contentText joins the text blocks of a message. Tool calls and results
// carry no conversational text and are ignored.
func contentText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var blocks []block
	if json.Unmarshal(raw, &blocks) != nil {
		return ""
	}
	texts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// CountUserMessages returns the number of user messages in the entries.
func CountUserMessages(entries []ParsedEntry) int {
	n := 0
	for _, e := range entries {
		if e.Type == "user" {
			n++
		}
	}
	return n
}
