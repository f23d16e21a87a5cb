package insight

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Delimiter separates tokens in the serialized form of a Set. Valid tokens
// never contain it, so a membership probe for "|N|" cannot match "|AN|".
const Delimiter = "|"

const (
	// MaxTokenLen bounds a single entity or theme token, in bytes.
	MaxTokenLen = 64
	// MaxSetSize bounds the number of tokens in one set.
	MaxSetSize = 20
)

// Set is an unordered collection of short tokens held in canonical form:
// trimmed, de-duplicated and sorted. The zero value is the empty set.
type Set []string

// NewSet builds the canonical form of the given tokens. Blank tokens are
// dropped. The result is nil when nothing remains.
func NewSet(tokens ...string) Set {
	seen := make(map[string]struct{}, len(tokens))
	var out Set
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether tok is a member. Matching is on the full token.
func (s Set) Contains(tok string) bool {
	for _, v := range s {
		if v == tok {
			return true
		}
	}
	return false
}

// Encode returns the serialized form: each token wrapped in delimiters,
// e.g. "|A|N|". The empty set encodes to "".
func (s Set) Encode() string {
	c := NewSet(s...)
	if len(c) == 0 {
		return ""
	}
	return Delimiter + strings.Join(c, Delimiter) + Delimiter
}

// DecodeSet parses the output of Encode.
func DecodeSet(raw string) Set {
	raw = strings.Trim(raw, Delimiter)
	if raw == "" {
		return nil
	}
	return NewSet(strings.Split(raw, Delimiter)...)
}

// MarshalJSON encodes the empty set as [] rather than null.
func (s Set) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

// ValidateToken checks that tok can be stored in a Set and found again.
func ValidateToken(tok string) error {
	if strings.TrimSpace(tok) == "" {
		return fmt.Errorf("empty token")
	}
	if len(tok) > MaxTokenLen {
		return fmt.Errorf("token %q exceeds %d bytes", truncate(tok, 16), MaxTokenLen)
	}
	if strings.Contains(tok, Delimiter) {
		return fmt.Errorf("token %q contains reserved %q", tok, Delimiter)
	}
	for _, r := range tok {
		if unicode.IsControl(r) {
			return fmt.Errorf("token %q contains a control character", tok)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
