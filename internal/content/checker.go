// Package content validates campaign text fields against a prohibited-word
// list before a campaign record is created.
package content

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Checker matches prohibited words with case-insensitive, whole-word-boundary
// semantics.
type Checker struct {
	words    []string
	patterns []*regexp.Regexp
}

// NewChecker compiles word-boundary patterns for the given prohibited words.
func NewChecker(prohibitedWords []string) *Checker {
	c := &Checker{}
	for _, w := range prohibitedWords {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		c.words = append(c.words, w)
		c.patterns = append(c.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return c
}

// FieldResult holds the prohibited words found in a single field.
type FieldResult struct {
	Valid      bool     `json:"is_valid"`
	FoundWords []string `json:"found_words,omitempty"`
}

// Report aggregates violations across named fields.
type Report struct {
	Valid      bool                `json:"is_valid"`
	Violations map[string][]string `json:"violations,omitempty"`
	Message    string              `json:"message"`
}

// CheckText scans a single text value.
func (c *Checker) CheckText(text string) FieldResult {
	if text == "" {
		return FieldResult{Valid: true}
	}
	var found []string
	for i, pattern := range c.patterns {
		if pattern.MatchString(text) {
			found = append(found, c.words[i])
		}
	}
	return FieldResult{Valid: len(found) == 0, FoundWords: found}
}

// CheckFields scans a set of named fields and returns the aggregate report.
// Field order in the message is deterministic.
func (c *Checker) CheckFields(fields map[string]string) Report {
	violations := map[string][]string{}
	for name, text := range fields {
		if res := c.CheckText(text); !res.Valid {
			violations[name] = res.FoundWords
		}
	}
	if len(violations) == 0 {
		return Report{Valid: true, Message: "content validation passed"}
	}

	names := make([]string, 0, len(violations))
	for name := range violations {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(violations[name], ", ")))
	}
	return Report{
		Valid:      false,
		Violations: violations,
		Message:    "prohibited words found in " + strings.Join(parts, "; "),
	}
}
