// Package scheduler defers prompts whose text names a future time, firing
// them against the agent when that time arrives.
package scheduler

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Extraction is a prompt split into its schedule and its payload.
type Extraction struct {
	// FireAt is when the prompt should be submitted.
	FireAt time.Time

	// Prompt is the original text with the time phrase excised.
	Prompt string

	// Phrase is the matched time expression, kept for logging.
	Phrase string
}

// Extractor parses natural-language time expressions out of prompts.
type Extractor struct {
	parser *when.Parser
}

// NewExtractor builds an extractor with English and common rules.
func NewExtractor() *Extractor {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return &Extractor{parser: p}
}

// filler words that commonly glue a time phrase to the rest of the prompt
// and read badly once the phrase is gone.
var connectives = []string{"remind me", "at", "on", "in"}

// Extract looks for a future time expression in text, relative to ref. It
// returns false when no expression is found or the expression resolves to
// the past, in which case the prompt should run immediately.
func (e *Extractor) Extract(text string, ref time.Time) (*Extraction, bool, error) {
	r, err := e.parser.Parse(text, ref)
	if err != nil {
		return nil, false, err
	}
	if r == nil || !r.Time.After(ref) {
		return nil, false, nil
	}

	prompt := excise(text, r.Index, r.Text)
	if prompt == "" {
		prompt = strings.TrimSpace(text)
	}
	return &Extraction{FireAt: r.Time, Prompt: prompt, Phrase: r.Text}, true, nil
}

// excise removes the matched phrase and tidies the seam it leaves behind.
func excise(text string, index int, phrase string) string {
	before := text[:index]
	after := text[index+len(phrase):]

	before = strings.TrimRight(before, " \t")
	for _, c := range connectives {
		if strings.HasSuffix(strings.ToLower(before), " "+c) {
			before = strings.TrimRight(before[:len(before)-len(c)], " \t")
			break
		}
		if strings.EqualFold(before, c) {
			before = ""
			break
		}
	}

	joined := strings.TrimSpace(before + " " + strings.TrimSpace(after))
	return strings.Join(strings.Fields(joined), " ")
}
