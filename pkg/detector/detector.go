// Package detector decides when the remote agent has finished answering.
//
// After a prompt is submitted the detector observes the tab until it can
// return a terminal verdict: answered with the extracted text, errored, or
// timed out. Two observation strategies implement the same interface:
// sentinel-token DOM polling (the primary path) and visual polling with an
// external judge.
package detector

import (
	"context"
	"strings"
	"time"

	"github.com/lansoai/agentbridge/pkg/types"
)

// Fixed user-visible messages for non-answer verdicts.
const (
	// RemoteErrorMessage is the answer text when the agent signals it
	// cannot answer.
	RemoteErrorMessage = "[agent reported it could not answer this prompt]"

	// DeadPageMessage is the answer text when the tab stops responding
	// mid-detection.
	DeadPageMessage = "[conversation tab became unavailable while waiting for the answer]"

	// TimeoutMessage is the placeholder answer for submissions that never
	// produce a completion signal.
	TimeoutMessage = "[agent response did not complete in time]"
)

// maxConsecutiveReadFailures bounds how many whole-page read failures in a
// row we tolerate before concluding the tab is gone. Individual node
// failures are already skipped inside the tab.
const maxConsecutiveReadFailures = 3

// Tab is the observation surface a strategy polls after a prompt is
// submitted. *browser.Tab satisfies it; tests script fakes.
type Tab interface {
	QueryTexts(selector string) ([]string, error)
	Screenshot(fullPage bool) ([]byte, error)
	PageText() (string, error)
}

// EmitFunc receives progress events during detection. It is never called
// after the strategy returns.
type EmitFunc func(types.Event)

// Strategy observes a tab until it reaches a terminal verdict.
type Strategy interface {
	Wait(ctx context.Context, tab Tab, emit EmitFunc) types.Verdict
}

// Config tunes the sentinel polling strategy.
type Config struct {
	// MessagesSelector matches every message-like node in the conversation.
	MessagesSelector string

	// PollInterval is the fixed delay between DOM polls.
	PollInterval time.Duration

	// MaxPolls bounds the total wait: MaxPolls * PollInterval is the
	// wall-clock ceiling.
	MaxPolls int

	// SettleDelay is the pause before re-reading a node that produced the
	// completion sentinel suspiciously early. Zero disables the re-read.
	SettleDelay time.Duration

	// Sentinels are the completion and error tokens to watch for.
	Sentinels Sentinels
}

func (c Config) withDefaults() Config {
	if c.MessagesSelector == "" {
		c.MessagesSelector = "div[data-message-id], div.prose"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = 60
	}
	if c.Sentinels.Done == "" {
		c.Sentinels = DefaultSentinels()
	}
	return c
}

// Detector is the sentinel-token polling strategy.
type Detector struct {
	cfg Config
}

var _ Strategy = (*Detector)(nil)

// New creates a sentinel polling detector.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// Wait polls the conversation until a sentinel appears or the poll budget is
// exhausted. Every newly observed message text is emitted exactly once as a
// log event, in discovery order.
func (d *Detector) Wait(ctx context.Context, tab Tab, emit EmitFunc) types.Verdict {
	cfg := d.cfg
	seen := make(map[string]struct{})
	var logs []string
	readFailures := 0

	for poll := 0; poll < cfg.MaxPolls; poll++ {
		select {
		case <-ctx.Done():
			return types.Verdict{Kind: types.VerdictTimedOut, Answer: TimeoutMessage, Logs: logs}
		case <-time.After(cfg.PollInterval):
		}

		texts, err := tab.QueryTexts(cfg.MessagesSelector)
		if err != nil {
			readFailures++
			if readFailures >= maxConsecutiveReadFailures {
				return types.Verdict{Kind: types.VerdictErrored, Answer: DeadPageMessage, Logs: logs}
			}
			continue
		}
		readFailures = 0

		for idx, text := range texts {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			if _, ok := seen[text]; ok {
				continue
			}
			seen[text] = struct{}{}
			logs = append(logs, text)
			emit(types.NewLogEvent(text))

			if cfg.Sentinels.IsError(text) {
				return types.Verdict{Kind: types.VerdictErrored, Answer: RemoteErrorMessage, Logs: logs}
			}
			if cfg.Sentinels.IsComplete(text) {
				final := d.settle(ctx, tab, idx, text)
				return types.Verdict{
					Kind:   types.VerdictAnswered,
					Answer: cfg.Sentinels.Strip(final),
					Logs:   logs,
				}
			}
		}
	}

	return types.Verdict{Kind: types.VerdictTimedOut, Answer: TimeoutMessage, Logs: logs}
}

// settle guards against a sentinel that appeared inside a still-rendering
// block: when the completing text looks suspiciously unfinished, the node is
// re-read after a short delay and the longer re-read wins if it grew and
// still carries the sentinel.
func (d *Detector) settle(ctx context.Context, tab Tab, idx int, text string) string {
	if d.cfg.SettleDelay <= 0 || !suspicious(d.cfg.Sentinels.Strip(text)) {
		return text
	}

	select {
	case <-ctx.Done():
		return text
	case <-time.After(d.cfg.SettleDelay):
	}

	texts, err := tab.QueryTexts(d.cfg.MessagesSelector)
	if err != nil || idx >= len(texts) {
		return text
	}
	reread := strings.TrimSpace(texts[idx])
	if len(reread) > len(text) && d.cfg.Sentinels.IsComplete(reread) {
		return reread
	}
	return text
}

// suspicious reports whether an answer candidate looks like a partial
// render: very short, or cut off without terminal punctuation.
func suspicious(answer string) bool {
	answer = strings.TrimSpace(answer)
	if len(answer) < 40 {
		return true
	}
	switch answer[len(answer)-1] {
	case '.', '!', '?', ':', ')', '"', '\'', '`':
		return false
	}
	return true
}
