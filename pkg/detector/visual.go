package detector

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"github.com/lansoai/agentbridge/pkg/types"
)

// Judge decides whether an accumulated draft reads as a finished answer.
// Implemented by the external completion judge; tests use fakes.
type Judge interface {
	IsComplete(ctx context.Context, draft string) (bool, error)
}

// VisualConfig tunes the visual polling strategy.
type VisualConfig struct {
	// PollInterval is the delay between screenshot polls.
	PollInterval time.Duration

	// Timeout is the hard wall-clock ceiling for the whole detection.
	Timeout time.Duration

	// AnswerSelector, when set, enables the DOM sniff short-circuit: once
	// the answer container holds text and the page has gone quiet, the
	// detection self-terminates without a judge call.
	AnswerSelector string

	// SpinnerSelector matches the agent's "working" indicator. Judge calls
	// are gated on it staying gone for QuietPolls consecutive polls.
	SpinnerSelector string

	// QuietPolls is how many consecutive spinner-free polls must pass
	// before the page counts as quiet.
	QuietPolls int

	// JudgeEvery is the judge call cadence, in polls. Judge calls are much
	// more expensive than screenshots, so they run on a slower clock.
	JudgeEvery int
}

func (c VisualConfig) withDefaults() VisualConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Minute
	}
	if c.QuietPolls <= 0 {
		c.QuietPolls = 3
	}
	if c.JudgeEvery <= 0 {
		c.JudgeEvery = 5
	}
	return c
}

// VisualDetector polls full-page screenshots, emitting a frame event whenever
// the page content changes, and terminates either through a DOM sniff of the
// answer container or by asking an external judge about the accumulated page
// text.
type VisualDetector struct {
	cfg   VisualConfig
	judge Judge // optional
}

var _ Strategy = (*VisualDetector)(nil)

// NewVisual creates a visual polling detector. judge may be nil, in which
// case only the DOM sniff can terminate the detection early.
func NewVisual(cfg VisualConfig, judge Judge) *VisualDetector {
	return &VisualDetector{cfg: cfg.withDefaults(), judge: judge}
}

// Wait polls screenshots until the answer is complete or the ceiling passes.
func (d *VisualDetector) Wait(ctx context.Context, tab Tab, emit EmitFunc) types.Verdict {
	cfg := d.cfg
	deadline := time.Now().Add(cfg.Timeout)

	var lastHash [sha256.Size]byte
	var logs []string
	quiet := 0

	for poll := 1; time.Now().Before(deadline); poll++ {
		select {
		case <-ctx.Done():
			return types.Verdict{Kind: types.VerdictTimedOut, Answer: TimeoutMessage, Logs: logs}
		case <-time.After(cfg.PollInterval):
		}

		// Frame diffing: identical screenshots are suppressed so a static
		// page emits nothing.
		if frame, err := tab.Screenshot(true); err == nil {
			hash := sha256.Sum256(frame)
			if hash != lastHash {
				lastHash = hash
				emit(types.NewFrameEvent(base64.StdEncoding.EncodeToString(frame)))
			}
		}

		working := d.working(tab)
		if working {
			quiet = 0
			continue
		}
		quiet++
		if quiet < cfg.QuietPolls {
			continue
		}

		// DOM sniff: a populated answer container on a quiet page is the
		// cheapest terminal signal.
		if cfg.AnswerSelector != "" {
			if answer := d.sniff(tab); answer != "" {
				logs = append(logs, answer)
				emit(types.NewLogEvent(answer))
				return types.Verdict{Kind: types.VerdictAnswered, Answer: answer, Logs: logs}
			}
		}

		if d.judge != nil && poll%cfg.JudgeEvery == 0 {
			draft, err := tab.PageText()
			if err != nil || strings.TrimSpace(draft) == "" {
				continue
			}
			done, err := d.judge.IsComplete(ctx, draft)
			if err != nil {
				// Judge unavailability must not abort detection.
				continue
			}
			if done {
				return types.Verdict{Kind: types.VerdictAnswered, Answer: draft, Logs: logs}
			}
		}
	}

	return types.Verdict{Kind: types.VerdictTimedOut, Answer: TimeoutMessage, Logs: logs}
}

// working probes the spinner indicator. Probe failures count as still
// working; a disappearing DOM should delay judging, not trigger it.
func (d *VisualDetector) working(tab Tab) bool {
	if d.cfg.SpinnerSelector == "" {
		return false
	}
	texts, err := tab.QueryTexts(d.cfg.SpinnerSelector)
	if err != nil {
		return true
	}
	return len(texts) > 0
}

func (d *VisualDetector) sniff(tab Tab) string {
	texts, err := tab.QueryTexts(d.cfg.AnswerSelector)
	if err != nil || len(texts) == 0 {
		return ""
	}
	return strings.TrimSpace(texts[len(texts)-1])
}
