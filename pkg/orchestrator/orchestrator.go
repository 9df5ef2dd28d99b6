// Package orchestrator drives one prompt submission end to end: resolve the
// conversation's live tab, type the prompt, and watch the page until the
// agent's answer completes.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/lansoai/agentbridge/pkg/config"
	"github.com/lansoai/agentbridge/pkg/detector"
	"github.com/lansoai/agentbridge/pkg/logging"
	"github.com/lansoai/agentbridge/pkg/registry"
	"github.com/lansoai/agentbridge/pkg/types"
)

// DefaultConversation is the conversation key used when a caller does not
// name one.
const DefaultConversation = "default"

// Sessions resolves conversation keys to live tabs.
// Satisfied by *registry.Registry.
type Sessions interface {
	GetOrCreate(ctx context.Context, key string) (*registry.Entry, error)
	Stop(ctx context.Context, key string) error
}

// Result is the aggregate outcome of a batch submission.
type Result struct {
	Logs   []string `json:"logs"`
	Answer string   `json:"answer"`
}

// Orchestrator submits prompts and collects answers using a completion
// detection strategy. Submissions to the same conversation are serialized
// regardless of who triggers them, so an HTTP request and a scheduled job
// never type into one tab at the same time; distinct conversations run
// concurrently.
type Orchestrator struct {
	sessions Sessions
	strategy detector.Strategy
	cfg      *config.Config
	log      *logging.Logger
	locks    registry.KeyedMutex
}

// New builds an orchestrator around the given session source and strategy.
func New(sessions Sessions, strategy detector.Strategy, cfg *config.Config, log *logging.Logger) *Orchestrator {
	return &Orchestrator{sessions: sessions, strategy: strategy, cfg: cfg, log: log}
}

// instruction appends the completion protocol to the user's prompt so the
// agent marks its own answer boundaries.
func (o *Orchestrator) instruction(prompt string) string {
	return fmt.Sprintf(
		"%s\n\nWhen you have completely finished answering, write %s on its own line. "+
			"If you cannot answer, write %s on its own line instead.",
		strings.TrimSpace(prompt), o.cfg.DoneToken, o.cfg.ErrorToken,
	)
}

// Run submits prompt to the conversation and blocks until a terminal
// outcome, returning the accumulated logs and final answer.
func (o *Orchestrator) Run(ctx context.Context, conversationID, prompt string) (*Result, error) {
	result := &Result{Logs: []string{}}
	err := o.RunStream(ctx, conversationID, prompt, func(e types.Event) {
		switch e.Type {
		case types.EventTypeLog:
			result.Logs = append(result.Logs, e.Message)
		case types.EventTypeAnswer, types.EventTypeError:
			result.Answer = e.Message
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunStream submits prompt to the conversation and forwards progress events
// to emit as they happen. On success emit receives zero or more log/frame
// events followed by exactly one terminal event; when RunStream returns an
// error no terminal event was emitted.
func (o *Orchestrator) RunStream(ctx context.Context, conversationID, prompt string, emit detector.EmitFunc) error {
	if conversationID == "" {
		conversationID = DefaultConversation
	}
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("empty prompt")
	}

	unlock := o.locks.Lock(conversationID)
	defer unlock()

	entry, err := o.sessions.GetOrCreate(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("resolving conversation %q: %w", conversationID, err)
	}
	o.log.Infof("submitting prompt to conversation %q (session %s)", conversationID, entry.SessionID)

	composer := o.cfg.Selectors.Composer
	if err := entry.Tab.Fill(composer, o.instruction(prompt)); err != nil {
		return fmt.Errorf("typing prompt: %w", err)
	}
	if err := entry.Tab.Press("Enter"); err != nil {
		return fmt.Errorf("sending prompt: %w", err)
	}

	verdict := o.strategy.Wait(ctx, entry.Tab, emit)
	o.log.Infof("conversation %q finished: %s", conversationID, verdict.Kind)

	switch verdict.Kind {
	case types.VerdictAnswered:
		emit(types.NewAnswerEvent(verdict.Answer))
	case types.VerdictErrored:
		if verdict.Answer == detector.DeadPageMessage {
			// The tab is gone; drop the session so the next prompt
			// starts clean.
			if stopErr := o.sessions.Stop(ctx, conversationID); stopErr != nil {
				o.log.Warnf("stopping dead conversation %q: %v", conversationID, stopErr)
			}
		}
		emit(types.NewErrorEvent(verdict.Answer))
	case types.VerdictTimedOut:
		// A timeout still yields an answer event so callers always get a
		// readable outcome rather than a broken stream.
		emit(types.NewAnswerEvent(verdict.Answer))
	}
	return nil
}
