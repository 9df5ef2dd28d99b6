package detector

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const judgeSystemPrompt = `You review a snapshot of a conversation with an AI assistant.
Decide whether the assistant has FINISHED answering the user's latest request.
The assistant is finished when its reply reads as complete and it is no longer
working, thinking, or promising further output.
Reply with exactly one word: YES if the answer is finished, NO otherwise.`

// CompletionJudge asks a chat model whether a page snapshot contains a
// finished answer. It backs the visual strategy when no sentinel protocol is
// in play.
type CompletionJudge struct {
	client openai.Client
	model  string
}

var _ Judge = (*CompletionJudge)(nil)

// NewCompletionJudge builds a judge backed by the given API key and model.
func NewCompletionJudge(apiKey, model string) *CompletionJudge {
	return &CompletionJudge{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// IsComplete returns true when the model reads the draft as a finished
// answer. The draft is truncated from the front so the freshest messages
// survive the context budget.
func (j *CompletionJudge) IsComplete(ctx context.Context, draft string) (bool, error) {
	const maxDraftLen = 12000
	if len(draft) > maxDraftLen {
		draft = draft[len(draft)-maxDraftLen:]
	}

	resp, err := j.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: j.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(judgeSystemPrompt),
			openai.UserMessage(draft),
		},
	})
	if err != nil {
		return false, fmt.Errorf("completion judge: %w", err)
	}
	if len(resp.Choices) == 0 {
		return false, fmt.Errorf("completion judge: empty response")
	}

	verdict := strings.ToUpper(strings.TrimSpace(resp.Choices[0].Message.Content))
	return strings.HasPrefix(verdict, "YES"), nil
}
