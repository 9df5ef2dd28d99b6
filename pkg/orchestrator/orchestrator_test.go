package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lansoai/agentbridge/pkg/browser"
	"github.com/lansoai/agentbridge/pkg/config"
	"github.com/lansoai/agentbridge/pkg/detector"
	"github.com/lansoai/agentbridge/pkg/logging"
	"github.com/lansoai/agentbridge/pkg/registry"
	"github.com/lansoai/agentbridge/pkg/types"
)

// promptPage records what the orchestrator types and sends.
type promptPage struct {
	filled  []string
	pressed []string
	fillErr error
}

func (p *promptPage) Navigate(string, time.Duration) error        { return nil }
func (p *promptPage) Fill(_, value string) error                  { p.filled = append(p.filled, value); return p.fillErr }
func (p *promptPage) Click(string, time.Duration) error           { return nil }
func (p *promptPage) WaitForSelector(string, time.Duration) error { return nil }
func (p *promptPage) Press(key string) error                      { p.pressed = append(p.pressed, key); return nil }
func (p *promptPage) Visible(string, time.Duration) bool          { return false }
func (p *promptPage) QueryTexts(string) ([]string, error)         { return nil, nil }
func (p *promptPage) Screenshot(bool) ([]byte, error)             { return nil, nil }
func (p *promptPage) PageText() (string, error)                   { return "", nil }
func (p *promptPage) URL() string                                 { return "" }
func (p *promptPage) WaitForURL(string, time.Duration) error      { return nil }
func (p *promptPage) AddCookies([]browser.Cookie) error           { return nil }
func (p *promptPage) CaptureState() (*browser.State, error)       { return &browser.State{}, nil }
func (p *promptPage) Alive() bool                                 { return true }
func (p *promptPage) Close() error                                { return nil }

// fakeSessions hands out one fixed entry and records stop calls.
type fakeSessions struct {
	page    *promptPage
	keys    []string
	stopped []string
	err     error
}

func (s *fakeSessions) GetOrCreate(_ context.Context, key string) (*registry.Entry, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.keys = append(s.keys, key)
	return &registry.Entry{Tab: s.page, SessionID: "sess-1"}, nil
}

func (s *fakeSessions) Stop(_ context.Context, key string) error {
	s.stopped = append(s.stopped, key)
	return nil
}

// overlapStrategy counts how often two waits ran at the same time.
type overlapStrategy struct {
	inFlight atomic.Int32
	overlaps atomic.Int32
}

func (s *overlapStrategy) Wait(_ context.Context, _ detector.Tab, _ detector.EmitFunc) types.Verdict {
	if s.inFlight.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	time.Sleep(5 * time.Millisecond)
	s.inFlight.Add(-1)
	return types.Verdict{Kind: types.VerdictAnswered, Answer: "ok"}
}

// scriptedStrategy emits canned progress events and returns a fixed verdict.
type scriptedStrategy struct {
	logs    []string
	verdict types.Verdict
}

func (s *scriptedStrategy) Wait(_ context.Context, _ detector.Tab, emit detector.EmitFunc) types.Verdict {
	for _, line := range s.logs {
		emit(types.NewLogEvent(line))
	}
	return s.verdict
}

func newTestOrchestrator(t *testing.T, sessions *fakeSessions, strategy detector.Strategy) *Orchestrator {
	t.Helper()
	cfg := &config.Config{
		DoneToken:  "END",
		ErrorToken: "ERROR",
		Selectors:  config.DefaultSelectors(),
	}
	log := logging.NewLoggerIn(t.TempDir(), "orchestrator-test")
	t.Cleanup(func() { log.Close() })
	return New(sessions, strategy, cfg, log)
}

func TestRunCollectsLogsAndAnswer(t *testing.T) {
	sessions := &fakeSessions{page: &promptPage{}}
	strategy := &scriptedStrategy{
		logs:    []string{"searching", "reading results"},
		verdict: types.Verdict{Kind: types.VerdictAnswered, Answer: "The office opens at nine."},
	}

	result, err := newTestOrchestrator(t, sessions, strategy).Run(context.Background(), "conv-1", "when does the office open?")
	require.NoError(t, err)

	assert.Equal(t, []string{"searching", "reading results"}, result.Logs)
	assert.Equal(t, "The office opens at nine.", result.Answer)
	assert.Equal(t, []string{"conv-1"}, sessions.keys)
}

func TestRunStreamAppendsCompletionInstruction(t *testing.T) {
	sessions := &fakeSessions{page: &promptPage{}}
	strategy := &scriptedStrategy{verdict: types.Verdict{Kind: types.VerdictAnswered, Answer: "ok"}}

	err := newTestOrchestrator(t, sessions, strategy).RunStream(context.Background(), "c", "  hello  ", func(types.Event) {})
	require.NoError(t, err)

	require.Len(t, sessions.page.filled, 1)
	typed := sessions.page.filled[0]
	assert.True(t, strings.HasPrefix(typed, "hello\n\n"))
	assert.Contains(t, typed, "write END on its own line")
	assert.Contains(t, typed, "write ERROR on its own line")
	assert.Equal(t, []string{"Enter"}, sessions.page.pressed)
}

func TestRunStreamDefaultsConversation(t *testing.T) {
	sessions := &fakeSessions{page: &promptPage{}}
	strategy := &scriptedStrategy{verdict: types.Verdict{Kind: types.VerdictAnswered, Answer: "ok"}}

	err := newTestOrchestrator(t, sessions, strategy).RunStream(context.Background(), "", "hi", func(types.Event) {})
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultConversation}, sessions.keys)
}

func TestRunStreamRejectsEmptyPrompt(t *testing.T) {
	sessions := &fakeSessions{page: &promptPage{}}
	strategy := &scriptedStrategy{verdict: types.Verdict{Kind: types.VerdictAnswered}}

	err := newTestOrchestrator(t, sessions, strategy).RunStream(context.Background(), "c", "   ", func(types.Event) {})
	assert.Error(t, err)
	assert.Empty(t, sessions.keys)
}

func TestRunStreamExactlyOneTerminalEvent(t *testing.T) {
	for name, verdict := range map[string]types.Verdict{
		"answered":  {Kind: types.VerdictAnswered, Answer: "done"},
		"errored":   {Kind: types.VerdictErrored, Answer: detector.RemoteErrorMessage},
		"timed out": {Kind: types.VerdictTimedOut, Answer: detector.TimeoutMessage},
	} {
		t.Run(name, func(t *testing.T) {
			sessions := &fakeSessions{page: &promptPage{}}
			strategy := &scriptedStrategy{logs: []string{"working"}, verdict: verdict}

			var terminals int
			err := newTestOrchestrator(t, sessions, strategy).RunStream(context.Background(), "c", "hi", func(e types.Event) {
				if e.Terminal() {
					terminals++
				}
			})
			require.NoError(t, err)
			assert.Equal(t, 1, terminals)
		})
	}
}

func TestRunStreamTimeoutYieldsAnswerEvent(t *testing.T) {
	sessions := &fakeSessions{page: &promptPage{}}
	strategy := &scriptedStrategy{verdict: types.Verdict{Kind: types.VerdictTimedOut, Answer: detector.TimeoutMessage}}

	var last types.Event
	err := newTestOrchestrator(t, sessions, strategy).RunStream(context.Background(), "c", "hi", func(e types.Event) { last = e })
	require.NoError(t, err)

	assert.Equal(t, types.EventTypeAnswer, last.Type)
	assert.Equal(t, detector.TimeoutMessage, last.Message)
}

func TestRunStreamDeadPageStopsSession(t *testing.T) {
	sessions := &fakeSessions{page: &promptPage{}}
	strategy := &scriptedStrategy{verdict: types.Verdict{Kind: types.VerdictErrored, Answer: detector.DeadPageMessage}}

	var last types.Event
	err := newTestOrchestrator(t, sessions, strategy).RunStream(context.Background(), "c", "hi", func(e types.Event) { last = e })
	require.NoError(t, err)

	assert.Equal(t, types.EventTypeError, last.Type)
	assert.Equal(t, []string{"c"}, sessions.stopped)
}

func TestRunStreamRemoteErrorKeepsSession(t *testing.T) {
	sessions := &fakeSessions{page: &promptPage{}}
	strategy := &scriptedStrategy{verdict: types.Verdict{Kind: types.VerdictErrored, Answer: detector.RemoteErrorMessage}}

	err := newTestOrchestrator(t, sessions, strategy).RunStream(context.Background(), "c", "hi", func(types.Event) {})
	require.NoError(t, err)
	assert.Empty(t, sessions.stopped)
}

func TestRunStreamSessionFailureNoTerminalEvent(t *testing.T) {
	sessions := &fakeSessions{page: &promptPage{}, err: errors.New("cloud quota exhausted")}
	strategy := &scriptedStrategy{verdict: types.Verdict{Kind: types.VerdictAnswered}}

	var events int
	err := newTestOrchestrator(t, sessions, strategy).RunStream(context.Background(), "c", "hi", func(types.Event) { events++ })
	assert.Error(t, err)
	assert.Zero(t, events)
}

func TestConcurrentRunsOnOneConversationNeverOverlap(t *testing.T) {
	sessions := &fakeSessions{page: &promptPage{}}
	strategy := &overlapStrategy{}
	orch := newTestOrchestrator(t, sessions, strategy)

	// A scheduled job firing while an HTTP request is mid-flight on the same
	// conversation must wait its turn, not type into the same tab.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.Run(context.Background(), "same", "scheduled check-in")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Zero(t, strategy.overlaps.Load(), "two submissions drove one conversation at once")
	assert.Len(t, sessions.keys, 4)
}

func TestRunFillFailure(t *testing.T) {
	sessions := &fakeSessions{page: &promptPage{fillErr: errors.New("composer detached")}}
	strategy := &scriptedStrategy{verdict: types.Verdict{Kind: types.VerdictAnswered}}

	_, err := newTestOrchestrator(t, sessions, strategy).Run(context.Background(), "c", "hi")
	assert.Error(t, err)
}
