package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lansoai/agentbridge/pkg/logging"
)

// recordingRunner captures fired prompts and signals each run.
type recordingRunner struct {
	mu     sync.Mutex
	runs   []string
	answer string
	err    error
	fired  chan struct{}
}

func newRecordingRunner(answer string) *recordingRunner {
	return &recordingRunner{answer: answer, fired: make(chan struct{}, 16)}
}

func (r *recordingRunner) Run(_ context.Context, conversationID, prompt string) (string, error) {
	r.mu.Lock()
	r.runs = append(r.runs, conversationID+"|"+prompt)
	r.mu.Unlock()
	r.fired <- struct{}{}
	return r.answer, r.err
}

func (r *recordingRunner) waitFired(t *testing.T) {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("job never fired")
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestScheduler(t *testing.T, runner Runner) (*Scheduler, *Store) {
	t.Helper()
	store := newTestStore(t)
	log := logging.NewLoggerIn(t.TempDir(), "scheduler-test")
	t.Cleanup(func() { log.Close() })
	s := NewScheduler(store, runner, log)
	t.Cleanup(s.Stop)
	return s, store
}

// eventually polls the job until it leaves pending or the deadline passes.
func eventuallyDone(t *testing.T, store *Store, id int64) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		if job.Status == StatusDone {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %d never completed", id)
	return nil
}

func TestScheduleFiresAndRecordsAnswer(t *testing.T) {
	runner := newRecordingRunner("All caught up.")
	s, store := newTestScheduler(t, runner)

	job, err := s.Schedule(context.Background(), "conv-1", "summarize my inbox", time.Now().Add(10*time.Millisecond))
	require.NoError(t, err)

	runner.waitFired(t)
	done := eventuallyDone(t, store, job.ID)

	assert.Equal(t, "All caught up.", done.Answer)
	assert.Equal(t, []string{"conv-1|summarize my inbox"}, runner.runs)
}

func TestScheduleRunnerErrorStillCompletes(t *testing.T) {
	runner := newRecordingRunner("")
	runner.err = errors.New("session lost")
	s, store := newTestScheduler(t, runner)

	job, err := s.Schedule(context.Background(), "c", "do the thing", time.Now().Add(5*time.Millisecond))
	require.NoError(t, err)

	runner.waitFired(t)
	done := eventuallyDone(t, store, job.ID)

	// A failed run still resolves the job so it is not re-fired forever.
	assert.Contains(t, done.Answer, "session lost")
}

func TestStartRehydratesPendingJobs(t *testing.T) {
	store := newTestStore(t)
	log := logging.NewLoggerIn(t.TempDir(), "scheduler-test")
	t.Cleanup(func() { log.Close() })

	// Job written by a previous process, still ahead of us.
	job, err := store.Create(context.Background(), "c", "check status", time.Now().Add(20*time.Millisecond))
	require.NoError(t, err)

	runner := newRecordingRunner("status ok")
	s := NewScheduler(store, runner, log)
	t.Cleanup(s.Stop)
	require.NoError(t, s.Start(context.Background()))

	runner.waitFired(t)
	done := eventuallyDone(t, store, job.ID)
	assert.Equal(t, "status ok", done.Answer)
}

func TestStartSkipsOverdueJobs(t *testing.T) {
	store := newTestStore(t)
	log := logging.NewLoggerIn(t.TempDir(), "scheduler-test")
	t.Cleanup(func() { log.Close() })

	// A job that came due while the process was down stays untouched.
	_, err := store.Create(context.Background(), "c", "stale reminder", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	runner := newRecordingRunner("x")
	s := NewScheduler(store, runner, log)
	t.Cleanup(s.Stop)
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-runner.fired:
		t.Fatal("overdue job fired on start")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartIgnoresDoneJobs(t *testing.T) {
	store := newTestStore(t)
	log := logging.NewLoggerIn(t.TempDir(), "scheduler-test")
	t.Cleanup(func() { log.Close() })

	job, err := store.Create(context.Background(), "c", "old prompt", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.MarkDone(context.Background(), job.ID, "already answered"))

	runner := newRecordingRunner("x")
	s := NewScheduler(store, runner, log)
	t.Cleanup(s.Stop)
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-runner.fired:
		t.Fatal("completed job fired again")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopCancelsUnfiredTimers(t *testing.T) {
	runner := newRecordingRunner("x")
	s, _ := newTestScheduler(t, runner)

	_, err := s.Schedule(context.Background(), "c", "far future", time.Now().Add(time.Hour))
	require.NoError(t, err)

	s.Stop()

	select {
	case <-runner.fired:
		t.Fatal("cancelled job fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fireAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	job, err := store.Create(ctx, "conv-9", "ping", fireAt)
	require.NoError(t, err)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "conv-9", got.ConversationID)
	assert.Equal(t, "ping", got.Prompt)
	assert.True(t, got.FireAt.Equal(fireAt))
	assert.Equal(t, StatusPending, got.Status)

	pending, err := store.Pending(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.MarkDone(ctx, job.ID, "pong"))
	pending, err = store.Pending(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDeferSchedulesTimePhrase(t *testing.T) {
	runner := newRecordingRunner("x")
	s, store := newTestScheduler(t, runner)

	job, scheduled, err := s.Defer(context.Background(), "c", "tomorrow at 9am summarize my inbox")
	require.NoError(t, err)
	require.True(t, scheduled)
	assert.Contains(t, job.Prompt, "summarize my inbox")

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestDeferNoTimePhraseRunsNow(t *testing.T) {
	runner := newRecordingRunner("x")
	s, _ := newTestScheduler(t, runner)

	job, scheduled, err := s.Defer(context.Background(), "c", "what are the library hours?")
	require.NoError(t, err)
	assert.False(t, scheduled)
	assert.Nil(t, job)
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), 404)
	assert.Error(t, err)
}
