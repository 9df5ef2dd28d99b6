package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/lansoai/agentbridge/pkg/logging"
)

// Runner submits a prompt and blocks until the agent answers.
// Satisfied by a thin wrapper over *orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, conversationID, prompt string) (string, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, conversationID, prompt string) (string, error)

func (f RunnerFunc) Run(ctx context.Context, conversationID, prompt string) (string, error) {
	return f(ctx, conversationID, prompt)
}

// Scheduler arms one timer per pending job and runs the job's prompt when
// the timer fires. Jobs live in the store, so Start can rehydrate timers
// after a restart.
type Scheduler struct {
	store   *Store
	runner  Runner
	extract *Extractor
	log     *logging.Logger

	// now is swappable for tests.
	now func() time.Time

	mu     sync.Mutex
	timers map[int64]*time.Timer
	closed bool

	wg sync.WaitGroup
}

// NewScheduler wires a scheduler over the given store and runner.
func NewScheduler(store *Store, runner Runner, log *logging.Logger) *Scheduler {
	return &Scheduler{
		store:   store,
		runner:  runner,
		extract: NewExtractor(),
		log:     log,
		now:     time.Now,
		timers:  make(map[int64]*time.Timer),
	}
}

// Defer looks for a future time phrase in prompt. When one is found the
// remaining prompt is stored and armed as a job; when none is found the
// caller should submit the prompt immediately.
func (s *Scheduler) Defer(ctx context.Context, conversationID, prompt string) (*Job, bool, error) {
	ex, ok, err := s.extract.Extract(prompt, s.now())
	if err != nil || !ok {
		return nil, false, err
	}
	job, err := s.Schedule(ctx, conversationID, ex.Prompt, ex.FireAt)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// Start arms timers for every pending job whose fire time is still ahead.
// Jobs that became overdue while the process was down stay pending in the
// store; firing them late would surprise whoever scheduled them.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs, err := s.store.Pending(ctx, s.now())
	if err != nil {
		return err
	}
	for _, job := range jobs {
		s.arm(job)
	}
	if len(jobs) > 0 {
		s.log.Infof("rehydrated %d pending job(s)", len(jobs))
	}
	return nil
}

// Schedule stores and arms a job for the given prompt and fire time.
func (s *Scheduler) Schedule(ctx context.Context, conversationID, prompt string, fireAt time.Time) (*Job, error) {
	job, err := s.store.Create(ctx, conversationID, prompt, fireAt)
	if err != nil {
		return nil, err
	}
	s.arm(job)
	s.log.Infof("scheduled job %d for %s: %q", job.ID, job.FireAt.Format(time.RFC3339), job.Prompt)
	return job, nil
}

// Job exposes store lookup for the HTTP layer.
func (s *Scheduler) Job(ctx context.Context, id int64) (*Job, error) {
	return s.store.Get(ctx, id)
}

func (s *Scheduler) arm(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	delay := job.FireAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.wg.Add(1)
	s.timers[job.ID] = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.fire(job)
	})
}

func (s *Scheduler) fire(job *Job) {
	s.mu.Lock()
	delete(s.timers, job.ID)
	s.mu.Unlock()

	ctx := context.Background()
	answer, err := s.runner.Run(ctx, job.ConversationID, job.Prompt)
	if err != nil {
		s.log.Errorf("job %d failed: %v", job.ID, err)
		answer = "[scheduled prompt failed: " + err.Error() + "]"
	}
	if err := s.store.MarkDone(ctx, job.ID, answer); err != nil {
		s.log.Errorf("recording job %d result: %v", job.ID, err)
	}
	s.log.Infof("job %d fired", job.ID)
}

// Stop cancels unfired timers and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	for id, timer := range s.timers {
		if timer.Stop() {
			// Timer never fired; release its waitgroup slot.
			s.wg.Done()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
