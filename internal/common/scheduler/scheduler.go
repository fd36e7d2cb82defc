// Package scheduler is the cooperative job runtime described in spec.md
// §5 and design note §9: a list of (name, interval, handler, running?)
// records, one ticker per job, and an execution barrier that drops a tick
// if the prior invocation of that same job has not finished
// (max_instances=1). It deliberately is not a general-purpose cron
// library — the job set for one handler process is small and fixed.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/procnet/custodian/internal/common/log"
)

// Job is one cooperative periodic task. Interval may be mutated at
// runtime (the block scanner's catch-up mode sets it to 0, see C5); the
// scheduler re-reads it before arming the next tick.
type Job struct {
	Name     string
	Interval func() time.Duration
	Run      func(ctx context.Context) error

	running int32
}

type Scheduler struct {
	log  *log.Logger
	jobs []*Job

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{log: log.New("scheduler")}
}

func (s *Scheduler) Register(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
}

// Start launches every registered job in its own goroutine. Each job loops
// on its own interval; Stop cancels all of them and waits for in-flight
// runs to finish.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithCancel(parent)
	s.cancels = append(s.cancels, cancel)
	for _, j := range s.jobs {
		j := j
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j *Job) {
	defer s.wg.Done()
	for {
		interval := j.Interval()
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.tick(ctx, j)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, j *Job) {
	if !atomic.CompareAndSwapInt32(&j.running, 0, 1) {
		s.log.Debug("skipping tick, previous invocation still running", "job", j.Name)
		return
	}
	defer atomic.StoreInt32(&j.running, 0)

	if err := j.Run(ctx); err != nil {
		s.log.Error("job tick failed", "job", j.Name, "err", err)
	}
}

// RunOnce executes a job's handler immediately and synchronously, used for
// the startup bootstrap pass and for tests.
func RunOnce(ctx context.Context, j *Job) error {
	return j.Run(ctx)
}
