package action

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs fire-and-forget tasks after a delay. Tasks must not block
// the caller and their failures are their own concern.
type Scheduler interface {
	After(d time.Duration, task func())
}

// TimerScheduler schedules tasks on the runtime timer.
type TimerScheduler struct{}

// After runs task on its own goroutine once d has elapsed.
func (TimerScheduler) After(d time.Duration, task func()) {
	time.AfterFunc(d, task)
}

// ManualScheduler queues tasks against a fake clock that only moves when
// Advance is called. It is meant for tests.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	tasks []scheduledTask
	seq   int
}

type scheduledTask struct {
	at   time.Duration
	seq  int
	task func()
}

// NewManualScheduler returns a scheduler at fake time zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// After queues task to run when the fake clock reaches now+d.
func (s *ManualScheduler) After(d time.Duration, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.tasks = append(s.tasks, scheduledTask{at: s.now + d, seq: s.seq, task: task})
}

// Pending returns the number of tasks not yet run.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Delays returns the delay of each pending task relative to the current fake
// time, in scheduling order.
func (s *ManualScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.at - s.now
	}
	return out
}

// Advance moves the fake clock forward by d and synchronously runs every task
// that has come due, earliest first.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due, rest []scheduledTask
	for _, t := range s.tasks {
		if t.at <= s.now {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	s.tasks = rest
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at != due[j].at {
			return due[i].at < due[j].at
		}
		return due[i].seq < due[j].seq
	})
	for _, t := range due {
		t.task()
	}
}
