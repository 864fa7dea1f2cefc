package tetherlib

import (
	"sync"
	"time"
)

// DeadlineScheduler runs delayed callbacks for a single connection and is
// cancelled as a unit when the connection shuts down. Now supplies the
// clock deadlines are measured against.
type DeadlineScheduler interface {
	Now() time.Time
	ScheduleOnce(delay time.Duration, task func())
	CancelAll()
}

type timedTask struct {
	at time.Time
	fn func()
}

// TimerScheduler runs tasks on a single worker goroutine backed by pooled
// timers. CancelAll drops pending tasks and waits for a running task to
// return; tasks must not call CancelAll themselves.
type TimerScheduler struct {
	mu     sync.Mutex
	tasks  []timedTask
	closed bool

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
}

func NewTimerScheduler() *TimerScheduler {
	s := &TimerScheduler{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *TimerScheduler) Now() time.Time { return time.Now() }

// ScheduleOnce runs task once after delay elapsed. Tasks scheduled after
// CancelAll never run.
func (s *TimerScheduler) ScheduleOnce(delay time.Duration, task func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.tasks = append(s.tasks, timedTask{at: time.Now().Add(delay), fn: task})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// CancelAll drops every pending task and blocks until the worker stopped,
// so no task runs once it returns.
func (s *TimerScheduler) CancelAll() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.tasks = nil
		close(s.done)
	}
	s.mu.Unlock()

	<-s.exited
}

func (s *TimerScheduler) run() {
	defer close(s.exited)

	for {
		s.mu.Lock()
		next := -1
		for i := range s.tasks {
			if next < 0 || s.tasks[i].at.Before(s.tasks[next].at) {
				next = i
			}
		}
		if next < 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		at := s.tasks[next].at
		s.mu.Unlock()

		if d := time.Until(at); d > 0 {
			t := timerPool.acquire(d)
			select {
			case <-t.C:
			case <-s.wake:
				timerPool.release(t)
				continue
			case <-s.done:
				timerPool.release(t)
				return
			}
			timerPool.release(t)
		}

		if task, ok := s.pop(); ok {
			task()
		}
	}
}

// pop removes the earliest task if it is due.
func (s *TimerScheduler) pop() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := -1
	for i := range s.tasks {
		if next < 0 || s.tasks[i].at.Before(s.tasks[next].at) {
			next = i
		}
	}
	if next < 0 || time.Now().Before(s.tasks[next].at) {
		return nil, false
	}

	fn := s.tasks[next].fn
	s.tasks[next] = s.tasks[len(s.tasks)-1]
	s.tasks = s.tasks[:len(s.tasks)-1]
	return fn, true
}
