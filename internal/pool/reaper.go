package pool

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/crawlpool/internal/metrics"
)

// Scheduler runs at most one delayed task at a time.
type Scheduler interface {
	// Schedule runs fn after d, replacing any task still pending.
	Schedule(d time.Duration, fn func())
	// Cancel drops the pending task and reports whether there was one.
	Cancel() bool
	// Pending reports whether a task is waiting to run.
	Pending() bool
}

// TimerScheduler is a Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

// NewTimerScheduler returns an idle TimerScheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{}
}

// Schedule implements Scheduler.
func (s *TimerScheduler) Schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.seq != seq {
			// Replaced or canceled after the timer fired.
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
}

// Cancel implements Scheduler.
func (s *TimerScheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	s.seq++
	return true
}

// Pending implements Scheduler.
func (s *TimerScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// idleCheckLocked reacts to the pool going idle (nothing queued, nothing
// running). With no teardown delay the session is detached right away and the
// returned func closes it; the caller runs it after releasing mu. With a delay
// the teardown is scheduled and nil is returned.
func (p *Pool) idleCheckLocked() func() {
	if p.state != stateReady || p.queue.len() > 0 || p.processing > 0 {
		return nil
	}

	if p.cfg.IdleTeardownDelay <= 0 {
		session, pages := p.detachLocked()
		return func() {
			metrics.RecordSessionEvent("idle_teardown")
			_ = p.finishTeardown(session, pages, "idle")
		}
	}

	gen := p.generation
	p.scheduler.Schedule(p.cfg.IdleTeardownDelay, func() {
		p.scheduledTeardown(gen)
	})
	log.Debug().
		Dur("delay", p.cfg.IdleTeardownDelay).
		Msg("Pool idle, teardown scheduled")
	return nil
}

// scheduledTeardown runs when the idle delay elapses. Work may have arrived in
// the meantime, so idleness is checked again.
func (p *Pool) scheduledTeardown(gen uint64) {
	p.mu.Lock()
	if gen != p.generation || p.state != stateReady || p.queue.len() > 0 || p.processing > 0 {
		p.mu.Unlock()
		return
	}
	session, pages := p.detachLocked()
	p.mu.Unlock()

	metrics.RecordSessionEvent("idle_teardown")
	_ = p.finishTeardown(session, pages, "idle")
}
