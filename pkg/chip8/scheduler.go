package chip8

import (
	"context"
	"time"
)

const (
	// DefaultIPS is the default instruction pacing target.
	DefaultIPS = 700

	// TimerHz is the fixed logical rate of the timer driver.
	TimerHz = 60

	// runQuantum is the wake-up interval of the blocking Run loop.
	runQuantum = 2 * time.Millisecond

	// maxAdvance caps a single elapsed quantum so a stalled frontend does
	// not trigger a burst of catch-up execution.
	maxAdvance = 250 * time.Millisecond
)

// Scheduler paces a machine against an instructions-per-second target and
// drives the 60 Hz timer cadence. It owns the mode transitions triggered
// by external control signals; fatal executor conditions halt the machine
// on their own.
type Scheduler struct {
	machine *Machine

	instrPeriod time.Duration
	timerPeriod time.Duration
	instrDebt   time.Duration
	timerDebt   time.Duration
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithIPS sets the instructions-per-second pacing target.
func WithIPS(ips uint32) SchedulerOption {
	return func(s *Scheduler) {
		if ips > 0 {
			s.instrPeriod = time.Second / time.Duration(ips)
		}
	}
}

// NewScheduler creates a scheduler for the given machine.
func NewScheduler(m *Machine, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		machine:     m,
		instrPeriod: time.Second / DefaultIPS,
		timerPeriod: time.Second / TimerHz,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Machine returns the scheduled machine.
func (s *Scheduler) Machine() *Machine {
	return s.machine
}

// Pause suspends execution. Elapsed time during a pause is discarded so
// resuming does not replay it.
func (s *Scheduler) Pause() {
	s.machine.Pause()
}

// Resume continues a paused machine with empty pacing debts.
func (s *Scheduler) Resume() {
	s.machine.Resume()
	s.instrDebt = 0
	s.timerDebt = 0
}

// Quit halts the machine. The transition is terminal; Advance returns
// ErrHalted from now on.
func (s *Scheduler) Quit() {
	s.machine.Halt()
}

// Advance converts elapsed logical time into instruction steps and timer
// ticks. A paused machine consumes the time without stepping. The returned
// error is terminal: either a *FatalError from the executor or ErrHalted
// after an external quit.
func (s *Scheduler) Advance(elapsed time.Duration) error {
	switch s.machine.mode {
	case ModeHalted:
		return s.machine.haltCause
	case ModePaused:
		return nil
	}

	if elapsed > maxAdvance {
		elapsed = maxAdvance
	}
	s.instrDebt += elapsed
	s.timerDebt += elapsed

	for s.instrDebt >= s.instrPeriod {
		s.instrDebt -= s.instrPeriod

		// Keep the 60 Hz cadence interleaved with execution instead of
		// ticking all timers before or after the instruction batch.
		for s.timerDebt >= s.timerPeriod {
			s.timerDebt -= s.timerPeriod
			s.machine.TickTimers()
		}

		if err := s.machine.Step(); err != nil {
			return err
		}
	}

	for s.timerDebt >= s.timerPeriod {
		s.timerDebt -= s.timerPeriod
		s.machine.TickTimers()
	}
	return nil
}

// Run drives the machine in real time until it halts or the context is
// cancelled. Cancellation quits the machine and returns the context error;
// a machine halting on its own returns ErrHalted or the fatal condition.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(runQuantum)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.Quit()
			return ctx.Err()
		case now := <-ticker.C:
			err := s.Advance(now.Sub(last))
			last = now
			if err != nil {
				return err
			}
		}
	}
}
