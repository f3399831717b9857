package utils

import (
	"sync"
	"time"
)

// Phase represents a single named timing phase.
type Phase struct {
	Name      string
	StartTime time.Time
	Duration  time.Duration
	completed bool
}

// PhaseTimer times a single phase; Stop is safe to call via defer.
type PhaseTimer struct {
	timer     *Timer
	phaseName string
}

// Stop stops the phase timer and records the duration.
// Safe to call multiple times; only the first call has effect.
func (pt *PhaseTimer) Stop() time.Duration {
	return pt.timer.StopPhase(pt.phaseName)
}

// Timer records named phases of a larger operation and reports them
// through a Logger. When no logger is set all operations are cheap no-ops
// apart from the bookkeeping itself.
type Timer struct {
	mu         sync.Mutex
	name       string
	startTime  time.Time
	phases     map[string]*Phase
	phaseOrder []string
	logger     Logger
	clock      Clock
}

// TimerOption configures a Timer instance.
type TimerOption func(*Timer)

// WithLogger sets the logger used for the timing summary.
func WithLogger(logger Logger) TimerOption {
	return func(t *Timer) {
		t.logger = logger
	}
}

// WithClock sets a custom clock for testability.
func WithClock(clock Clock) TimerOption {
	return func(t *Timer) {
		t.clock = clock
	}
}

// NewTimer creates a new Timer with the given name and options.
func NewTimer(name string, opts ...TimerOption) *Timer {
	t := &Timer{
		name:   name,
		phases: make(map[string]*Phase),
		clock:  NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.startTime = t.clock.Now()
	return t
}

// Start starts timing a new phase and returns a PhaseTimer for deferred Stop.
func (t *Timer) Start(phaseName string) *PhaseTimer {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.phases[phaseName]; !exists {
		t.phases[phaseName] = &Phase{
			Name:      phaseName,
			StartTime: t.clock.Now(),
		}
		t.phaseOrder = append(t.phaseOrder, phaseName)
	}
	return &PhaseTimer{timer: t, phaseName: phaseName}
}

// StopPhase stops a phase and records its duration.
func (t *Timer) StopPhase(phaseName string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	phase, ok := t.phases[phaseName]
	if !ok || phase.completed {
		return 0
	}
	phase.Duration = t.clock.Since(phase.StartTime)
	phase.completed = true
	return phase.Duration
}

// TimeFunc times the execution of fn under the given phase name.
func (t *Timer) TimeFunc(phaseName string, fn func()) time.Duration {
	pt := t.Start(phaseName)
	fn()
	return pt.Stop()
}

// PhaseDuration returns the recorded duration for a phase.
func (t *Timer) PhaseDuration(phaseName string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if phase, ok := t.phases[phaseName]; ok {
		return phase.Duration
	}
	return 0
}

// Total returns the elapsed time since the timer was created.
func (t *Timer) Total() time.Duration {
	return t.clock.Since(t.startTime)
}

// PrintSummary logs each phase duration and the total through the logger.
func (t *Timer) PrintSummary() {
	if t.logger == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logger.Info("%s timing summary:", t.name)
	for _, name := range t.phaseOrder {
		phase := t.phases[name]
		t.logger.Info("  %-28s %v", phase.Name, phase.Duration)
	}
	t.logger.Info("  %-28s %v", "total", t.clock.Since(t.startTime))
}
