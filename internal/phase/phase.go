// Package phase implements the PhaseManager state machine (spec.md §4.D):
// the process-wide record of which phase is currently active, its target
// concurrency, and whether the ramp-in transient has finished.
//
// Grounded on the teacher's pattern of replacing rather than mutating shared
// state under a lock (seen throughout internal/repository for swapping
// cached clients) generalized here to an atomic.Pointer-backed snapshot, so
// readers never observe a half-updated PhaseState.
package phase

import (
	"sync/atomic"
	"time"
)

// State is an immutable snapshot of the currently-active phase. A new phase
// replaces the previous State wholesale; State values are never mutated
// after construction, so a holder of one snapshot sees a fully consistent
// view even while the manager moves on (spec.md invariant I1).
type State struct {
	PhaseID            string
	TargetConcurrency  int
	MeasurementStarted bool
	MeasurementStartTs time.Time
	PhaseStartedTs     time.Time
}

// Manager is the process-wide PhaseManager singleton. Safe for concurrent
// use: BeginPhase is expected to be called only by the coordinator, while
// Snapshot and ObserveInFlight are called by every worker goroutine.
type Manager struct {
	current atomic.Pointer[State]
}

// NewManager returns a Manager with no active phase.
func NewManager() *Manager {
	m := &Manager{}
	m.current.Store(&State{})
	return m
}

// BeginPhase replaces the current PhaseState with a fresh one targeting
// target concurrency under id. measurement_started resets to false: the
// previous phase's measurement state never leaks into the new phase.
func (m *Manager) BeginPhase(id string, target int) {
	m.current.Store(&State{
		PhaseID:           id,
		TargetConcurrency: target,
		PhaseStartedTs:    time.Now(),
	})
}

// ObserveInFlight records that inFlight requests are currently outstanding.
// Once inFlight meets or exceeds the phase's target concurrency,
// measurement_started flips to true — monotonically, and only within the
// phase that was current when this call observed the threshold (spec.md
// invariant I2). Calls after the flag is already true are no-ops.
func (m *Manager) ObserveInFlight(inFlight int) {
	for {
		cur := m.current.Load()
		if cur.MeasurementStarted || inFlight < cur.TargetConcurrency {
			return
		}
		next := *cur
		next.MeasurementStarted = true
		next.MeasurementStartTs = time.Now()
		if m.current.CompareAndSwap(cur, &next) {
			return
		}
		// Lost the race to a concurrent BeginPhase or ObserveInFlight; retry
		// against whatever is current now.
	}
}

// Snapshot returns the currently-active phase state. The returned value is
// never mutated afterward, so callers may hold it across the lifetime of a
// single request without risk of it changing underneath them.
func (m *Manager) Snapshot() State {
	return *m.current.Load()
}
