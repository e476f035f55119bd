package upload

import "fmt"

// Phase is the closed set of states the upload engine can be in. Illegal
// transitions are rejected at the point of transition instead of being
// guarded by scattered flag checks.
type Phase int

const (
	// PhaseUninitialized is the zero value: no session exists yet.
	PhaseUninitialized Phase = iota
	// PhaseInitializing covers validation and session setup.
	PhaseInitializing
	// PhaseTransferring means a chunk transfer is in progress or the loop is
	// between chunks.
	PhaseTransferring
	// PhaseAwaitingRetry means a chunk failed and a backoff timer is pending.
	PhaseAwaitingRetry
	// PhaseSuspended means the paused and/or offline latch is set.
	PhaseSuspended
	// PhaseStalled means a chunk exhausted its retry budget; only abort or
	// reset can move the session on.
	PhaseStalled
	// PhaseCompleted is terminal: every chunk was accepted.
	PhaseCompleted
	// PhaseAborted is terminal: the caller gave up on the session.
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseTransferring:
		return "transferring"
	case PhaseAwaitingRetry:
		return "awaiting_retry"
	case PhaseSuspended:
		return "suspended"
	case PhaseStalled:
		return "stalled"
	case PhaseCompleted:
		return "completed"
	case PhaseAborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// Terminal reports whether no further chunk transfer may happen in p.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseAborted
}

var legalTransitions = map[Phase][]Phase{
	PhaseUninitialized: {PhaseInitializing},
	PhaseInitializing:  {PhaseTransferring, PhaseSuspended, PhaseAborted},
	PhaseTransferring:  {PhaseAwaitingRetry, PhaseSuspended, PhaseStalled, PhaseCompleted, PhaseAborted},
	PhaseAwaitingRetry: {PhaseTransferring, PhaseSuspended, PhaseStalled, PhaseAborted},
	PhaseSuspended:     {PhaseTransferring, PhaseAwaitingRetry, PhaseSuspended, PhaseAborted},
	PhaseStalled:       {PhaseAborted},
	PhaseCompleted:     {},
	PhaseAborted:       {},
}

// stateMachine holds the phase plus the two independent suspension latches.
// Paused and offline are not mutually exclusive: both map to PhaseSuspended
// and the phase only leaves it once both latches are clear.
type stateMachine struct {
	phase   Phase
	paused  bool
	offline bool
}

func (m *stateMachine) transition(to Phase) error {
	if m.phase == to {
		return nil
	}
	for _, allowed := range legalTransitions[m.phase] {
		if allowed == to {
			m.phase = to
			return nil
		}
	}
	return fmt.Errorf("illegal state transition: %s -> %s", m.phase, to)
}

// suspended reports whether any suspension latch is set.
func (m *stateMachine) suspended() bool {
	return m.paused || m.offline
}

// blocked reports whether the chunk loop must not run.
func (m *stateMachine) blocked() bool {
	return m.suspended() || m.phase.Terminal() || m.phase == PhaseStalled
}
