// Package schedule replays a parsed game on a clock, revealing each
// half-move once its scheduled time has passed.
package schedule

import (
	"time"

	"github.com/thyrook/pgnrelay/internal/pgn"
)

// State is the lifecycle state of a replay.
type State int

const (
	Idle State = iota
	Armed
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// EventKind tells what a replay Event reports.
type EventKind int

const (
	Update EventKind = iota
	Complete
	Stopped
)

func (k EventKind) String() string {
	switch k {
	case Update:
		return "update"
	case Complete:
		return "complete"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is emitted by the Machine. HalfMove is set for Update only.
type Event struct {
	Kind     EventKind
	HalfMove pgn.HalfMove
	At       time.Time
}

// CurrentHalfMove returns the last half-move whose scheduled time is not
// after asOf. Half-moves without a scheduled time count as already shown.
// The scan stops at the first half-move still in the future.
func CurrentHalfMove(moves []pgn.HalfMove, asOf time.Time) (pgn.HalfMove, bool) {
	var (
		current pgn.HalfMove
		found   bool
	)
	for _, h := range moves {
		if h.ScheduledAt.After(asOf) {
			break
		}
		current = h
		found = true
	}
	return current, found
}

// Machine is the replay state machine. It is driven by the current time and
// does no timing of its own, so it is not safe for concurrent use.
type Machine struct {
	moves   []pgn.HalfMove
	pending []time.Time
	next    int
	state   State
}

// NewMachine creates an idle machine over a copy of moves.
func NewMachine(moves []pgn.HalfMove) *Machine {
	return &Machine{
		moves: append([]pgn.HalfMove(nil), moves...),
		state: Idle,
	}
}

// State returns the machine state.
func (m *Machine) State() State {
	return m.state
}

// Start collects the half-moves scheduled after now. With nothing left to
// show the machine completes at once.
func (m *Machine) Start(now time.Time) []Event {
	if m.state != Idle {
		return nil
	}

	for _, h := range m.moves {
		if h.ScheduledAt.After(now) {
			m.pending = append(m.pending, h.ScheduledAt)
		}
	}

	if len(m.pending) == 0 {
		m.state = Completed
		return []Event{{Kind: Complete, At: now}}
	}
	m.state = Armed
	return nil
}

// Deadline returns the next instant at which Tick has something to do.
func (m *Machine) Deadline() (time.Time, bool) {
	if m.state != Armed || m.next >= len(m.pending) {
		return time.Time{}, false
	}
	return m.pending[m.next], true
}

// Pending returns how many scheduled instants are still ahead.
func (m *Machine) Pending() int {
	if m.state != Armed {
		return 0
	}
	return len(m.pending) - m.next
}

// Tick consumes every scheduled instant that is not after now. If any was
// consumed it emits one Update carrying the half-move current at now, and a
// Complete once the last instant is consumed.
func (m *Machine) Tick(now time.Time) []Event {
	if m.state != Armed {
		return nil
	}

	advanced := false
	for m.next < len(m.pending) && !m.pending[m.next].After(now) {
		m.next++
		advanced = true
	}
	if !advanced {
		return nil
	}

	var events []Event
	if h, ok := CurrentHalfMove(m.moves, now); ok {
		events = append(events, Event{Kind: Update, HalfMove: h, At: now})
	}
	if m.next >= len(m.pending) {
		m.state = Completed
		events = append(events, Event{Kind: Complete, At: now})
	}
	return events
}

// Cancel stops an idle or armed machine. Cancelling a finished machine
// does nothing.
func (m *Machine) Cancel() []Event {
	if m.state == Completed || m.state == Cancelled {
		return nil
	}
	m.state = Cancelled
	return []Event{{Kind: Stopped}}
}
