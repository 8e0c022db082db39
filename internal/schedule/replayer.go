package schedule

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thyrook/pgnrelay/internal/clock"
	"github.com/thyrook/pgnrelay/internal/pgn"
)

// Callbacks receive the output of a replay. Any of them may be nil.
// OnUpdate and OnComplete of one replay run one at a time on the timer's
// goroutine; OnStopped runs on the goroutine that calls Cancel.
type Callbacks struct {
	OnUpdate   func(pgn.HalfMove)
	OnComplete func()
	OnStopped  func()
}

// Replayer runs at most one replay at a time for a single game view.
type Replayer struct {
	clock  clock.Clock
	logger *zap.Logger

	mu     sync.Mutex
	active *Handle
}

// NewReplayer creates a replayer. A nil logger disables logging.
func NewReplayer(clk clock.Clock, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		clock:  clk,
		logger: logger,
	}
}

// Start replays g, cancelling the replay started before it. If every
// half-move is already due, OnComplete runs before Start returns.
func (r *Replayer) Start(g *pgn.Game, cb Callbacks) *Handle {
	h := &Handle{
		id:      uuid.NewString(),
		clock:   r.clock,
		cb:      cb,
		machine: NewMachine(g.HalfMoves),
		done:    make(chan struct{}),
	}
	h.logger = r.logger.With(zap.String("run", h.id))

	r.mu.Lock()
	prev := r.active
	r.active = h
	r.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	h.start()
	return h
}

// Active returns the most recently started replay, or nil.
func (r *Replayer) Active() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Stop cancels the active replay.
func (r *Replayer) Stop() {
	r.mu.Lock()
	h := r.active
	r.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
}

// Handle controls one replay.
type Handle struct {
	id     string
	clock  clock.Clock
	logger *zap.Logger
	cb     Callbacks

	mu      sync.Mutex
	machine *Machine
	timer   clock.Timer

	cancelled atomic.Bool
	finished  sync.Once
	done      chan struct{}
}

// ID identifies the replay in logs.
func (h *Handle) ID() string {
	return h.id
}

// State returns the replay state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.machine.State()
}

// Done is closed once the replay completes or is cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel releases the pending timer and emits OnStopped. No callback fires
// after Cancel has been called. Cancelling a finished replay is a no-op.
func (h *Handle) Cancel() {
	if !h.cancelled.CompareAndSwap(false, true) {
		return
	}

	h.mu.Lock()
	events := h.machine.Cancel()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.mu.Unlock()

	h.finish()
	if len(events) == 0 {
		return
	}
	h.logger.Debug("replay stopped")
	if h.cb.OnStopped != nil {
		h.cb.OnStopped()
	}
}

func (h *Handle) start() {
	h.mu.Lock()
	events := h.machine.Start(h.clock.Now())
	pending := h.machine.Pending()
	h.mu.Unlock()

	h.logger.Debug("replay started", zap.Int("pending", pending))
	h.deliver(events)
	h.arm()
}

func (h *Handle) arm() {
	h.mu.Lock()
	defer h.mu.Unlock()

	deadline, ok := h.machine.Deadline()
	if !ok || h.cancelled.Load() {
		return
	}
	h.timer = h.clock.AfterFunc(deadline.Sub(h.clock.Now()), h.fire)
}

func (h *Handle) fire() {
	if h.cancelled.Load() {
		return
	}

	h.mu.Lock()
	h.timer = nil
	events := h.machine.Tick(h.clock.Now())
	h.mu.Unlock()

	h.deliver(events)
	h.arm()
}

func (h *Handle) deliver(events []Event) {
	for _, e := range events {
		if e.Kind == Complete {
			h.finish()
		}
		if h.cancelled.Load() {
			return
		}

		switch e.Kind {
		case Update:
			h.logger.Debug("half-move due",
				zap.Int("id", e.HalfMove.ID),
				zap.String("move", e.HalfMove.Move),
				zap.Time("at", e.At))
			if h.cb.OnUpdate != nil {
				h.cb.OnUpdate(e.HalfMove)
			}
		case Complete:
			h.logger.Debug("replay complete")
			if h.cb.OnComplete != nil {
				h.cb.OnComplete()
			}
		}
	}
}

func (h *Handle) finish() {
	h.finished.Do(func() {
		close(h.done)
	})
}
